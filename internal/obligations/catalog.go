package obligations

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog indexes obligation rules by code.
type Catalog struct {
	rules map[string]Rule
}

// NewCatalog validates rules and builds a catalog. Later rules replace earlier ones with the same code.
func NewCatalog(rules ...Rule) (*Catalog, error) {
	c := &Catalog{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		rule.Code = normalizeCode(rule.Code)
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		c.rules[rule.Code] = rule
	}
	return c, nil
}

// Rule returns the rule configured for code.
func (c *Catalog) Rule(code string) (Rule, error) {
	rule, ok := c.rules[normalizeCode(code)]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnknownObligation, code)
	}
	return rule, nil
}

// Codes returns the configured obligation codes in ascending order.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.rules))
	for code := range c.rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Types returns the reference records for every rule.
func (c *Catalog) Types() []ObligationType {
	types := make([]ObligationType, 0, len(c.rules))
	for _, code := range c.Codes() {
		types = append(types, c.rules[code].Type())
	}
	return types
}

// Allows checks that code exists and recurs with periodicity p.
func (c *Catalog) Allows(code string, p Periodicity) error {
	rule, err := c.Rule(code)
	if err != nil {
		return err
	}
	if !p.Valid() {
		return &UnknownPeriodicityError{Code: rule.Code, Periodicity: string(p)}
	}
	if !rule.Allows(p) {
		return fmt.Errorf("%w: %s does not allow %s", ErrPeriodicityNotAllowed, rule.Code, p)
	}
	return nil
}

// AllowsClientType checks that code exists and applies to clients of type t.
func (c *Catalog) AllowsClientType(code string, t ClientType) error {
	rule, err := c.Rule(code)
	if err != nil {
		return err
	}
	if !rule.AllowsClientType(t) {
		return &ClientTypeNotAllowedError{Code: rule.Code, ClientType: t, Allowed: rule.AllowedClientTypes}
	}
	return nil
}

// WithOverrides returns a new catalog where overrides replace rules by code.
func (c *Catalog) WithOverrides(overrides []Rule) (*Catalog, error) {
	rules := make([]Rule, 0, len(c.rules)+len(overrides))
	for _, code := range c.Codes() {
		rules = append(rules, c.rules[code])
	}
	rules = append(rules, overrides...)
	return NewCatalog(rules...)
}

type overrideFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseOverrides decodes a YAML rules document.
func ParseOverrides(r io.Reader) ([]Rule, error) {
	var doc overrideFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("obligations: decode rules: %w", err)
	}
	for i := range doc.Rules {
		for j, p := range doc.Rules[i].Periodicities {
			parsed, err := ParsePeriodicity(string(p))
			if err != nil {
				return nil, &UnknownPeriodicityError{Code: doc.Rules[i].Code, Periodicity: string(p), Reason: "unrecognized value"}
			}
			doc.Rules[i].Periodicities[j] = parsed
		}
		for j, t := range doc.Rules[i].AllowedClientTypes {
			parsed, err := ParseClientType(string(t))
			if err != nil {
				return nil, fmt.Errorf("obligations: rule %s: %w", doc.Rules[i].Code, err)
			}
			doc.Rules[i].AllowedClientTypes[j] = parsed
		}
	}
	return doc.Rules, nil
}

// LoadCatalog returns the default catalog merged with the overrides stored at path.
// An empty path yields the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	base := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obligations: open rules: %w", err)
	}
	defer f.Close()
	overrides, err := ParseOverrides(f)
	if err != nil {
		return nil, err
	}
	return base.WithOverrides(overrides)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
