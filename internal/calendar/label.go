package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// LabelKind tags the variant held by a PeriodLabel.
type LabelKind int

const (
	LabelUnrecognized LabelKind = iota
	LabelMonthly
	LabelQuarterly
	LabelAnnual
	LabelInstallment
)

// AnnualLabel is the label of the single annual period.
const AnnualLabel = "ANUAL"

var (
	monthlyLabel     = regexp.MustCompile(`^M(\d{2})$`)
	quarterlyLabel   = regexp.MustCompile(`^([1-4])T$`)
	installmentLabel = regexp.MustCompile(`^([1-9])P$`)
)

// PeriodLabel is the parsed form of a period label.
type PeriodLabel struct {
	Kind   LabelKind
	Number int
	Raw    string
}

// ParseLabel classifies raw. It never fails: anything it cannot read is LabelUnrecognized.
func ParseLabel(raw string) PeriodLabel {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if m := monthlyLabel.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= 12 {
			return PeriodLabel{Kind: LabelMonthly, Number: n, Raw: raw}
		}
		return PeriodLabel{Kind: LabelUnrecognized, Raw: raw}
	}
	if m := quarterlyLabel.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return PeriodLabel{Kind: LabelQuarterly, Number: n, Raw: raw}
	}
	if m := installmentLabel.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return PeriodLabel{Kind: LabelInstallment, Number: n, Raw: raw}
	}
	if s == AnnualLabel {
		return PeriodLabel{Kind: LabelAnnual, Raw: raw}
	}
	return PeriodLabel{Kind: LabelUnrecognized, Raw: raw}
}

// Recognized reports whether the label maps to a periodicity.
func (l PeriodLabel) Recognized() bool {
	return l.Kind != LabelUnrecognized
}

// Periodicity returns the periodicity the label belongs to.
func (l PeriodLabel) Periodicity() (obligations.Periodicity, bool) {
	switch l.Kind {
	case LabelMonthly:
		return obligations.PeriodicityMonthly, true
	case LabelQuarterly:
		return obligations.PeriodicityQuarterly, true
	case LabelAnnual:
		return obligations.PeriodicityAnnual, true
	case LabelInstallment:
		return obligations.PeriodicitySpecial, true
	}
	return "", false
}

// String returns the canonical label, or the raw input when unrecognized.
func (l PeriodLabel) String() string {
	p, ok := l.Periodicity()
	if !ok {
		return l.Raw
	}
	return FormatLabel(p, l.Number)
}

// FormatLabel renders the label of the n-th period of periodicity p.
func FormatLabel(p obligations.Periodicity, n int) string {
	switch p {
	case obligations.PeriodicityMonthly:
		return fmt.Sprintf("M%02d", n)
	case obligations.PeriodicityQuarterly:
		return fmt.Sprintf("%dT", n)
	case obligations.PeriodicitySpecial:
		return fmt.Sprintf("%dP", n)
	case obligations.PeriodicityAnnual:
		return AnnualLabel
	}
	return ""
}
