package obligations

import (
	"errors"
	"fmt"
	"strings"
)

// ClientType classifies the taxpayer an obligation applies to.
type ClientType string

const (
	ClientAutonomo   ClientType = "AUTONOMO"
	ClientEmpresa    ClientType = "EMPRESA"
	ClientParticular ClientType = "PARTICULAR"
)

var (
	// ErrUnknownClientType indicates a client type outside the supported set.
	ErrUnknownClientType = errors.New("obligations: unknown client type")
	// ErrClientTypeNotAllowed is wrapped by ClientTypeNotAllowedError.
	ErrClientTypeNotAllowed = errors.New("obligations: client type not allowed for obligation")
)

// Valid reports whether t is one of the supported client types.
func (t ClientType) Valid() bool {
	switch t {
	case ClientAutonomo, ClientEmpresa, ClientParticular:
		return true
	}
	return false
}

// ParseClientType normalizes raw. A blank value yields the empty type, which
// callers treat as unclassified.
func ParseClientType(raw string) (ClientType, error) {
	t := ClientType(strings.ToUpper(strings.TrimSpace(raw)))
	if t == "" || t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownClientType, raw)
}

// ClientTypeNotAllowedError reports an assignment of an obligation to a client
// whose type the obligation does not cover.
type ClientTypeNotAllowedError struct {
	Code       string
	ClientType ClientType
	Allowed    []ClientType
}

func (e *ClientTypeNotAllowedError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, t := range e.Allowed {
		allowed[i] = string(t)
	}
	return fmt.Sprintf("obligations: %s does not apply to %s clients (allowed: %s)",
		e.Code, e.ClientType, strings.Join(allowed, ", "))
}

func (e *ClientTypeNotAllowedError) Unwrap() error { return ErrClientTypeNotAllowed }
