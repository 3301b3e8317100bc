package legacy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Source tables of the legacy schema, as recorded in the migration ledger.
const (
	TableModels     = "tax_models"
	TablePeriods    = "tax_periods"
	TableClientTax  = "client_tax"
	migrationNotice = "migrated from legacy client_tax"
)

// Model is a row of tax_models. Name carries the obligation code.
type Model struct {
	ID          string
	Name        string
	Description string
}

// Period is a row of tax_periods.
type Period struct {
	ID              string
	ModelID         string
	Year            int
	Quarter         *int
	Month           *int
	SubmissionStart time.Time
	SubmissionEnd   time.Time
}

// ClientTax is a row of client_tax together with the paths of its tax_files.
type ClientTax struct {
	ID        string
	ClientID  string
	PeriodID  string
	State     string
	Notes     string
	UpdatedAt time.Time
	Files     []string
}

// Mapping failure reasons.
const (
	ReasonObligation = "obligation"
	ReasonPeriod     = "period"
	ReasonState      = "state"
)

// ErrMappingMissing marks legacy rows that cannot be mapped to the current model.
var ErrMappingMissing = errors.New("legacy: mapping missing")

// MigrationMappingMissingError describes a legacy row that was skipped.
type MigrationMappingMissingError struct {
	Table    string
	SourceID string
	Reason   string
	Detail   string
}

func (e *MigrationMappingMissingError) Error() string {
	return fmt.Sprintf("legacy: %s %s: no %s mapping for %s", e.Table, e.SourceID, e.Reason, e.Detail)
}

func (e *MigrationMappingMissingError) Unwrap() error { return ErrMappingMissing }

// MapState translates a legacy estado into a filing state.
func MapState(raw string) (filings.State, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "PENDIENTE", "CALCULATED", "CALCULADO":
		return filings.StateAwaitingSubmission, true
	case "DONE", "REALIZADO":
		return filings.StateSubmitted, true
	}
	return "", false
}

// MapLabel derives the period label of a legacy period. Quarters of obligations that
// are only filed annually carry the presentation quarter and become ANUAL.
func MapLabel(p Period, rule *obligations.Rule) (obligations.Periodicity, int, error) {
	switch {
	case p.Month != nil:
		if *p.Month < 1 || *p.Month > 12 {
			return "", 0, fmt.Errorf("month %d", *p.Month)
		}
		return obligations.PeriodicityMonthly, *p.Month, nil
	case p.Quarter != nil && (rule == nil || !rule.AnnualOnly()):
		if *p.Quarter < 1 || *p.Quarter > 4 {
			return "", 0, fmt.Errorf("quarter %d", *p.Quarter)
		}
		return obligations.PeriodicityQuarterly, *p.Quarter, nil
	}
	return obligations.PeriodicityAnnual, 0, nil
}
