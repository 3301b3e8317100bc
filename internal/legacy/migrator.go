package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Source reads the legacy schema.
type Source interface {
	Models(ctx context.Context) ([]Model, error)
	Periods(ctx context.Context) ([]Period, error)
	ClientTaxes(ctx context.Context) ([]ClientTax, error)
}

// Target writes migrated records into the current schema.
type Target interface {
	SyncTypes(ctx context.Context, types []obligations.ObligationType) error
	UpsertPeriods(ctx context.Context, periods []calendar.PeriodDefinition) ([]calendar.PeriodDefinition, error)
	Ledger(ctx context.Context, table string) (map[string]string, error)
	RecordLedger(ctx context.Context, entries []LedgerEntry) error
	ApplyFiling(ctx context.Context, rec Record) (Outcome, error)
}

// LedgerEntry links a legacy row to the record it was migrated into.
type LedgerEntry struct {
	Table       string
	SourceID    string
	TargetID    string
	SourceState string
}

// Record is a client_tax row mapped onto the current model.
type Record struct {
	Ledger      LedgerEntry
	Filing      filings.Filing
	Periodicity obligations.Periodicity
	ActiveFrom  time.Time
}

// Outcome reports what ApplyFiling changed.
type Outcome struct {
	AssignmentCreated bool
	FilingCreated     bool
	FilingUpgraded    bool
}

// Options tune a migration run.
type Options struct {
	DryRun bool
}

// RowFailure records a legacy row the target rejected.
type RowFailure struct {
	SourceID string
	Err      error
}

// MigrationReport summarises a migration run. In dry runs the counts are planned writes.
type MigrationReport struct {
	DryRun          bool
	ObligationTypes int
	Periods         int
	Assignments     int
	Filings         int
	Upgraded        int
	Skipped         int
	Missing         map[string]int
	MappingErrors   []*MigrationMappingMissingError
	Failures        []RowFailure
}

func (r *MigrationReport) missing(err *MigrationMappingMissingError) {
	if r.Missing == nil {
		r.Missing = make(map[string]int)
	}
	r.Missing[err.Reason]++
	r.MappingErrors = append(r.MappingErrors, err)
}

// Migrator copies the legacy schema into the current one.
type Migrator struct {
	source  Source
	target  Target
	catalog *obligations.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewMigrator constructs a Migrator. catalog decides how legacy quarters are labelled.
func NewMigrator(source Source, target Target, catalog *obligations.Catalog, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{source: source, target: target, catalog: catalog, logger: logger, now: time.Now}
}

// WithNow overrides the clock used for submission checks and timestamps.
func (m *Migrator) WithNow(now func() time.Time) *Migrator {
	if now != nil {
		m.now = now
	}
	return m
}

type mappedPeriod struct {
	def  calendar.PeriodDefinition
	kind obligations.Periodicity
}

// Run migrates every legacy row not yet present in the ledger. Rows that cannot be
// mapped are counted per reason and skipped.
func (m *Migrator) Run(ctx context.Context, opts Options) (MigrationReport, error) {
	report := MigrationReport{DryRun: opts.DryRun}
	now := m.now().UTC()

	models, err := m.source.Models(ctx)
	if err != nil {
		return report, fmt.Errorf("legacy: read %s: %w", TableModels, err)
	}
	types, codes := m.mapModels(models, &report)

	periods, err := m.source.Periods(ctx)
	if err != nil {
		return report, fmt.Errorf("legacy: read %s: %w", TablePeriods, err)
	}
	defs, mapped := m.mapPeriods(periods, codes, &report)

	rows, err := m.source.ClientTaxes(ctx)
	if err != nil {
		return report, fmt.Errorf("legacy: read %s: %w", TableClientTax, err)
	}
	done, err := m.target.Ledger(ctx, TableClientTax)
	if err != nil {
		return report, fmt.Errorf("legacy: read ledger: %w", err)
	}
	records := m.mapClientTaxes(rows, mapped, done, now, &report)

	report.ObligationTypes = len(types)
	report.Periods = len(defs)
	if opts.DryRun {
		pairs := make(map[string]struct{})
		for _, rec := range records {
			pairs[rec.Filing.ClientID+"|"+rec.Filing.ObligationCode] = struct{}{}
		}
		report.Assignments = len(pairs)
		report.Filings = len(records)
		return report, nil
	}

	if err := m.target.SyncTypes(ctx, types); err != nil {
		return report, fmt.Errorf("legacy: sync obligation types: %w", err)
	}
	if _, err := m.target.UpsertPeriods(ctx, defs); err != nil {
		return report, fmt.Errorf("legacy: upsert periods: %w", err)
	}
	if err := m.target.RecordLedger(ctx, referenceLedger(models, codes, periods, mapped)); err != nil {
		return report, fmt.Errorf("legacy: record ledger: %w", err)
	}

	for _, rec := range records {
		outcome, err := m.target.ApplyFiling(ctx, rec)
		if err != nil {
			report.Failures = append(report.Failures, RowFailure{SourceID: rec.Ledger.SourceID, Err: err})
			continue
		}
		if outcome.AssignmentCreated {
			report.Assignments++
		}
		switch {
		case outcome.FilingCreated:
			report.Filings++
		case outcome.FilingUpgraded:
			report.Upgraded++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

func (m *Migrator) mapModels(models []Model, report *MigrationReport) ([]obligations.ObligationType, map[string]string) {
	codes := make(map[string]string, len(models))
	byCode := make(map[string]obligations.ObligationType, len(models))
	for _, model := range models {
		code := strings.ToUpper(strings.TrimSpace(model.Name))
		if code == "" {
			report.missing(&MigrationMappingMissingError{
				Table: TableModels, SourceID: model.ID, Reason: ReasonObligation, Detail: "empty model name",
			})
			continue
		}
		codes[model.ID] = code
		name := strings.TrimSpace(model.Description)
		if rule, err := m.catalog.Rule(code); err == nil {
			name = rule.Name
		}
		if name == "" {
			name = "Modelo " + code
		}
		byCode[code] = obligations.ObligationType{Code: code, Name: name}
	}
	types := make([]obligations.ObligationType, 0, len(byCode))
	for _, t := range byCode {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Code < types[j].Code })
	return types, codes
}

func (m *Migrator) mapPeriods(periods []Period, codes map[string]string, report *MigrationReport) ([]calendar.PeriodDefinition, map[string]mappedPeriod) {
	mapped := make(map[string]mappedPeriod, len(periods))
	var defs []calendar.PeriodDefinition
	seen := make(map[string]struct{})
	for _, p := range periods {
		code, ok := codes[p.ModelID]
		if !ok {
			report.missing(&MigrationMappingMissingError{
				Table: TablePeriods, SourceID: p.ID, Reason: ReasonObligation, Detail: "model " + p.ModelID,
			})
			continue
		}
		def, kind, err := m.mapPeriod(code, p)
		if err != nil {
			report.missing(&MigrationMappingMissingError{
				Table: TablePeriods, SourceID: p.ID, Reason: ReasonPeriod, Detail: err.Error(),
			})
			continue
		}
		mapped[p.ID] = mappedPeriod{def: def, kind: kind}
		if _, dup := seen[def.Key().String()]; dup {
			continue
		}
		seen[def.Key().String()] = struct{}{}
		defs = append(defs, def)
	}
	return defs, mapped
}

func (m *Migrator) mapPeriod(code string, p Period) (calendar.PeriodDefinition, obligations.Periodicity, error) {
	var rulePtr *obligations.Rule
	rule, err := m.catalog.Rule(code)
	if err == nil {
		rulePtr = &rule
	}
	if p.Year < calendar.MinFiscalYear || p.Year > calendar.MaxFiscalYear {
		return calendar.PeriodDefinition{}, "", fmt.Errorf("%s fiscal year %d", code, p.Year)
	}
	kind, index, err := MapLabel(p, rulePtr)
	if err != nil {
		return calendar.PeriodDefinition{}, "", fmt.Errorf("%s %d %w", code, p.Year, err)
	}
	if rulePtr != nil && !rulePtr.Allows(kind) {
		return calendar.PeriodDefinition{}, "", fmt.Errorf("%s %d periodicity %s", code, p.Year, kind)
	}
	start, end := civil(p.SubmissionStart), civil(p.SubmissionEnd)
	if end.Before(start) {
		return calendar.PeriodDefinition{}, "", fmt.Errorf("%s %d window ends before it starts", code, p.Year)
	}
	label := calendar.FormatLabel(kind, index)
	accrualStart, accrualEnd, _ := calendar.Accrual(kind, index, p.Year)
	return calendar.PeriodDefinition{
		ID:              calendar.PeriodID(code, p.Year, label),
		ObligationCode:  code,
		FiscalYear:      p.Year,
		Kind:            kind,
		Label:           label,
		Index:           index,
		AccrualStart:    accrualStart,
		AccrualEnd:      accrualEnd,
		SubmissionStart: start,
		SubmissionEnd:   end,
		Active:          true,
		Source:          calendar.WindowLegacy,
	}, kind, nil
}

func (m *Migrator) mapClientTaxes(rows []ClientTax, periods map[string]mappedPeriod, done map[string]string, now time.Time, report *MigrationReport) []Record {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		if _, ok := done[row.ID]; ok {
			report.Skipped++
			continue
		}
		period, ok := periods[row.PeriodID]
		if !ok {
			report.missing(&MigrationMappingMissingError{
				Table: TableClientTax, SourceID: row.ID, Reason: ReasonPeriod, Detail: "period " + row.PeriodID,
			})
			continue
		}
		state, ok := MapState(row.State)
		if !ok {
			report.missing(&MigrationMappingMissingError{
				Table: TableClientTax, SourceID: row.ID, Reason: ReasonState, Detail: fmt.Sprintf("estado %q", row.State),
			})
			continue
		}
		key := filings.Key{ClientID: strings.TrimSpace(row.ClientID), ObligationCode: period.def.ObligationCode, PeriodID: period.def.ID}
		f := filings.NewAwaiting(key, now)
		f.Notes = strings.TrimSpace(row.Notes)
		f.AttachmentRefs = filings.MergeRefs(nil, row.Files)
		if state == filings.StateSubmitted {
			submitted, err := filings.MarkSubmitted(f, submittedAt(row.UpdatedAt, now), nil, now)
			if err != nil {
				report.missing(&MigrationMappingMissingError{
					Table: TableClientTax, SourceID: row.ID, Reason: ReasonState, Detail: err.Error(),
				})
				continue
			}
			f = submitted
		}
		records = append(records, Record{
			Ledger: LedgerEntry{
				Table: TableClientTax, SourceID: row.ID, TargetID: f.ID.String(), SourceState: strings.TrimSpace(row.State),
			},
			Filing:      f,
			Periodicity: period.kind,
			ActiveFrom:  obligations.Date(period.def.FiscalYear, time.January, 1),
		})
	}
	// Earliest years first so ensured assignments start at the first migrated year.
	sort.SliceStable(records, func(i, j int) bool { return records[i].ActiveFrom.Before(records[j].ActiveFrom) })
	return records
}

func referenceLedger(models []Model, codes map[string]string, periods []Period, mapped map[string]mappedPeriod) []LedgerEntry {
	entries := make([]LedgerEntry, 0, len(models)+len(periods))
	for _, model := range models {
		if code, ok := codes[model.ID]; ok {
			entries = append(entries, LedgerEntry{Table: TableModels, SourceID: model.ID, TargetID: code})
		}
	}
	for _, p := range periods {
		if mp, ok := mapped[p.ID]; ok {
			entries = append(entries, LedgerEntry{Table: TablePeriods, SourceID: p.ID, TargetID: mp.def.ID.String()})
		}
	}
	return entries
}

func submittedAt(updatedAt, now time.Time) time.Time {
	if updatedAt.IsZero() || updatedAt.After(now) {
		return now
	}
	return updatedAt.UTC()
}

func civil(t time.Time) time.Time {
	return obligations.Date(t.Year(), t.Month(), t.Day())
}

// LogReport writes the outcome of a migration run, one line per skip reason.
func LogReport(logger *slog.Logger, r MigrationReport) {
	if logger == nil {
		return
	}
	logger.Info("legacy migration finished",
		slog.Bool("dry_run", r.DryRun),
		slog.Int("obligation_types", r.ObligationTypes),
		slog.Int("periods", r.Periods),
		slog.Int("assignments", r.Assignments),
		slog.Int("filings", r.Filings),
		slog.Int("upgraded", r.Upgraded),
		slog.Int("skipped", r.Skipped),
		slog.Int("failures", len(r.Failures)),
	)
	reasons := make([]string, 0, len(r.Missing))
	for reason := range r.Missing {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		logger.Warn("legacy rows without mapping", slog.String("reason", reason), slog.Int("count", r.Missing[reason]))
	}
	for _, err := range r.MappingErrors {
		logger.Debug("legacy row skipped", slog.Any("error", err))
	}
	for _, f := range r.Failures {
		logger.Error("legacy row failed", slog.String("source_id", f.SourceID), slog.Any("error", f.Err))
	}
}
