package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/legacy"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
)

// CalendarService generates and queries the filing calendar.
type CalendarService interface {
	GenerateCalendar(ctx context.Context, code string, fiscalYear int) ([]calendar.PeriodDefinition, error)
	GenerateAll(ctx context.Context, fiscalYear int) (calendar.GenerateResult, error)
	OpenPeriodsFor(ctx context.Context, codes []string, years []int) ([]calendar.PeriodDefinition, error)
	ImportWorkbook(ctx context.Context, r io.Reader) (calendar.ImportResult, error)
	Today() time.Time
	Location() *time.Location
}

// Reconciler runs reconciliation batches.
type Reconciler interface {
	Reconcile(ctx context.Context, scope reconcile.Scope) (reconcile.Report, error)
}

// FilingService advances filings through their lifecycle.
type FilingService interface {
	MarkSubmitted(ctx context.Context, id uuid.UUID, submittedAt time.Time, refs []string) (filings.Filing, error)
}

// AssignmentService manages client obligation assignments.
type AssignmentService interface {
	Create(ctx context.Context, in assignments.CreateInput) (assignments.Assignment, error)
	List(ctx context.Context, filter assignments.ListFilter) ([]assignments.Assignment, error)
	Deactivate(ctx context.Context, id uuid.UUID) (assignments.Assignment, error)
}

// LegacyMigrator copies the legacy schema.
type LegacyMigrator interface {
	Run(ctx context.Context, opts legacy.Options) (legacy.MigrationReport, error)
}

// Guard serialises batch runs across processes.
type Guard interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// Directory resolves client display names.
type Directory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// OpsCLI implements the fiscal command line. Commands return the process exit code.
type OpsCLI struct {
	Calendar    CalendarService
	Reconciler  Reconciler
	Filings     FilingService
	Assignments AssignmentService
	Migrator    LegacyMigrator
	Guard       Guard
	Directory   Directory
	Logger      *slog.Logger
	Stdout      io.Writer
	Stderr      io.Writer
	JSON        bool
	clock       func() time.Time
}

// WithClock overrides the clock used for default dates.
func (c *OpsCLI) WithClock(clock func() time.Time) *OpsCLI {
	if clock != nil {
		c.clock = clock
	}
	return c
}

func (c *OpsCLI) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}

// location is the calendar timezone, or UTC when no calendar is wired.
func (c *OpsCLI) location() *time.Location {
	if c.Calendar != nil {
		if loc := c.Calendar.Location(); loc != nil {
			return loc
		}
	}
	return time.UTC
}

func (c *OpsCLI) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *OpsCLI) stderr() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}

func (c *OpsCLI) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *OpsCLI) fail(command string, err error) int {
	_, _ = fmt.Fprintf(c.stderr(), "%s: %v\n", command, err)
	return 1
}

func (c *OpsCLI) printJSON(command string, v any) int {
	enc := json.NewEncoder(c.stdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return c.fail(command, fmt.Errorf("encode json: %w", err))
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var errNotConfigured = errors.New("not configured")
