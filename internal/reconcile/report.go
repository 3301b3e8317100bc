package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/llave-asesoria/fiscal/internal/filings"
)

// Scope selects the clients a run covers. An empty ClientID means every client.
type Scope struct {
	ClientID string
}

// AllClients returns the scope covering every client.
func AllClients() Scope { return Scope{} }

// SingleClient returns the scope covering one client.
func SingleClient(id string) Scope { return Scope{ClientID: id} }

func (s Scope) String() string {
	if s.ClientID == "" {
		return "all"
	}
	return "client:" + s.ClientID
}

// Warning is a non-fatal finding of a run.
type Warning struct {
	ClientID       string
	ObligationCode string
	Label          string
	Err            error
}

func (w Warning) String() string {
	if w.Label != "" {
		return fmt.Sprintf("%s/%s/%s: %v", w.ClientID, w.ObligationCode, w.Label, w.Err)
	}
	return fmt.Sprintf("%s/%s: %v", w.ClientID, w.ObligationCode, w.Err)
}

// ClientFailure records a client whose changes were rolled back.
type ClientFailure struct {
	ClientID string
	Err      error
}

// Report aggregates the outcome of a reconciliation run.
type Report struct {
	Scope          Scope
	StartedAt      time.Time
	FinishedAt     time.Time
	FiscalYears    []int
	Clients        int
	Validated      int
	Deleted        int
	Created        int
	Warnings       []Warning
	Failures       []ClientFailure
	CreatedFilings []filings.Filing
	DeletedFilings []filings.Filing
}

// Duration returns how long the run took.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// LogReport writes the report through logger.
func LogReport(logger *slog.Logger, r Report) {
	if logger == nil {
		return
	}
	logger.Info("reconciliation finished",
		slog.String("scope", r.Scope.String()),
		slog.Int("clients", r.Clients),
		slog.Int("validated", r.Validated),
		slog.Int("created", r.Created),
		slog.Int("deleted", r.Deleted),
		slog.Int("warnings", len(r.Warnings)),
		slog.Int("failures", len(r.Failures)),
		slog.Duration("duration", r.Duration()),
	)
	for _, w := range r.Warnings {
		logger.Warn("reconciliation warning",
			slog.String("client_id", w.ClientID),
			slog.String("obligation", w.ObligationCode),
			slog.String("label", w.Label),
			slog.Any("error", w.Err),
		)
	}
	for _, f := range r.Failures {
		logger.Error("client reconciliation failed", slog.String("client_id", f.ClientID), slog.Any("error", f.Err))
	}
}
