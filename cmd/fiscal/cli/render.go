package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/clients"
	"github.com/llave-asesoria/fiscal/internal/legacy"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
)

type generateSummary struct {
	FiscalYear  int               `json:"fiscal_year"`
	Obligations int               `json:"obligations"`
	Periods     int               `json:"periods"`
	Skipped     map[string]string `json:"skipped,omitempty"`
}

func summarizeGenerate(results []calendar.GenerateResult) []generateSummary {
	out := make([]generateSummary, 0, len(results))
	for _, r := range results {
		s := generateSummary{FiscalYear: r.FiscalYear, Obligations: len(r.Codes), Periods: r.Periods}
		if len(r.Failures) > 0 {
			s.Skipped = make(map[string]string, len(r.Failures))
			for code, err := range r.Failures {
				s.Skipped[code] = errString(err)
			}
		}
		out = append(out, s)
	}
	return out
}

func renderGenerate(out io.Writer, results []calendar.GenerateResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Fiscal year", "Obligations", "Periods", "Skipped"})
	for _, r := range results {
		tw.AppendRow(table.Row{r.FiscalYear, len(r.Codes), r.Periods, len(r.Failures)})
	}
	tw.Render()
	for _, r := range results {
		codes := make([]string, 0, len(r.Failures))
		for code := range r.Failures {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			_, _ = fmt.Fprintf(out, "skipped %s %d: %v\n", code, r.FiscalYear, r.Failures[code])
		}
	}
}

type periodSummary struct {
	ID              string `json:"id"`
	ObligationCode  string `json:"obligation_code"`
	FiscalYear      int    `json:"fiscal_year"`
	Label           string `json:"label"`
	SubmissionStart string `json:"submission_start"`
	SubmissionEnd   string `json:"submission_end"`
	Status          string `json:"status"`
	DaysLeft        int    `json:"days_left"`
}

func summarizePeriods(periods []calendar.PeriodDefinition, now time.Time, loc *time.Location) []periodSummary {
	out := make([]periodSummary, 0, len(periods))
	for _, p := range periods {
		out = append(out, periodSummary{
			ID:              p.ID.String(),
			ObligationCode:  p.ObligationCode,
			FiscalYear:      p.FiscalYear,
			Label:           p.Label,
			SubmissionStart: p.SubmissionStart.Format(time.DateOnly),
			SubmissionEnd:   p.SubmissionEnd.Format(time.DateOnly),
			Status:          string(calendar.StatusAt(p, now, loc)),
			DaysLeft:        calendar.DaysToEnd(p, now, loc),
		})
	}
	return out
}

func renderPeriods(out io.Writer, periods []calendar.PeriodDefinition, now time.Time, loc *time.Location) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Obligation", "Year", "Label", "Opens", "Closes", "Status", "Days left"})
	for _, s := range summarizePeriods(periods, now, loc) {
		tw.AppendRow(table.Row{s.ObligationCode, s.FiscalYear, s.Label, s.SubmissionStart, s.SubmissionEnd, s.Status, s.DaysLeft})
	}
	tw.Render()
}

type reportSummary struct {
	Scope       string            `json:"scope"`
	FiscalYears []int             `json:"fiscal_years"`
	Clients     int               `json:"clients"`
	Validated   int               `json:"validated"`
	Created     int               `json:"created"`
	Deleted     int               `json:"deleted"`
	Warnings    []string          `json:"warnings"`
	Failures    map[string]string `json:"failures"`
	Duration    string            `json:"duration"`
}

func summarizeReport(r reconcile.Report) reportSummary {
	s := reportSummary{
		Scope:       r.Scope.String(),
		FiscalYears: r.FiscalYears,
		Clients:     r.Clients,
		Validated:   r.Validated,
		Created:     r.Created,
		Deleted:     r.Deleted,
		Warnings:    make([]string, 0, len(r.Warnings)),
		Failures:    make(map[string]string, len(r.Failures)),
		Duration:    r.Duration().String(),
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	for _, f := range r.Failures {
		s.Failures[f.ClientID] = errString(f.Err)
	}
	return s
}

func (c *OpsCLI) renderReport(ctx context.Context, r reconcile.Report) {
	out := c.stdout()
	_, _ = fmt.Fprintf(out, "Reconciled %d client(s) for %v in %s\n", r.Clients, r.FiscalYears, r.Duration().Round(time.Millisecond))

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Validated", "Created", "Deleted", "Warnings", "Failures"})
	tw.AppendRow(table.Row{r.Validated, r.Created, r.Deleted, len(r.Warnings), len(r.Failures)})
	tw.Render()

	if len(r.Failures) == 0 && len(r.Warnings) == 0 {
		return
	}
	names := c.clientNames(ctx, r)
	issues := table.NewWriter()
	issues.SetOutputMirror(out)
	issues.AppendHeader(table.Row{"Client", "Kind", "Detail"})
	for _, f := range r.Failures {
		issues.AppendRow(table.Row{clients.Name(names, f.ClientID), "failure", errString(f.Err)})
	}
	for _, w := range r.Warnings {
		issues.AppendRow(table.Row{clients.Name(names, w.ClientID), "warning", w.String()})
	}
	issues.Render()
}

func (c *OpsCLI) clientNames(ctx context.Context, r reconcile.Report) map[string]string {
	if c.Directory == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok || id == "" {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, f := range r.Failures {
		add(f.ClientID)
	}
	for _, w := range r.Warnings {
		add(w.ClientID)
	}
	names, err := c.Directory.DisplayNames(ctx, ids)
	if err != nil {
		c.logger().Warn("resolve client names", "error", err)
		return nil
	}
	return names
}

func renderAssignments(out io.Writer, list []assignments.Assignment) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"ID", "Client", "Obligation", "Periodicity", "From", "Until", "Active"})
	for _, a := range list {
		until := ""
		if a.ActiveUntil != nil {
			until = a.ActiveUntil.Format(time.DateOnly)
		}
		tw.AppendRow(table.Row{a.ID, a.ClientID, a.ObligationCode, a.Periodicity, a.ActiveFrom.Format(time.DateOnly), until, a.IsActive})
	}
	tw.Render()
}

type migrationSummary struct {
	DryRun          bool           `json:"dry_run"`
	ObligationTypes int            `json:"obligation_types"`
	Periods         int            `json:"periods"`
	Assignments     int            `json:"assignments"`
	Filings         int            `json:"filings"`
	Upgraded        int            `json:"upgraded"`
	Skipped         int            `json:"skipped"`
	Missing         map[string]int `json:"missing"`
	Failures        int            `json:"failures"`
}

func summarizeMigration(r legacy.MigrationReport) migrationSummary {
	missing := r.Missing
	if missing == nil {
		missing = map[string]int{}
	}
	return migrationSummary{
		DryRun:          r.DryRun,
		ObligationTypes: r.ObligationTypes,
		Periods:         r.Periods,
		Assignments:     r.Assignments,
		Filings:         r.Filings,
		Upgraded:        r.Upgraded,
		Skipped:         r.Skipped,
		Missing:         missing,
		Failures:        len(r.Failures),
	}
}

func renderMigration(out io.Writer, r legacy.MigrationReport) {
	if r.DryRun {
		_, _ = fmt.Fprintln(out, "Dry run: nothing was written")
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Types", "Periods", "Assignments", "Filings", "Upgraded", "Skipped", "Failures"})
	tw.AppendRow(table.Row{r.ObligationTypes, r.Periods, r.Assignments, r.Filings, r.Upgraded, r.Skipped, len(r.Failures)})
	tw.Render()

	if len(r.Missing) == 0 {
		return
	}
	reasons := make([]string, 0, len(r.Missing))
	for reason := range r.Missing {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	missing := table.NewWriter()
	missing.SetOutputMirror(out)
	missing.AppendHeader(table.Row{"Missing mapping", "Rows"})
	for _, reason := range reasons {
		missing.AppendRow(table.Row{reason, r.Missing[reason]})
	}
	missing.Render()
}
