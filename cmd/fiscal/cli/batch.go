package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/platform/cache"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
)

// BatchLockKey guards the default batch against concurrent runs.
const BatchLockKey = "fiscal:batch"

// BatchCommand generates the calendars of the current and next fiscal year and then
// reconciles every client. Only fatal errors produce a non-zero exit code.
func (c *OpsCLI) BatchCommand(ctx context.Context) int {
	const command = "fiscal"
	if c.Calendar == nil || c.Reconciler == nil {
		return c.fail(command, errNotConfigured)
	}

	var (
		generated []calendar.GenerateResult
		report    reconcile.Report
	)
	run := func(ctx context.Context) error {
		current := c.Calendar.Today().Year()
		for _, year := range []int{current, current + 1} {
			result, err := c.Calendar.GenerateAll(ctx, year)
			if err != nil {
				return fmt.Errorf("generate %d: %w", year, err)
			}
			generated = append(generated, result)
		}
		var err error
		report, err = c.Reconciler.Reconcile(ctx, reconcile.AllClients())
		return err
	}

	var err error
	if c.Guard != nil {
		err = c.Guard.Do(ctx, BatchLockKey, run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, cache.ErrLocked) {
		_, _ = fmt.Fprintln(c.stderr(), "fiscal: another batch is running, skipping")
		return 0
	}
	if err != nil {
		return c.fail(command, err)
	}

	reconcile.LogReport(c.logger(), report)
	if c.JSON {
		return c.printJSON(command, batchSummary{Calendars: summarizeGenerate(generated), Reconcile: summarizeReport(report)})
	}
	renderGenerate(c.stdout(), generated)
	c.renderReport(ctx, report)
	return 0
}

type batchSummary struct {
	Calendars []generateSummary `json:"calendars"`
	Reconcile reportSummary     `json:"reconcile"`
}

// ReconcileOptions scopes a reconcile command.
type ReconcileOptions struct {
	ClientID string
}

// ReconcileCommand reconciles one client or all of them.
func (c *OpsCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	const command = "reconcile"
	if c.Reconciler == nil {
		return c.fail(command, errNotConfigured)
	}
	scope := reconcile.AllClients()
	if opts.ClientID != "" {
		scope = reconcile.SingleClient(opts.ClientID)
	}
	report, err := c.Reconciler.Reconcile(ctx, scope)
	if err != nil {
		return c.fail(command, err)
	}
	reconcile.LogReport(c.logger(), report)
	if c.JSON {
		return c.printJSON(command, summarizeReport(report))
	}
	c.renderReport(ctx, report)
	return 0
}
