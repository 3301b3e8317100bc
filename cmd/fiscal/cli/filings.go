package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// SubmitOptions describes a filings submit invocation.
type SubmitOptions struct {
	FilingID    string
	SubmittedAt string
	Refs        []string
}

// SubmitCommand marks a filing as submitted. SubmittedAt accepts RFC 3339 or a date and
// defaults to now.
func (c *OpsCLI) SubmitCommand(ctx context.Context, opts SubmitOptions) int {
	const command = "filings submit"
	if c.Filings == nil {
		return c.fail(command, errNotConfigured)
	}
	id, err := uuid.Parse(strings.TrimSpace(opts.FilingID))
	if err != nil {
		return c.fail(command, fmt.Errorf("invalid filing id %q", opts.FilingID))
	}
	at := c.now()
	if raw := strings.TrimSpace(opts.SubmittedAt); raw != "" {
		if at, err = parseInstant(raw, c.location()); err != nil {
			return c.fail(command, err)
		}
	}
	f, err := c.Filings.MarkSubmitted(ctx, id, at, opts.Refs)
	if err != nil {
		return c.fail(command, err)
	}
	if c.JSON {
		return c.printJSON(command, f)
	}
	_, _ = fmt.Fprintf(c.stdout(), "Filing %s submitted at %s with %d attachment(s)\n",
		f.ID, f.SubmittedAt.Format(time.RFC3339), len(f.AttachmentRefs))
	return 0
}

// AssignOptions describes an assignments add invocation.
type AssignOptions struct {
	ClientID    string
	Code        string
	Periodicity string
	From        string
	Until       string
	Notes       string
}

// AssignCommand subscribes a client to an obligation.
func (c *OpsCLI) AssignCommand(ctx context.Context, opts AssignOptions) int {
	const command = "assignments add"
	if c.Assignments == nil {
		return c.fail(command, errNotConfigured)
	}
	periodicity, err := obligations.ParsePeriodicity(opts.Periodicity)
	if err != nil {
		return c.fail(command, err)
	}
	from := c.now()
	if strings.TrimSpace(opts.From) != "" {
		if from, err = time.Parse(time.DateOnly, strings.TrimSpace(opts.From)); err != nil {
			return c.fail(command, fmt.Errorf("invalid --from %q", opts.From))
		}
	}
	var until *time.Time
	if strings.TrimSpace(opts.Until) != "" {
		u, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.Until))
		if err != nil {
			return c.fail(command, fmt.Errorf("invalid --until %q", opts.Until))
		}
		until = &u
	}
	a, err := c.Assignments.Create(ctx, assignments.CreateInput{
		ClientID:       strings.TrimSpace(opts.ClientID),
		ObligationCode: strings.ToUpper(strings.TrimSpace(opts.Code)),
		Periodicity:    periodicity,
		ActiveFrom:     from,
		ActiveUntil:    until,
		Notes:          opts.Notes,
	})
	if err != nil {
		var dup *assignments.DuplicateAssignmentError
		if errors.As(err, &dup) {
			return c.fail(command, fmt.Errorf("client %s already has an active %s assignment", dup.ClientID, dup.ObligationCode))
		}
		return c.fail(command, err)
	}
	if c.JSON {
		return c.printJSON(command, a)
	}
	_, _ = fmt.Fprintf(c.stdout(), "Assignment %s created\n", a.ID)
	return 0
}

// AssignmentsListCommand prints the assignments of a client, or all of them.
func (c *OpsCLI) AssignmentsListCommand(ctx context.Context, clientID string) int {
	const command = "assignments list"
	if c.Assignments == nil {
		return c.fail(command, errNotConfigured)
	}
	var filter assignments.ListFilter
	if id := strings.TrimSpace(clientID); id != "" {
		filter.ClientIDs = []string{id}
	}
	list, err := c.Assignments.List(ctx, filter)
	if err != nil {
		return c.fail(command, err)
	}
	if c.JSON {
		return c.printJSON(command, list)
	}
	renderAssignments(c.stdout(), list)
	return 0
}

// DeactivateCommand flags an assignment inactive.
func (c *OpsCLI) DeactivateCommand(ctx context.Context, rawID string) int {
	const command = "assignments deactivate"
	if c.Assignments == nil {
		return c.fail(command, errNotConfigured)
	}
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return c.fail(command, fmt.Errorf("invalid assignment id %q", rawID))
	}
	a, err := c.Assignments.Deactivate(ctx, id)
	if err != nil {
		return c.fail(command, err)
	}
	_, _ = fmt.Fprintf(c.stdout(), "Assignment %s deactivated\n", a.ID)
	return 0
}

// parseInstant reads RFC 3339 instants as given and bare dates as midnight in loc.
func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --at %q (expected RFC 3339 or YYYY-MM-DD)", raw)
}
