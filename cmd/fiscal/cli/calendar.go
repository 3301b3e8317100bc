package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/llave-asesoria/fiscal/internal/calendar"
)

// GenerateOptions selects what calendar generate writes.
type GenerateOptions struct {
	Code  string
	Years []int
}

// GenerateCommand generates the calendar of one obligation, or of every configured
// obligation when Code is empty.
func (c *OpsCLI) GenerateCommand(ctx context.Context, opts GenerateOptions) int {
	const command = "calendar generate"
	if c.Calendar == nil {
		return c.fail(command, errNotConfigured)
	}
	years := opts.Years
	if len(years) == 0 {
		years = []int{c.Calendar.Today().Year()}
	}
	code := strings.ToUpper(strings.TrimSpace(opts.Code))

	var results []calendar.GenerateResult
	for _, year := range years {
		if code != "" {
			periods, err := c.Calendar.GenerateCalendar(ctx, code, year)
			if err != nil {
				return c.fail(command, err)
			}
			results = append(results, calendar.GenerateResult{FiscalYear: year, Periods: len(periods), Codes: []string{code}})
			continue
		}
		result, err := c.Calendar.GenerateAll(ctx, year)
		if err != nil {
			return c.fail(command, err)
		}
		results = append(results, result)
	}
	if c.JSON {
		return c.printJSON(command, summarizeGenerate(results))
	}
	renderGenerate(c.stdout(), results)
	return 0
}

// OpenOptions filters calendar open.
type OpenOptions struct {
	Code  string
	Years []int
}

// OpenCommand lists the periods open for submission today.
func (c *OpsCLI) OpenCommand(ctx context.Context, opts OpenOptions) int {
	const command = "calendar open"
	if c.Calendar == nil {
		return c.fail(command, errNotConfigured)
	}
	var codes []string
	if code := strings.ToUpper(strings.TrimSpace(opts.Code)); code != "" {
		codes = []string{code}
	}
	years := opts.Years
	if len(years) == 0 {
		current := c.Calendar.Today().Year()
		years = []int{current - 1, current}
	}
	periods, err := c.Calendar.OpenPeriodsFor(ctx, codes, years)
	if err != nil {
		return c.fail(command, err)
	}
	if c.JSON {
		return c.printJSON(command, summarizePeriods(periods, c.now(), c.Calendar.Location()))
	}
	renderPeriods(c.stdout(), periods, c.now(), c.Calendar.Location())
	return 0
}

// ImportCommand applies the calendar workbook at path. Row errors are reported without
// failing the command.
func (c *OpsCLI) ImportCommand(ctx context.Context, path string) int {
	const command = "calendar import"
	if c.Calendar == nil {
		return c.fail(command, errNotConfigured)
	}
	if strings.TrimSpace(path) == "" {
		return c.fail(command, errors.New("workbook path is required"))
	}
	f, err := os.Open(path)
	if err != nil {
		return c.fail(command, err)
	}
	defer f.Close()

	result, err := c.Calendar.ImportWorkbook(ctx, f)
	if err != nil {
		return c.fail(command, err)
	}
	if c.JSON {
		return c.printJSON(command, result)
	}
	out := c.stdout()
	_, _ = fmt.Fprintf(out, "Imported %d period window(s)\n", result.Imported)
	for _, dup := range result.Duplicates {
		_, _ = fmt.Fprintf(out, "duplicate: %s\n", dup)
	}
	for _, msg := range result.Errors {
		_, _ = fmt.Fprintf(out, "error: %s\n", msg)
	}
	return 0
}
