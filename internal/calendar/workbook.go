package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// WorkbookSheet is the sheet holding calendar overrides.
const WorkbookSheet = "Periodos"

// workbookHeaderRows are skipped: column titles and an example row.
const workbookHeaderRows = 2

// ErrMissingSheet indicates the workbook has no Periodos sheet.
var ErrMissingSheet = errors.New("calendar: workbook sheet \"Periodos\" not found")

// ImportResult summarises a workbook import.
type ImportResult struct {
	Imported   int
	Errors     []string
	Duplicates []string
}

// WorkbookRow is one validated calendar override.
type WorkbookRow struct {
	Row             int
	ObligationCode  string
	Label           PeriodLabel
	FiscalYear      int
	SubmissionStart time.Time
	SubmissionEnd   time.Time
	Active          bool
	Locked          bool
}

// ReadWorkbook parses the Periodos sheet. Invalid and duplicated rows are reported in
// the result and left out of the returned rows.
func ReadWorkbook(r io.Reader) ([]WorkbookRow, ImportResult, error) {
	var result ImportResult
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, result, fmt.Errorf("calendar: open workbook: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(WorkbookSheet); err != nil || idx < 0 {
		return nil, result, ErrMissingSheet
	}
	raw, err := f.GetRows(WorkbookSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, result, fmt.Errorf("calendar: read workbook: %w", err)
	}

	seen := make(map[NaturalKey]struct{})
	var rows []WorkbookRow
	for i, cells := range raw {
		rowNumber := i + 1
		if rowNumber <= workbookHeaderRows || blankRow(cells) {
			continue
		}
		row, problems := parseWorkbookRow(rowNumber, cells)
		if len(problems) > 0 {
			result.Errors = append(result.Errors, problems...)
			continue
		}
		key := NaturalKey{ObligationCode: row.ObligationCode, FiscalYear: row.FiscalYear, Label: row.Label.String()}
		if _, dup := seen[key]; dup {
			result.Duplicates = append(result.Duplicates, fmt.Sprintf("row %d: duplicated %s", rowNumber, key))
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}
	return rows, result, nil
}

// ImportWorkbook applies the submission windows in a Periodos workbook to the stored
// calendar, generating the calendar of a code and year first when needed.
func (s *Service) ImportWorkbook(ctx context.Context, r io.Reader) (ImportResult, error) {
	rows, result, err := ReadWorkbook(r)
	if err != nil {
		return result, err
	}
	generated := make(map[string]*Lookup)
	for _, row := range rows {
		cacheKey := fmt.Sprintf("%s:%d", row.ObligationCode, row.FiscalYear)
		lookup, ok := generated[cacheKey]
		if !ok {
			periods, err := s.GenerateCalendar(ctx, row.ObligationCode, row.FiscalYear)
			if err != nil {
				if isRuleDefect(err) {
					result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row.Row, err))
					continue
				}
				return result, err
			}
			lookup = NewLookup(periods)
			generated[cacheKey] = lookup
		}
		period, err := lookup.Resolve(row.ObligationCode, row.FiscalYear, row.Label)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row.Row, err))
			continue
		}
		if period.Locked {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s: %v", row.Row, period.Key(), ErrPeriodLocked))
			continue
		}
		if err := s.store.UpdateWindow(ctx, WindowUpdate{
			ID:              period.ID,
			SubmissionStart: row.SubmissionStart,
			SubmissionEnd:   row.SubmissionEnd,
			Active:          row.Active,
			Source:          WindowImported,
			Locked:          row.Locked,
		}); err != nil {
			return result, fmt.Errorf("calendar: import row %d: %w", row.Row, err)
		}
		result.Imported++
	}
	return result, nil
}

func parseWorkbookRow(rowNumber int, cells []string) (WorkbookRow, []string) {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	row := WorkbookRow{Row: rowNumber, ObligationCode: strings.ToUpper(cell(0))}
	var problems []string
	fail := func(field, msg string) {
		problems = append(problems, fmt.Sprintf("row %d [%s]: %s", rowNumber, field, msg))
	}

	if row.ObligationCode == "" {
		fail("modelCode", "obligation code is required")
	}
	if cell(1) == "" {
		fail("period", "period label is required")
	} else if row.Label = ParseLabel(cell(1)); !row.Label.Recognized() {
		fail("period", fmt.Sprintf("unrecognized label %q", cell(1)))
	}
	year, err := strconv.Atoi(strings.TrimSuffix(cell(2), ".0"))
	if err != nil || validateYear(year) != nil {
		fail("year", fmt.Sprintf("year must be between %d and %d", MinFiscalYear, MaxFiscalYear))
	}
	row.FiscalYear = year

	var startOK, endOK bool
	if row.SubmissionStart, err = parseWorkbookDate(cell(3)); err != nil {
		fail("startDate", err.Error())
	} else {
		startOK = true
	}
	if row.SubmissionEnd, err = parseWorkbookDate(cell(4)); err != nil {
		fail("endDate", err.Error())
	} else {
		endOK = true
	}
	if startOK && endOK && row.SubmissionEnd.Before(row.SubmissionStart) {
		fail("endDate", "end date cannot be before start date")
	}
	if row.Active, err = parseWorkbookBool(cell(5), true); err != nil {
		fail("active", err.Error())
	}
	if row.Locked, err = parseWorkbookBool(cell(6), false); err != nil {
		fail("locked", err.Error())
	}
	return row, problems
}

var workbookDateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "2006-01-02T15:04:05Z07:00"}

func parseWorkbookDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("date is required")
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", v)
		}
		return civil(t), nil
	}
	for _, layout := range workbookDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return civil(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

func parseWorkbookBool(v string, def bool) (bool, error) {
	switch strings.ToUpper(v) {
	case "":
		return def, nil
	case "SI", "SÍ", "S", "YES", "Y", "TRUE", "1", "X":
		return true, nil
	case "NO", "N", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag %q", v)
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
