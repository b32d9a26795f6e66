// Package sheets exports a batch run's page entries to a Google Sheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"gradecard/internal/logger"
	"gradecard/pkg/models"
)

// Fixed leading and trailing columns; subject columns go in between.
var (
	leadingHeaders  = []string{"Página", "Ano Letivo", "Aluno(a)", "Matrícula"}
	trailingHeaders = []string{"Erro"}
)

// Service handles Google Sheets operations
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	attempts      uint
	log           zerolog.Logger
}

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		attempts:      3,
		log:           log,
	}, nil
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// Table is the header row plus one row per page entry.
type Table struct {
	Header []string
	Rows   [][]string
}

// RowsFromEntries lays entries out as a table. Subject columns are the union
// of every record's subjects in alphabetical order; a subject missing from a
// record is left blank. Error entries only fill the page and error columns.
func RowsFromEntries(entries []models.PageEntry) Table {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.Record == nil {
			continue
		}
		for subject := range e.Record.Disciplines {
			seen[subject] = struct{}{}
		}
	}
	subjects := make([]string, 0, len(seen))
	for s := range seen {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	header := append(append(append([]string{}, leadingHeaders...), subjects...), trailingHeaders...)
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		row := make([]string, len(header))
		page := e.Page
		if page == 0 {
			page = i + 1
		}
		row[0] = fmt.Sprint(page)
		if e.Record == nil {
			row[len(row)-1] = e.Error
			rows = append(rows, row)
			continue
		}
		row[1] = e.Record.SchoolYear
		row[2] = e.Record.StudentName
		row[3] = e.Record.EnrollmentID
		for j, s := range subjects {
			row[len(leadingHeaders)+j] = e.Record.Disciplines[s]
		}
		rows = append(rows, row)
	}
	return Table{Header: header, Rows: rows}
}

// WriteRecords writes entries to sheetName, creating the sheet and its header
// row when needed. Every API call is retried.
func (s *Service) WriteRecords(ctx context.Context, entries []models.PageEntry, sheetName string) error {
	const op = "WriteRecords"

	table := RowsFromEntries(entries)
	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(table.Rows)).
		Int("columns", len(table.Header)).
		Msg("Writing page records to Google Sheet")

	sheetID, created, err := s.ensureSheet(ctx, sheetName)
	if err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	lastCol := columnName(len(table.Header))
	headerRange := fmt.Sprintf("%s!A1:%s1", sheetName, lastCol)
	err = s.retry(ctx, func() error {
		_, err := s.sheetsService.Spreadsheets.Values.Update(
			s.spreadsheetID,
			headerRange,
			&sheets.ValueRange{Values: [][]interface{}{toValues(table.Header)}},
		).ValueInputOption("RAW").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: failed to write headers: %w", op, err)
	}
	if created {
		if err := s.formatHeaders(ctx, sheetID, len(table.Header)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
		}
	}

	if len(table.Rows) == 0 {
		return nil
	}
	values := make([][]interface{}, 0, len(table.Rows))
	for _, row := range table.Rows {
		values = append(values, toValues(row))
	}
	err = s.retry(ctx, func() error {
		_, err := s.sheetsService.Spreadsheets.Values.Append(
			s.spreadsheetID,
			fmt.Sprintf("%s!A:%s", sheetName, lastCol),
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().Int("rows_written", len(values)).Msg("Successfully wrote page records to Google Sheet")
	return nil
}

// ensureSheet returns the sheet's ID, adding the sheet if it does not exist.
func (s *Service) ensureSheet(ctx context.Context, sheetName string) (int64, bool, error) {
	var spreadsheet *sheets.Spreadsheet
	err := s.retry(ctx, func() error {
		var err error
		spreadsheet, err = s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, false, nil
		}
	}

	s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
		},
	}
	var resp *sheets.BatchUpdateSpreadsheetResponse
	err = s.retry(ctx, func() error {
		var err error
		resp, err = s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sheet: %w", err)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, true, nil
}

// formatHeaders makes the header row bold and auto-sizes the columns.
func (s *Service) formatHeaders(ctx context.Context, sheetID int64, columns int) error {
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}

func (s *Service) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn().Err(err).Uint("attempt", n+1).Msg("Sheets call failed, retrying")
		}),
	)
}

// columnName returns the A1 letter of the n-th (1-based) column.
func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

func toValues(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
