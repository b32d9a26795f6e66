package sheets

import (
	"reflect"
	"testing"

	"gradecard/pkg/models"
)

func TestRowsFromEntries(t *testing.T) {
	first := models.NewPageRecord()
	first.SchoolYear = "2024"
	first.StudentName = "MARIA SILVA"
	first.EnrollmentID = "123456"
	first.Disciplines["MATEMATICA"] = "8.5"
	first.Disciplines["ARTE"] = models.NotAvailable

	third := models.NewPageRecord()
	third.Disciplines["HISTORIA"] = "10"

	table := RowsFromEntries([]models.PageEntry{
		{Page: 1, Record: first},
		{Page: 2, Error: "page 2: broken scan"},
		{Record: third},
	})

	wantHeader := []string{"Página", "Ano Letivo", "Aluno(a)", "Matrícula", "ARTE", "HISTORIA", "MATEMATICA", "Erro"}
	if !reflect.DeepEqual(table.Header, wantHeader) {
		t.Errorf("Header = %v, want %v", table.Header, wantHeader)
	}
	wantRows := [][]string{
		{"1", "2024", "MARIA SILVA", "123456", "N/A", "", "8.5", ""},
		{"2", "", "", "", "", "", "", "page 2: broken scan"},
		{"3", "N/A", "N/A", "N/A", "", "10", "", ""},
	}
	if !reflect.DeepEqual(table.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", table.Rows, wantRows)
	}
}

func TestRowsFromNoEntries(t *testing.T) {
	table := RowsFromEntries(nil)
	if len(table.Rows) != 0 || len(table.Header) != 5 {
		t.Errorf("table = %+v", table)
	}
}

func TestColumnName(t *testing.T) {
	for n, want := range map[int]string{1: "A", 8: "H", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"} {
		if got := columnName(n); got != want {
			t.Errorf("columnName(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	if err != nil || id != "1AbC-d_9" {
		t.Errorf("extractSpreadsheetID() = %q, %v", id, err)
	}
	if _, err := extractSpreadsheetID("https://example.com/"); err == nil {
		t.Error("extractSpreadsheetID() accepted a non-sheets URL")
	}
}
