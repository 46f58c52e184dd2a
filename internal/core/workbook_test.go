package core

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestConvertWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Order ID", "Customer", "Amount"},
		{"  A-1 ", "Acme, Inc", 12.5},
		{},
		{`="00042"`, "Beta"},
	})

	got, err := ConvertWorkbook(data)
	if err != nil {
		t.Fatalf("ConvertWorkbook() error = %v", err)
	}
	want := "Order ID,Customer,Amount\nA-1,\"Acme, Inc\",12.5\n00042,Beta,\n"
	if string(got) != want {
		t.Errorf("ConvertWorkbook() = %q, want %q", got, want)
	}
}

func TestConvertWorkbook_Empty(t *testing.T) {
	_, err := ConvertWorkbook(buildWorkbook(t, nil))
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("ConvertWorkbook(empty) error = %v, want ErrEmptyFile", err)
	}
}

func TestConvertWorkbook_NotAWorkbook(t *testing.T) {
	if _, err := ConvertWorkbook([]byte("a,b\n1,2\n")); err == nil {
		t.Error("ConvertWorkbook(csv) should fail")
	}
}

func TestCleanCell(t *testing.T) {
	tests := map[string]string{
		"  plain  ": "plain",
		`="007"`:    "007",
		`=SUM(A1)`:  "=SUM(A1)",
		`"quoted"`:  `"quoted"`,
		"":          "",
	}
	for in, want := range tests {
		if got := CleanCell(in); got != want {
			t.Errorf("CleanCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorkbookNames(t *testing.T) {
	if !IsWorkbook("Report.XLSX") || IsWorkbook("report.csv") {
		t.Error("IsWorkbook misclassified")
	}
	if got := WorkbookCSVName("report.xlsx"); got != "report.csv" {
		t.Errorf("WorkbookCSVName() = %q", got)
	}
}
