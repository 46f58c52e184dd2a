package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/google/uuid"
)

func TestBuildCopyCommand(t *testing.T) {
	tests := []struct {
		name string
		req  LoadRequest
		want string
	}{
		{
			name: "csv with header",
			req:  LoadRequest{Table: "staging_orders_1a2b3c4d", Columns: []string{"id", "amount"}, Format: domain.FormatCSV, HasHeaders: true},
			want: `COPY "staging_orders_1a2b3c4d" ("id", "amount") FROM STDIN WITH (FORMAT csv, DELIMITER ',', HEADER true, NULL '')`,
		},
		{
			name: "tsv headerless",
			req:  LoadRequest{Table: "staging_pm1", Columns: []string{"c1", "c2", "c3"}, Format: domain.FormatTSV},
			want: `COPY "staging_pm1" ("c1", "c2", "c3") FROM STDIN WITH (FORMAT csv, DELIMITER E'\t', QUOTE E'\x01', HEADER false, NULL '')`,
		},
		{
			name: "quoted identifiers",
			req:  LoadRequest{Table: `odd"name`, Columns: []string{`a"b`}, Format: domain.FormatCSV},
			want: `COPY "odd""name" ("a""b") FROM STDIN WITH (FORMAT csv, DELIMITER ',', HEADER false, NULL '')`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildCopyCommand(tt.req); got != tt.want {
				t.Errorf("BuildCopyCommand() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestTagSQL(t *testing.T) {
	want := `UPDATE "staging_pm1" SET "batch_id" = $1 WHERE "batch_id" IS NULL`
	if got := tagSQL("staging_pm1"); got != want {
		t.Errorf("tagSQL() = %s, want %s", got, want)
	}
}

func TestLoad_NoColumns(t *testing.T) {
	l := New(nil)
	_, err := l.Load(context.Background(), nil, LoadRequest{Table: "t", BatchID: uuid.New()})

	var lf *domain.LoadFailure
	if !errors.As(err, &lf) {
		t.Fatalf("expected LoadFailure, got %v", err)
	}
	if lf.Table != "t" {
		t.Errorf("Table = %q, want t", lf.Table)
	}
}

func TestFirstRecord(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format domain.Format
		want   []string
	}{
		{"csv quoted comma", "id,\"last, first\",x\n1,2,3\n", domain.FormatCSV, []string{"id", "last, first", "x"}},
		{"csv bom and crlf", "\ufeffa,b\r\n", domain.FormatCSV, []string{"a", "b"}},
		{"tsv keeps quotes", "a\t\"b\tc\n", domain.FormatTSV, []string{"a", "\"b", "c"}},
		{"tsv trailing empty", "a\tb\t\n", domain.FormatTSV, []string{"a", "b", ""}},
		{"no terminator", "a,b,c", domain.FormatCSV, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstRecord([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("FirstRecord() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FirstRecord() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := FieldCount([]byte("\n"), domain.FormatTSV); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("FieldCount(empty line) error = %v, want ErrEmptyInput", err)
	}
	if n, _ := FieldCount([]byte("a\tb\tc\td\n"), domain.FormatTSV); n != 4 {
		t.Errorf("FieldCount() = %d, want 4", n)
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		data       string
		hasHeaders bool
		want       int64
	}{
		{"", false, 0},
		{"a\n", false, 1},
		{"a\nb", false, 2},
		{"h\na\nb\n", true, 2},
		{"h", true, 0},
	}
	for _, tt := range tests {
		if got := CountLines([]byte(tt.data), tt.hasHeaders); got != tt.want {
			t.Errorf("CountLines(%q, %t) = %d, want %d", tt.data, tt.hasHeaders, got, tt.want)
		}
	}
}
