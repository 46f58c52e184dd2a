package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/stageload/internal/domain"
)

func TestColumnCache(t *testing.T) {
	c := NewColumnCache()

	if _, ok := c.Get("t"); ok {
		t.Fatal("Get() on empty cache returned ok")
	}

	c.Put("t", []string{"a", "b"})
	got, ok := c.Get("t")
	if !ok || len(got) != 2 || got[0] != "a" {
		t.Fatalf("Get() = %v, %v; want [a b], true", got, ok)
	}

	// Callers must not be able to mutate the cached slice.
	got[0] = "mutated"
	again, _ := c.Get("t")
	if again[0] != "a" {
		t.Errorf("cached value mutated through returned slice: %v", again)
	}

	c.Invalidate("t")
	if _, ok := c.Get("t"); ok {
		t.Error("Get() after Invalidate returned ok")
	}

	c.Put("x", []string{"1"})
	c.Put("y", []string{"2"})
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestColumnCache_Concurrent(t *testing.T) {
	c := NewColumnCache()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table := fmt.Sprintf("t%d", i%4)
			c.Put(table, []string{"a", "b", "c"})
			c.Get(table)
			if i%5 == 0 {
				c.Invalidate(table)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 4 {
		t.Errorf("Len() = %d, want <= 4", c.Len())
	}
}

func TestFitColumns(t *testing.T) {
	cols := []string{"c1", "c2", "c3", "c4", "c5", "c6"}

	t.Run("fewer fields uses leading columns", func(t *testing.T) {
		got, err := FitColumns("staging_pm1", cols, 4)
		if err != nil {
			t.Fatalf("FitColumns() error = %v", err)
		}
		want := []string{"c1", "c2", "c3", "c4"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("FitColumns() = %v, want %v", got, want)
		}
	})

	t.Run("exact width", func(t *testing.T) {
		got, err := FitColumns("staging_pm1", cols, 6)
		if err != nil {
			t.Fatalf("FitColumns() error = %v", err)
		}
		if len(got) != 6 {
			t.Errorf("len = %d, want 6", len(got))
		}
	})

	t.Run("wider file is a schema mismatch", func(t *testing.T) {
		_, err := FitColumns("staging_pm1", cols, 7)
		var mismatch *domain.SchemaMismatch
		if !errors.As(err, &mismatch) {
			t.Fatalf("FitColumns() error = %v, want *SchemaMismatch", err)
		}
		if mismatch.FieldCount != 7 || mismatch.ColumnCount != 6 {
			t.Errorf("mismatch = %+v", mismatch)
		}
	})

	t.Run("zero fields", func(t *testing.T) {
		if _, err := FitColumns("t", cols, 0); err == nil {
			t.Error("FitColumns() expected error for zero fields")
		}
	})
}

func TestSanitizeColumns(t *testing.T) {
	got := SanitizeColumns([]string{"Order ID", " amount ", "", "Order-ID", "batch_id", "Total$"})
	want := []string{"order_id", "amount", "column_3", "order_id_2", "src_batch_id", "total"}

	if len(got) != len(want) {
		t.Fatalf("SanitizeColumns() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizeColumns_SuffixCollisions(t *testing.T) {
	tests := []struct {
		headers []string
		want    []string
	}{
		{[]string{"a_2", "a", "a"}, []string{"a_2", "a", "a_3"}},
		{[]string{"a", "a", "a_2"}, []string{"a", "a_2", "a_2_2"}},
		{[]string{"a", "a", "a"}, []string{"a", "a_2", "a_3"}},
	}
	for _, tt := range tests {
		got := SanitizeColumns(tt.headers)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("SanitizeColumns(%v) = %v, want %v", tt.headers, got, tt.want)
		}
		seen := map[string]bool{}
		for _, c := range got {
			if seen[c] {
				t.Errorf("SanitizeColumns(%v) repeats %q", tt.headers, c)
			}
			seen[c] = true
		}
	}
}

func TestSanitizeColumns_LongNames(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := SanitizeColumns([]string{long, long})

	for _, c := range got {
		if len(c) > 63 {
			t.Errorf("len(%q) = %d, want <= 63", c, len(c))
		}
	}
	if got[0] == got[1] {
		t.Errorf("duplicate long names not disambiguated: %v", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	tests := map[string]string{
		"orders":     `"orders"`,
		`we"ird`:     `"we""ird"`,
		"Mixed Case": `"Mixed Case"`,
	}
	for in, want := range tests {
		if got := QuoteIdent(in); got != want {
			t.Errorf("QuoteIdent(%q) = %s, want %s", in, got, want)
		}
	}
	if got := QuoteIdents([]string{"a", "b"}); got != `"a", "b"` {
		t.Errorf("QuoteIdents() = %s", got)
	}
}

func TestCreateTableSQL(t *testing.T) {
	got := createTableSQL("staging_pm1", []string{"c1", "c2"})
	want := `CREATE UNLOGGED TABLE IF NOT EXISTS "staging_pm1" ("c1" TEXT, "c2" TEXT, ` +
		`"batch_id" UUID, "row_number" BIGSERIAL, "loaded_at" TIMESTAMPTZ NOT NULL DEFAULT now())`
	if got != want {
		t.Errorf("createTableSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestIndexSQL(t *testing.T) {
	stmts := indexSQL("staging_pm1")
	if len(stmts) != 2 {
		t.Fatalf("indexSQL() returned %d statements, want 2", len(stmts))
	}
	if !strings.Contains(stmts[1], `WHERE "batch_id" IS NULL`) {
		t.Errorf("untagged index is not partial: %s", stmts[1])
	}

	name := indexName(strings.Repeat("t", 70), "untagged_idx")
	if len(name) > 63 {
		t.Errorf("indexName length = %d, want <= 63", len(name))
	}
}

func TestMissingColumns(t *testing.T) {
	got := missingColumns(
		[]string{"c1", "C2", "batch_id"},
		[]string{"c1", "c2", "c3", "C4", "c3"},
	)
	want := []string{"c3", "c4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("missingColumns() = %v, want %v", got, want)
	}
}

func TestIsBookkeeping(t *testing.T) {
	for _, c := range []string{"batch_id", "ROW_NUMBER", "loaded_at"} {
		if !IsBookkeeping(c) {
			t.Errorf("IsBookkeeping(%q) = false", c)
		}
	}
	if IsBookkeeping("amount") {
		t.Error("IsBookkeeping(amount) = true")
	}
}
