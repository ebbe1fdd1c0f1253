package profile

import (
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	csvText := "Permit Number,Type,Valuation\n" +
		"BP-001,Building,12500\n" +
		"BP-002,Electrical,\n" +
		"BP-003,Building,8000\n"
	sum, err := Summarize("permits.csv", strings.NewReader(csvText))
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalRows != 3 {
		t.Fatalf("rows = %d, want 3", sum.TotalRows)
	}
	cols := sum.ColumnNames()
	want := []string{"Permit Number", "Type", "Valuation"}
	if len(cols) != 3 || cols[0] != want[0] || cols[1] != want[1] || cols[2] != want[2] {
		t.Fatalf("columns = %v", cols)
	}
	typ := sum.Columns[1]
	if typ.NonEmpty != 3 || typ.Distinct != 2 || typ.Numeric {
		t.Fatalf("type column stats: %+v", typ)
	}
	val := sum.Columns[2]
	if val.NonEmpty != 2 || !val.Numeric {
		t.Fatalf("valuation column stats: %+v", val)
	}
}

func TestSummarizeEmptyFile(t *testing.T) {
	if _, err := Summarize("empty.csv", strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestSummarizeRaggedRow(t *testing.T) {
	_, err := Summarize("bad.csv", strings.NewReader("A,B\n1,2,3\n"))
	if err == nil {
		t.Fatal("expected error for ragged row")
	}
}

func TestPromptText(t *testing.T) {
	sum, err := Summarize("licenses.csv", strings.NewReader("Name,Fee\nAcme,50\n"))
	if err != nil {
		t.Fatal(err)
	}
	text := sum.PromptText()
	if !strings.Contains(text, "licenses.csv") || !strings.Contains(text, "1 rows") {
		t.Fatalf("prompt text missing header: %q", text)
	}
	if !strings.Contains(text, "Fee (numeric)") {
		t.Fatalf("prompt text missing column line: %q", text)
	}
}
