// Package profile summarizes uploaded CSV exports into compact column
// statistics so the analysis prompt stays small regardless of file size.
package profile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	maxSamples  = 5
	maxDistinct = 200
)

// Summary describes one parsed CSV file.
type Summary struct {
	Filename  string       `json:"filename"`
	TotalRows int          `json:"total_rows"`
	Columns   []ColumnStat `json:"columns"`
}

// ColumnStat holds per-column statistics gathered in a single pass.
type ColumnStat struct {
	Name     string   `json:"name"`
	NonEmpty int      `json:"non_empty"`
	Distinct int      `json:"distinct"`
	Numeric  bool     `json:"numeric"`
	Samples  []string `json:"samples"`
}

// ColumnNames returns the header row in order.
func (s Summary) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Summarize reads an entire CSV stream and profiles every column. The
// first record is treated as the header. Rows with a different field
// count than the header are a parse error.
func Summarize(filename string, r io.Reader) (Summary, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return Summary{}, fmt.Errorf("%s: empty file", filename)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("%s: read header: %w", filename, err)
	}

	sum := Summary{Filename: filename, Columns: make([]ColumnStat, len(header))}
	distinct := make([]map[string]struct{}, len(header))
	for i, name := range header {
		sum.Columns[i] = ColumnStat{Name: strings.TrimSpace(name), Numeric: true}
		distinct[i] = make(map[string]struct{})
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("%s: row %d: %w", filename, sum.TotalRows+2, err)
		}
		sum.TotalRows++
		for i, raw := range rec {
			v := strings.TrimSpace(raw)
			col := &sum.Columns[i]
			if v == "" {
				continue
			}
			col.NonEmpty++
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				col.Numeric = false
			}
			if len(distinct[i]) < maxDistinct {
				distinct[i][v] = struct{}{}
			}
			if len(col.Samples) < maxSamples && !containsSample(col.Samples, v) {
				col.Samples = append(col.Samples, v)
			}
		}
	}

	for i := range sum.Columns {
		sum.Columns[i].Distinct = len(distinct[i])
		if sum.Columns[i].NonEmpty == 0 {
			sum.Columns[i].Numeric = false
		}
	}
	return sum, nil
}

func containsSample(samples []string, v string) bool {
	for _, s := range samples {
		if s == v {
			return true
		}
	}
	return false
}

// PromptText renders the summary as plain text for the generation prompt.
func (s Summary) PromptText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File %s: %d rows, %d columns\n", s.Filename, s.TotalRows, len(s.Columns))
	for _, c := range s.Columns {
		kind := "text"
		if c.Numeric {
			kind = "numeric"
		}
		fmt.Fprintf(&b, "- %s (%s): %d non-empty, %d distinct", c.Name, kind, c.NonEmpty, c.Distinct)
		if len(c.Samples) > 0 {
			fmt.Fprintf(&b, ", e.g. %s", strings.Join(c.Samples, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
