package tsdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Querier runs one time-series query.
type Querier interface {
	Query(ctx context.Context, q Query) (Result, error)
}

// Query selects Fields from Measurement over [Start, End).
type Query struct {
	Measurement string
	Fields      []string
	Start       time.Time
	End         time.Time
	// Where is an optional extra predicate ANDed with the time range.
	Where string
	// GroupBy is an optional tag list, e.g. "ant_num".
	GroupBy string
}

// InfluxQL renders q as an InfluxQL SELECT with millisecond time bounds.
func (q Query) InfluxQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.Fields, ","))
	fmt.Fprintf(&b, " FROM %q", q.Measurement)
	fmt.Fprintf(&b, " WHERE time >= %dms AND time < %dms", q.Start.UnixMilli(), q.End.UnixMilli())
	if q.Where != "" {
		fmt.Fprintf(&b, " AND (%s)", q.Where)
	}
	if q.GroupBy != "" {
		fmt.Fprintf(&b, " GROUP BY %s", q.GroupBy)
	}
	return b.String()
}

// Result maps a result-set (series) name to its table.
type Result map[string]*Table

// Rows returns the total number of rows across all tables.
func (r Result) Rows() int {
	n := 0
	for _, t := range r {
		n += len(t.Values)
	}
	return n
}

// Table is one series: named columns and rows of JSON scalars
// (float64, string, bool or nil).
type Table struct {
	Name    string
	Columns []string
	Values  [][]any
}

// index returns the position of column name, or -1.
func (t *Table) index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Floats returns the named columns for every row where all of them are
// numeric. Row i of the result holds one value per requested column.
func (t *Table) Floats(cols ...string) ([][]float64, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("tsdb: %s: no column %q", t.Name, c)
		}
	}
	out := make([][]float64, 0, len(t.Values))
rows:
	for _, row := range t.Values {
		vals := make([]float64, len(cols))
		for i, j := range idx {
			if j >= len(row) {
				continue rows
			}
			f, ok := toFloat(row[j])
			if !ok {
				continue rows
			}
			vals[i] = f
		}
		out = append(out, vals)
	}
	return out, nil
}

// Column returns the numeric values of one column, skipping nulls.
func (t *Table) Column(name string) ([]float64, error) {
	rows, err := t.Floats(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		// Tags such as ant_num arrive as strings.
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
