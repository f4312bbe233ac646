package tabular

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ColumnSchema struct {
	Name    string
	Type    Type
	NonNull int
	Missing int
}

// Schema describes every column in header order.
func (f *Frame) Schema() []ColumnSchema {
	out := make([]ColumnSchema, len(f.columns))
	for c, name := range f.columns {
		missing := f.missingIn(c)
		out[c] = ColumnSchema{
			Name:    name,
			Type:    f.types[c],
			NonNull: f.Len() - missing,
			Missing: missing,
		}
	}
	return out
}

func (f *Frame) missingIn(c int) int {
	n := 0
	for _, na := range f.df.Col(f.columns[c]).IsNaN() {
		if na {
			n++
		}
	}
	return n
}

// Page is one slice of records. Page numbers start at 1.
type Page struct {
	Number     int
	Size       int
	TotalRows  int
	TotalPages int
	Records    []map[string]any
}

// Page returns records for the requested page. Pages past the end are empty
// rather than an error.
func (f *Frame) Page(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = 1
	}
	total := f.Len()
	pages := total / size
	if total%size != 0 {
		pages++
	}
	p := Page{
		Number:     number,
		Size:       size,
		TotalRows:  total,
		TotalPages: pages,
		Records:    []map[string]any{},
	}
	// compare page indexes first so huge page numbers cannot overflow the offset
	if total == 0 || number-1 > (total-1)/size {
		return p
	}
	start := (number - 1) * size
	p.Records = f.rows(span(start, min(start+size, total)))
	return p
}

type Agg string

const (
	AggNone  Agg = "none"
	AggSum   Agg = "sum"
	AggAvg   Agg = "avg"
	AggCount Agg = "count"
	AggMin   Agg = "min"
	AggMax   Agg = "max"
)

func ParseAgg(s string) (Agg, error) {
	switch a := Agg(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AggNone, nil
	case AggNone, AggSum, AggAvg, AggCount, AggMin, AggMax:
		return a, nil
	}
	return "", ErrUnknownAgg
}

// Series is a chart-ready pair of label and value slices of equal length.
type Series struct {
	Labels []string
	Values []float64
}

// Chart builds a series of y against x. With AggNone every row with a numeric
// y becomes a point; otherwise rows are grouped by x in first-seen order and
// each group's y values are reduced with gota. The result is capped at limit
// points.
func (f *Frame) Chart(x, y string, agg Agg, limit int) (Series, error) {
	xi, ok := f.ColumnIndex(x)
	if !ok {
		return Series{}, ErrUnknownColumn
	}
	yi, ok := f.ColumnIndex(y)
	if !ok {
		return Series{}, ErrUnknownColumn
	}
	if agg != AggCount && !f.types[yi].Numeric() {
		return Series{}, ErrNotNumeric
	}

	ys := f.df.Col(y)
	n := f.Len()
	s := Series{Labels: []string{}, Values: []float64{}}
	if agg == AggNone {
		for r := 0; r < n && len(s.Labels) < limit; r++ {
			e := ys.Elem(r)
			if e.IsNA() {
				continue
			}
			s.Labels = append(s.Labels, f.label(r, xi))
			s.Values = append(s.Values, e.Float())
		}
		return s, nil
	}

	// gota's GroupBy keys a map, so first-seen order is tracked here
	var order []string
	present := make(map[string][]int)
	for r := 0; r < n; r++ {
		key := f.label(r, xi)
		if _, seen := present[key]; !seen {
			order = append(order, key)
			present[key] = []int{}
		}
		if !ys.Elem(r).IsNA() {
			present[key] = append(present[key], r)
		}
	}

	for _, key := range order {
		if len(s.Labels) == limit {
			break
		}
		idx := present[key]
		var v float64
		switch agg {
		case AggCount:
			v = float64(len(idx))
		case AggSum:
			if len(idx) > 0 {
				v = ys.Subset(idx).Sum()
			}
		case AggAvg, AggMin, AggMax:
			if len(idx) == 0 {
				continue
			}
			group := ys.Subset(idx)
			switch agg {
			case AggAvg:
				v = group.Mean()
			case AggMin:
				v = group.Min()
			default:
				v = group.Max()
			}
		default:
			return Series{}, ErrUnknownAgg
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return Series{}, fmt.Errorf("%w: %s of %s for %q", ErrNonFinite, agg, y, key)
		}
		s.Labels = append(s.Labels, key)
		s.Values = append(s.Values, v)
	}
	return s, nil
}

// label renders a cell as a group key; missing cells group under "".
func (f *Frame) label(r, c int) string {
	e := f.df.Elem(r, c)
	if e.IsNA() {
		return ""
	}
	switch f.types[c] {
	case TypeInteger:
		if n, err := e.Int(); err == nil {
			return strconv.Itoa(n)
		}
	case TypeFloat:
		return strconv.FormatFloat(e.Float(), 'g', -1, 64)
	}
	return e.String()
}

// Summary is the per-file profile shown on the dashboard.
type Summary struct {
	TotalRows      int
	TotalColumns   int
	NumericColumns []string
	TextColumns    []string
	MissingData    map[string]int
	Sample         []map[string]any
	Columns        []string
}

// Summarize profiles the frame and includes up to sample leading records.
// Boolean columns are neither numeric nor text and are omitted from both lists.
func (f *Frame) Summarize(sample int) Summary {
	s := Summary{
		TotalRows:      f.Len(),
		TotalColumns:   len(f.columns),
		NumericColumns: []string{},
		TextColumns:    []string{},
		MissingData:    make(map[string]int, len(f.columns)),
		Sample:         f.Head(sample),
		Columns:        f.Columns(),
	}
	for c, name := range f.columns {
		switch t := f.types[c]; {
		case t.Numeric():
			s.NumericColumns = append(s.NumericColumns, name)
		case t == TypeText:
			s.TextColumns = append(s.TextColumns, name)
		}
		s.MissingData[name] = f.missingIn(c)
	}
	return s
}
