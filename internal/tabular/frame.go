// Package tabular loads CSV documents into a gota data frame and answers the
// analytical questions the API exposes: column typing, missing-value counts,
// pagination and simple chart series.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	ErrEmpty         = errors.New("csv has no header row")
	ErrMalformed     = errors.New("malformed csv")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotNumeric    = errors.New("column is not numeric")
	ErrUnknownAgg    = errors.New("unknown aggregation")
	ErrNonFinite     = errors.New("aggregate is not a finite number")
)

type Type string

const (
	TypeEmpty   Type = "empty"
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
	TypeBoolean Type = "boolean"
	TypeText    Type = "text"
)

// Numeric reports whether values of the type are numbers. All-missing columns
// count as numeric, the same way a column of NaN would.
func (t Type) Numeric() bool {
	return t == TypeInteger || t == TypeFloat || t == TypeEmpty
}

// seriesType is the gota storage type; all-missing columns are held as float NaN.
func (t Type) seriesType() series.Type {
	switch t {
	case TypeInteger:
		return series.Int
	case TypeFloat, TypeEmpty:
		return series.Float
	case TypeBoolean:
		return series.Bool
	}
	return series.String
}

// naCell is how gota spells a missing cell when loading strings.
const naCell = "NaN"

// missing markers, compared after trimming
var naValues = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"None": {},
	"<NA>": {},
	"#N/A": {},
}

func isMissing(v string) bool {
	_, ok := naValues[strings.TrimSpace(v)]
	return ok
}

// Frame is an immutable parsed CSV document.
type Frame struct {
	df      dataframe.DataFrame
	columns []string
	types   []Type
}

// Parse reads a CSV document with a header row. Short rows are padded with
// missing cells; rows with more fields than the header are rejected. Records
// are read here rather than through dataframe.ReadCSV, which fails on ragged
// rows and on header-only documents.
func Parse(data []byte) (*Frame, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	columns := normalizeHeader(header)

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(rec) > len(columns) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: expected %d fields, saw %d", ErrMalformed, line, len(columns), len(rec))
		}
		for len(rec) < len(columns) {
			rec = append(rec, "")
		}
		rows = append(rows, rec)
	}

	f := &Frame{columns: columns, types: make([]Type, len(columns))}
	cols := make([]series.Series, len(columns))
	for c, name := range columns {
		cells := make([]string, len(rows))
		for i, rec := range rows {
			cells[i] = strings.TrimSpace(rec[c])
			if isMissing(cells[i]) {
				cells[i] = naCell
			}
		}
		f.types[c] = inferColumn(cells)
		cols[c] = series.New(cells, f.types[c].seriesType(), name)
	}
	f.df = dataframe.New(cols...)
	if err := f.df.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}

// normalizeHeader names blank headers "Unnamed: i" and suffixes duplicates with ".n".
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if _, dup := seen[name]; dup {
			base := name
			for {
				seen[base]++
				name = base + "." + strconv.Itoa(seen[base])
				if _, taken := seen[name]; !taken {
					break
				}
			}
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

func (f *Frame) Len() int { return f.df.Nrow() }

func (f *Frame) Types() []Type {
	return append([]Type(nil), f.types...)
}

// ColumnIndex returns the position of name in the header.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	for i, c := range f.columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// inferColumn types a column from its cleaned cells. Unlike gota's own
// detection it trims, accepts any letter case for booleans, refuses to call a
// mix of integers and booleans boolean, and reports all-missing columns as empty.
func inferColumn(cells []string) Type {
	allInt, allFloat, allBool := true, true, true
	seen := false
	for _, v := range cells {
		if v == naCell {
			continue
		}
		seen = true
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, ok := parseFloat(v); !ok {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
		if !allInt && !allFloat && !allBool {
			return TypeText
		}
	}
	switch {
	case !seen:
		return TypeEmpty
	case allInt:
		return TypeInteger
	case allFloat:
		return TypeFloat
	case allBool:
		return TypeBoolean
	default:
		return TypeText
	}
}

// parseFloat rejects NaN and infinities, which cannot be encoded as JSON numbers.
func parseFloat(v string) (float64, bool) {
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// value converts a cell according to its column type; missing cells become nil.
func (f *Frame) value(row, col int) any {
	e := f.df.Elem(row, col)
	if e.IsNA() {
		return nil
	}
	switch f.types[col] {
	case TypeInteger:
		if n, err := e.Int(); err == nil {
			return int64(n)
		}
	case TypeFloat:
		return e.Float()
	case TypeBoolean:
		if b, err := e.Bool(); err == nil {
			return b
		}
	}
	return e.String()
}

// Record returns row i keyed by column name with typed values.
func (f *Frame) Record(i int) map[string]any {
	out := make(map[string]any, len(f.columns))
	for c, name := range f.columns {
		out[name] = f.value(i, c)
	}
	return out
}

// rows returns the records at the given positions, in order.
func (f *Frame) rows(idx []int) []map[string]any {
	out := make([]map[string]any, 0, len(idx))
	if len(idx) == 0 {
		return out
	}
	view := &Frame{df: f.df.Subset(idx), columns: f.columns, types: f.types}
	for i := range idx {
		out = append(out, view.Record(i))
	}
	return out
}

// Head returns up to n records from the top of the frame.
func (f *Frame) Head(n int) []map[string]any {
	return f.rows(span(0, min(max(n, 0), f.Len())))
}

func span(start, end int) []int {
	idx := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	return idx
}
