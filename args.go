package matbridge

import (
	"fmt"
	"strings"
)

// Matrix is a dense double matrix in column-major order, matching the
// engine's native layout.
type Matrix struct {
	// Rows is the number of rows.
	Rows int

	// Cols is the number of columns.
	Cols int

	// Data holds the elements in column-major order (len == Rows*Cols).
	Data []float64
}

// NewMatrix builds a Matrix from row slices. All rows must have the same
// length; ragged input panics, matching the misuse-is-a-bug convention for
// constructors taking literals.
func NewMatrix(rows [][]float64) Matrix {
	m := Matrix{Rows: len(rows)}
	if m.Rows == 0 {
		return m
	}
	m.Cols = len(rows[0])
	m.Data = make([]float64, m.Rows*m.Cols)
	for i, row := range rows {
		if len(row) != m.Cols {
			panic(fmt.Sprintf("matbridge: ragged matrix row %d: %d columns, want %d", i, len(row), m.Cols))
		}
		for j, v := range row {
			m.Data[j*m.Rows+i] = v
		}
	}
	return m
}

// ColumnVector builds an n x 1 Matrix from a slice.
func ColumnVector(v []float64) Matrix {
	data := make([]float64, len(v))
	copy(data, v)
	return Matrix{Rows: len(v), Cols: 1, Data: data}
}

// At returns the element at row i, column j (0-based).
func (m Matrix) At(i, j int) float64 {
	return m.Data[j*m.Rows+i]
}

// Col returns column j as a slice (0-based).
func (m Matrix) Col(j int) []float64 {
	out := make([]float64, m.Rows)
	copy(out, m.Data[j*m.Rows:(j+1)*m.Rows])
	return out
}

// BoolMatrix is a dense logical matrix in column-major order.
type BoolMatrix struct {
	Rows int
	Cols int
	Data []bool
}

// NewBoolMatrix builds a BoolMatrix from row slices. Panics on ragged input.
func NewBoolMatrix(rows [][]bool) BoolMatrix {
	m := BoolMatrix{Rows: len(rows)}
	if m.Rows == 0 {
		return m
	}
	m.Cols = len(rows[0])
	m.Data = make([]bool, m.Rows*m.Cols)
	for i, row := range rows {
		if len(row) != m.Cols {
			panic(fmt.Sprintf("matbridge: ragged matrix row %d: %d columns, want %d", i, len(row), m.Cols))
		}
		for j, v := range row {
			m.Data[j*m.Rows+i] = v
		}
	}
	return m
}

// emptyValue is the Empty sentinel type.
type emptyValue struct{}

// Empty returns the sentinel for the engine's 0x0 double matrix ([]).
// Engines reject a plain empty array where a matrix-typed argument is
// expected, so optional matrix arguments must be passed as Empty(), not as
// nil slices. nil itself also marshals to the same representation.
func Empty() interface{} {
	return emptyValue{}
}

// encodeValue converts a Go value into the worker's tagged wire form.
//
// Scalars (numbers, bools, strings) pass through untagged; the worker maps
// them onto double, logical, and char. Slices and matrices become tagged
// objects carrying class, size, and column-major data.
func encodeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return map[string]interface{}{"mx": "empty"}, nil
	case emptyValue:
		return map[string]interface{}{"mx": "empty"}, nil
	case bool, string, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val, nil
	case Matrix:
		if len(val.Data) == 0 {
			return map[string]interface{}{"mx": "empty"}, nil
		}
		return map[string]interface{}{
			"mx":   "double",
			"size": []int{val.Rows, val.Cols},
			"data": val.Data,
		}, nil
	case BoolMatrix:
		if len(val.Data) == 0 {
			return map[string]interface{}{"mx": "empty"}, nil
		}
		return map[string]interface{}{
			"mx":   "logical",
			"size": []int{val.Rows, val.Cols},
			"data": val.Data,
		}, nil
	case []float64:
		return encodeValue(ColumnVector(val))
	case []int:
		conv := make([]float64, len(val))
		for i, n := range val {
			conv[i] = float64(n)
		}
		return encodeValue(ColumnVector(conv))
	case []bool:
		if len(val) == 0 {
			return map[string]interface{}{"mx": "empty"}, nil
		}
		data := make([]bool, len(val))
		copy(data, val)
		return map[string]interface{}{
			"mx":   "logical",
			"size": []int{len(val), 1},
			"data": data,
		}, nil
	case [][]float64:
		return encodeValue(NewMatrix(val))
	case [][]bool:
		return encodeValue(NewBoolMatrix(val))
	case []interface{}:
		enc := make([]interface{}, len(val))
		for i, item := range val {
			e, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			enc[i] = e
		}
		return map[string]interface{}{"mx": "cell", "data": enc}, nil
	case map[string]interface{}:
		data := make(map[string]interface{}, len(val))
		for k, item := range val {
			e, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			data[k] = e
		}
		return map[string]interface{}{"mx": "struct", "data": data}, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}

// encodeArgs converts a positional argument list into wire form.
func encodeArgs(args []interface{}) ([]interface{}, error) {
	enc := make([]interface{}, len(args))
	for i, arg := range args {
		e, err := encodeValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		enc[i] = e
	}
	return enc, nil
}

// decodeValue converts a worker result value into Go form: scalars stay
// scalars, 1 x n and n x 1 doubles become []float64, larger doubles become
// Matrix, structs become map[string]interface{}, cells become []interface{}.
func decodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		tag, ok := val["mx"].(string)
		if !ok {
			out := make(map[string]interface{}, len(val))
			for k, item := range val {
				out[k] = decodeValue(item)
			}
			return out
		}
		switch tag {
		case "empty":
			return nil
		case "double":
			rows, cols := decodeSize(val["size"])
			data := asFloatSlice(val["data"])
			if rows == 1 || cols == 1 {
				return data
			}
			return Matrix{Rows: rows, Cols: cols, Data: data}
		case "logical":
			rows, cols := decodeSize(val["size"])
			data := asBoolSlice(val["data"])
			if rows == 1 || cols == 1 {
				return data
			}
			return BoolMatrix{Rows: rows, Cols: cols, Data: data}
		case "char":
			s, _ := val["data"].(string)
			return s
		case "cell":
			items, _ := val["data"].([]interface{})
			out := make([]interface{}, len(items))
			for i, item := range items {
				out[i] = decodeValue(item)
			}
			return out
		case "struct":
			fields, _ := val["data"].(map[string]interface{})
			out := make(map[string]interface{}, len(fields))
			for k, item := range fields {
				out[k] = decodeValue(item)
			}
			return out
		default:
			return val
		}
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = decodeValue(item)
		}
		return out
	default:
		return val
	}
}

func decodeSize(v interface{}) (rows, cols int) {
	dims := asFloatSlice(v)
	if len(dims) >= 2 {
		return int(dims[0]), int(dims[1])
	}
	if len(dims) == 1 {
		return int(dims[0]), 1
	}
	return 0, 0
}

// asFloatSlice normalizes a decoded numeric array. JSON decoding yields
// []interface{} of float64; a single number decodes as a bare float64.
func asFloatSlice(v interface{}) []float64 {
	switch val := v.(type) {
	case []float64:
		return val
	case float64:
		return []float64{val}
	case []interface{}:
		out := make([]float64, 0, len(val))
		for _, item := range val {
			if f, ok := item.(float64); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}

func asBoolSlice(v interface{}) []bool {
	switch val := v.(type) {
	case []bool:
		return val
	case bool:
		return []bool{val}
	case []interface{}:
		out := make([]bool, 0, len(val))
		for _, item := range val {
			switch b := item.(type) {
			case bool:
				out = append(out, b)
			case float64:
				out = append(out, b != 0)
			}
		}
		return out
	default:
		return nil
	}
}

// oneOf validates an enumerated argument against its allow-list.
// The error names the argument and lists the accepted values; it is returned
// before anything is sent to the engine.
func oneOf(name, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", name, value, strings.Join(allowed, ", "))
}
