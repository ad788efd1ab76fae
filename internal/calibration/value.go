package calibration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Shape is the layout of a parameter value as the OG model consumes it
type Shape int

const (
	ShapeNull   Shape = iota // explicit "no estimate"
	ShapeScalar              // 0.327
	ShapeVector              // [0.12]
	ShapeMatrix              // [[0.1, 0.2], [0.3, 0.4]]
)

func (s Shape) String() string {
	switch s {
	case ShapeNull:
		return "null"
	case ShapeScalar:
		return "scalar"
	case ShapeVector:
		return "vector"
	case ShapeMatrix:
		return "matrix"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ErrRaggedMatrix is returned by Matrix when rows differ in length
var ErrRaggedMatrix = errors.New("matrix rows differ in length")

// Value is a tagged union over the shapes a parameter can take
type Value struct {
	shape  Shape
	scalar float64
	vector []float64
	matrix [][]float64
}

// Null returns the explicit "no estimate" value
func Null() Value {
	return Value{shape: ShapeNull}
}

// Scalar returns a bare number
func Scalar(f float64) Value {
	return Value{shape: ShapeScalar, scalar: f}
}

// Vector returns a list of numbers
func Vector(fs ...float64) Value {
	return Value{shape: ShapeVector, vector: append([]float64(nil), fs...)}
}

// Matrix returns a nested list; rows must have equal length
func Matrix(rows [][]float64) (Value, error) {
	m := make([][]float64, len(rows))
	for i, row := range rows {
		if i > 0 && len(row) != len(rows[0]) {
			return Value{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrRaggedMatrix, i, len(row), len(rows[0]))
		}
		m[i] = append([]float64(nil), row...)
	}
	return Value{shape: ShapeMatrix, matrix: m}, nil
}

// Shape returns the value's shape
func (v Value) Shape() Shape {
	return v.shape
}

// Float returns the scalar; ok is false for any other shape
func (v Value) Float() (float64, bool) {
	return v.scalar, v.shape == ShapeScalar
}

// Floats returns a copy of the vector; nil for any other shape
func (v Value) Floats() []float64 {
	if v.shape != ShapeVector {
		return nil
	}
	return append([]float64(nil), v.vector...)
}

// Rows returns a copy of the matrix; nil for any other shape
func (v Value) Rows() [][]float64 {
	if v.shape != ShapeMatrix {
		return nil
	}
	out := make([][]float64, len(v.matrix))
	for i, row := range v.matrix {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Len is 1 for a scalar, the length of a vector, the row count of a matrix, 0 for null
func (v Value) Len() int {
	switch v.shape {
	case ShapeScalar:
		return 1
	case ShapeVector:
		return len(v.vector)
	case ShapeMatrix:
		return len(v.matrix)
	default:
		return 0
	}
}

// finite reports whether every number in the value is finite
func (v Value) finite() bool {
	ok := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

	switch v.shape {
	case ShapeScalar:
		return ok(v.scalar)
	case ShapeVector:
		for _, f := range v.vector {
			if !ok(f) {
				return false
			}
		}
	case ShapeMatrix:
		for _, row := range v.matrix {
			for _, f := range row {
				if !ok(f) {
					return false
				}
			}
		}
	}
	return true
}

// Equal reports whether two values have the same shape and numbers
func (v Value) Equal(o Value) bool {
	if v.shape != o.shape {
		return false
	}
	switch v.shape {
	case ShapeScalar:
		return v.scalar == o.scalar
	case ShapeVector:
		return floatsEqual(v.vector, o.vector)
	case ShapeMatrix:
		if len(v.matrix) != len(o.matrix) {
			return false
		}
		for i := range v.matrix {
			if !floatsEqual(v.matrix[i], o.matrix[i]) {
				return false
			}
		}
	}
	return true
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.shape, err)
	}
	return string(data)
}

// MarshalJSON encodes null, a number, a list or a nested list
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.shape {
	case ShapeScalar:
		return json.Marshal(v.scalar)
	case ShapeVector:
		return json.Marshal(v.vector)
	case ShapeMatrix:
		return json.Marshal(v.matrix)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the shape from the JSON layout
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Null()
		return nil

	case len(data) > 0 && data[0] != '[':
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parameter value: %w", err)
		}
		*v = Scalar(f)
		return nil
	}

	var vec []float64
	if err := json.Unmarshal(data, &vec); err == nil {
		*v = Vector(vec...)
		return nil
	}

	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parameter value: expected number, list or nested list: %w", err)
	}
	m, err := Matrix(rows)
	if err != nil {
		return err
	}
	*v = m
	return nil
}
