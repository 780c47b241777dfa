// Package catalog provides the type system, schema definitions, and catalog management.
package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DataType represents a column data type.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeInt
	TypeFloat
	TypeChar
)

// String returns the SQL name of the type.
func (t DataType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeChar:
		return "CHAR"
	default:
		return "UNKNOWN"
	}
}

// ParseDataType converts a string to DataType.
func ParseDataType(s string) DataType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INT", "INTEGER":
		return TypeInt
	case "FLOAT", "REAL", "DOUBLE":
		return TypeFloat
	case "CHAR", "VARCHAR", "TEXT":
		return TypeChar
	default:
		return TypeUnknown
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	dt := ParseDataType(string(b))
	if dt == TypeUnknown {
		return fmt.Errorf("unknown data type %q", string(b))
	}
	*t = dt
	return nil
}

// IsNumeric reports whether values of the type take part in arithmetic.
func (t DataType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Value is a tagged union over INT, FLOAT, CHAR and NULL.
type Value struct {
	Type   DataType
	IsNull bool
	Int    int64
	Float  float64
	Text   string
}

// Row is a sequence of values aligned to a schema.
type Row []Value

// NewInt creates an INT value.
func NewInt(v int64) Value {
	return Value{Type: TypeInt, Int: v}
}

// NewFloat creates a FLOAT value.
func NewFloat(v float64) Value {
	return Value{Type: TypeFloat, Float: v}
}

// NewText creates a CHAR value.
func NewText(v string) Value {
	return Value{Type: TypeChar, Text: v}
}

// Null creates an untyped NULL value.
func Null() Value {
	return Value{IsNull: true}
}

// AsFloat returns the numeric value widened to float64.
func (v Value) AsFloat() float64 {
	if v.Type == TypeInt {
		return float64(v.Int)
	}
	return v.Float
}

// String returns a human-readable representation.
func (v Value) String() string {
	if v.IsNull {
		return "NULL"
	}
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		if math.IsInf(v.Float, 0) || math.IsNaN(v.Float) {
			return strconv.FormatFloat(v.Float, 'g', -1, 64)
		}
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case TypeChar:
		return v.Text
	default:
		return "?"
	}
}

// Key returns a grouping key. NULLs share one key and numbers that compare
// equal share a key across INT and FLOAT.
func (v Value) Key() string {
	if v.IsNull {
		return "n"
	}
	switch v.Type {
	case TypeInt:
		return "f" + strconv.FormatFloat(float64(v.Int), 'g', -1, 64) + "|" + strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		if v.Float == math.Trunc(v.Float) && math.Abs(v.Float) < 1<<63 {
			return "f" + strconv.FormatFloat(v.Float, 'g', -1, 64) + "|" + strconv.FormatInt(int64(v.Float), 10)
		}
		return "f" + strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return "s" + strconv.Quote(v.Text)
	}
}

// Column defines a column in a table schema.
type Column struct {
	Name       string   `json:"name"`
	Type       DataType `json:"attr_type"`
	Length     int      `json:"length,omitempty"` // CHAR(n) limit, 0 means unbounded
	NotNull    bool     `json:"not_null"`
	PrimaryKey bool     `json:"primary"`
}

// TypeName renders the column type as written in CREATE TABLE.
func (c Column) TypeName() string {
	if c.Type == TypeChar && c.Length > 0 {
		return fmt.Sprintf("CHAR(%d)", c.Length)
	}
	return c.Type.String()
}

// Schema represents the structure of a table or derived relation.
type Schema struct {
	Columns []Column
}

// NewSchema creates a schema from a slice of columns.
func NewSchema(cols []Column) *Schema {
	return &Schema{Columns: cols}
}

// ColumnByName finds a column by exact name.
func (s *Schema) ColumnByName(name string) (*Column, int) {
	for i, c := range s.Columns {
		if c.Name == name {
			return &s.Columns[i], i
		}
	}
	return nil, -1
}

// PrimaryKeyIndexes returns the positions of the primary-key columns.
func (s *Schema) PrimaryKeyIndexes() []int {
	var idx []int
	for i, c := range s.Columns {
		if c.PrimaryKey {
			idx = append(idx, i)
		}
	}
	return idx
}

// PrimaryKey returns the composite key of a row, or "" when the schema has none.
func (s *Schema) PrimaryKey(row Row) string {
	var sb strings.Builder
	for _, i := range s.PrimaryKeyIndexes() {
		sb.WriteString(row[i].Key())
		sb.WriteByte(0x1f)
	}
	return sb.String()
}

// Conform checks values against the schema and returns the row to store.
// INT values bound for FLOAT columns are widened. Type and arity problems
// wrap ErrSchemaMismatch, NULL in a NOT NULL column wraps ErrConstraintViolation.
func (s *Schema) Conform(values []Value) (Row, error) {
	if len(values) != len(s.Columns) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrSchemaMismatch, len(s.Columns), len(values))
	}
	row := make(Row, len(values))
	for i, col := range s.Columns {
		v := values[i]
		if v.IsNull {
			if col.NotNull || col.PrimaryKey {
				return nil, fmt.Errorf("%w: column %q does not allow NULL", ErrConstraintViolation, col.Name)
			}
			row[i] = Value{Type: col.Type, IsNull: true}
			continue
		}
		switch {
		case v.Type == col.Type:
		case v.Type == TypeInt && col.Type == TypeFloat:
			v = NewFloat(float64(v.Int))
		default:
			return nil, fmt.Errorf("%w: column %q expects %s, got %s", ErrSchemaMismatch, col.Name, col.TypeName(), v.Type)
		}
		if col.Type == TypeChar && col.Length > 0 && len(v.Text) > col.Length {
			return nil, fmt.Errorf("%w: value for column %q exceeds %s", ErrSchemaMismatch, col.Name, col.TypeName())
		}
		row[i] = v
	}
	return row, nil
}
