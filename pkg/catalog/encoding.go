package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Row encoding format:
// [null bitmap (ceil(numCols/8) bytes)] then, for each non-null column in order:
// INT and FLOAT as 8 little-endian bytes, CHAR as a 4-byte length followed by the bytes.

// EncodeRow encodes a conformed row according to schema into bytes.
func EncodeRow(schema *Schema, values Row) ([]byte, error) {
	numCols := len(schema.Columns)
	if len(values) != numCols {
		return nil, fmt.Errorf("encode: expected %d values, got %d", numCols, len(values))
	}
	nullBitmapSize := (numCols + 7) / 8
	nullBitmap := make([]byte, nullBitmapSize)

	size := nullBitmapSize
	for i, v := range values {
		if v.IsNull {
			nullBitmap[i/8] |= 1 << (i % 8)
			continue
		}
		if schema.Columns[i].Type == TypeChar {
			size += 4 + len(v.Text)
		} else {
			size += 8
		}
	}

	buf := make([]byte, 0, size)
	buf = append(buf, nullBitmap...)

	for i, col := range schema.Columns {
		v := values[i]
		if v.IsNull {
			continue
		}
		switch col.Type {
		case TypeInt:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Int))
		case TypeFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float))
		case TypeChar:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Text)))
			buf = append(buf, v.Text...)
		default:
			return nil, fmt.Errorf("encode: column %q has unknown type", col.Name)
		}
	}

	return buf, nil
}

// DecodeRow decodes bytes into values according to schema.
func DecodeRow(schema *Schema, data []byte) (Row, error) {
	numCols := len(schema.Columns)
	nullBitmapSize := (numCols + 7) / 8
	if len(data) < nullBitmapSize {
		return nil, errors.New("data too short for null bitmap")
	}

	nullBitmap := data[:nullBitmapSize]
	pos := nullBitmapSize
	values := make(Row, numCols)

	for i, col := range schema.Columns {
		if nullBitmap[i/8]&(1<<(i%8)) != 0 {
			values[i] = Value{Type: col.Type, IsNull: true}
			continue
		}

		switch col.Type {
		case TypeInt:
			if pos+8 > len(data) {
				return nil, errors.New("unexpected end of data for INT")
			}
			values[i] = NewInt(int64(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8
		case TypeFloat:
			if pos+8 > len(data) {
				return nil, errors.New("unexpected end of data for FLOAT")
			}
			values[i] = NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8
		case TypeChar:
			if pos+4 > len(data) {
				return nil, errors.New("unexpected end of data for CHAR length")
			}
			length := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if pos+length > len(data) {
				return nil, errors.New("unexpected end of data for CHAR value")
			}
			values[i] = NewText(string(data[pos : pos+length]))
			pos += length
		default:
			return nil, errors.New("unknown type")
		}
	}

	if pos != len(data) {
		return nil, fmt.Errorf("trailing %d bytes after row", len(data)-pos)
	}
	return values, nil
}
