package sluice

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// -----------------------------------------------------------------------------
// Parquet Decoder
// -----------------------------------------------------------------------------

// parquetDecoder implements Decoder for Apache Parquet files.
type parquetDecoder struct{}

// NewParquetDecoder creates a Parquet decoder.
//
// The row structure comes from the file's own schema; each row becomes one
// record's payload keyed by column name. Only flat schemas are supported,
// which is the shape derived telemetry tables use. Parquet requires random
// access, so the whole object is buffered before decoding.
func NewParquetDecoder() Decoder {
	return &parquetDecoder{}
}

func (p *parquetDecoder) Name() string {
	return "parquet"
}

func (p *parquetDecoder) Decode(r io.Reader) ([]Ping, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read object: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("parquet: empty object")
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parquet: open: %w", err)
	}

	fields := file.Schema().Fields()
	for _, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("parquet: nested column %q not supported", f.Name())
		}
	}

	numRows := file.NumRows()
	if numRows == 0 {
		return nil, nil
	}

	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	pings := make([]Ping, 0, numRows)
	rows := make([]parquet.Row, 64)
	for {
		n, err := reader.ReadRows(rows)
		for i := range n {
			payload := make(map[string]any, len(fields))
			for j, field := range fields {
				if j >= len(rows[i]) {
					break
				}
				payload[field.Name()] = goValue(rows[i][j], field)
			}
			pings = append(pings, Ping{Payload: payload})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parquet: read rows: %w", err)
		}
	}

	return pings, nil
}

// goValue converts one parquet value to its Go representation. Byte arrays
// are copied because the reader reuses row buffers between calls.
func goValue(v parquet.Value, field parquet.Field) any {
	if v.IsNull() {
		return nil
	}

	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt := field.Type().LogicalType(); lt != nil && lt.UTF8 != nil {
			return string(v.ByteArray())
		}
		return bytes.Clone(v.ByteArray())
	default:
		return nil
	}
}
