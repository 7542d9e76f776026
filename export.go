package httpvfs

import (
	"bufio"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"

	"github.com/xet7/httpvfs/domain/model"
)

// xlsxSheet is the sheet exported results are written to
const xlsxSheet = "Sheet1"

// ExportResult writes rs to w in the format and compression of opts.
//
// Example usage:
//
//	sets, err := db.Exec(ctx, "SELECT * FROM titles LIMIT 100")
//	if err != nil {
//		return err
//	}
//	opts := httpvfs.NewExportOptions().
//		WithFormat(httpvfs.OutputFormatParquet).
//		WithCompression(httpvfs.CompressionGZ)
//	err = httpvfs.ExportResult(w, sets[0], opts)
func ExportResult(w io.Writer, rs model.ResultSet, opts model.ExportOptions) error {
	handler := NewCompressionHandler(opts.Compression)
	cw, closeCompression, err := handler.CreateWriter(w)
	if err != nil {
		return err
	}

	// writers that close their sink must not close the compression stream twice
	sink := struct{ io.Writer }{cw}
	if err := writeResult(sink, rs, opts.Format); err != nil {
		_ = closeCompression()
		return err
	}
	if err := closeCompression(); err != nil {
		return fmt.Errorf("failed to finish %s stream: %w", opts.Compression, err)
	}
	return nil
}

// ExportFile writes rs to the file at path. The file extension is not added;
// see ExportOptions.FileExtension.
func ExportFile(path string, rs model.ResultSet, opts model.ExportOptions) error {
	if opts.Compression == model.CompressionBZ2 {
		return fmt.Errorf("%w: bzip2 compression is not supported for writing", model.ErrConfig)
	}
	w, cleanup, err := createWriterForFile(path, opts.Compression)
	if err != nil {
		return err
	}
	sink := struct{ io.Writer }{w}
	if err := writeResult(sink, rs, opts.Format); err != nil {
		return errors.Join(err, cleanup())
	}
	return cleanup()
}

func writeResult(w io.Writer, rs model.ResultSet, format model.OutputFormat) error {
	switch format {
	case model.OutputFormatCSV:
		return writeDelimited(w, rs, ',')
	case model.OutputFormatTSV:
		return writeDelimited(w, rs, '\t')
	case model.OutputFormatLTSV:
		return writeLTSV(w, rs)
	case model.OutputFormatJSON:
		return writeJSON(w, rs)
	case model.OutputFormatParquet:
		return writeParquet(w, rs)
	case model.OutputFormatXLSX:
		return writeXLSX(w, rs)
	default:
		return fmt.Errorf("%w: unsupported output format: %v", model.ErrConfig, format)
	}
}

// formatValue renders a value as text. NULL is empty and BLOBs are hex.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return hex.EncodeToString(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func writeDelimited(w io.Writer, rs model.ResultSet, delimiter rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter

	if err := cw.Write(rs.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(rs.Columns))
	for _, row := range rs.Values {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatValue(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ltsvEscaper keeps field separators out of LTSV values
var ltsvEscaper = strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`)

func writeLTSV(w io.Writer, rs model.ResultSet) error {
	bw := bufio.NewWriter(w)
	for _, row := range rs.Values {
		for i, col := range rs.Columns {
			if i > 0 {
				_ = bw.WriteByte('\t')
			}
			var v any
			if i < len(row) {
				v = row[i]
			}
			_, _ = bw.WriteString(col)
			_ = bw.WriteByte(':')
			_, _ = bw.WriteString(ltsvEscaper.Replace(formatValue(v)))
		}
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

// writeJSON writes one object per row, keys in column order
func writeJSON(w io.Writer, rs model.ResultSet) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(rs.Columns))
	for i, col := range rs.Columns {
		k, err := json.Marshal(col)
		if err != nil {
			return fmt.Errorf("failed to encode column %q: %w", col, err)
		}
		keys[i] = k
	}

	for _, row := range rs.Values {
		_ = bw.WriteByte('{')
		for i := range rs.Columns {
			if i > 0 {
				_ = bw.WriteByte(',')
			}
			var v any
			if i < len(row) {
				v = row[i]
			}
			val, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode column %q: %w", rs.Columns[i], err)
			}
			_, _ = bw.Write(keys[i])
			_ = bw.WriteByte(':')
			_, _ = bw.Write(val)
		}
		_, _ = bw.WriteString("}\n")
	}
	return bw.Flush()
}

// arrowType maps an inferred column type to its parquet column type
func arrowType(t columnType) arrow.DataType {
	switch t {
	case columnTypeInteger:
		return arrow.PrimitiveTypes.Int64
	case columnTypeReal:
		return arrow.PrimitiveTypes.Float64
	case columnTypeDatetime:
		return arrow.FixedWidthTypes.Timestamp_ms
	case columnTypeBlob:
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func writeParquet(w io.Writer, rs model.ResultSet) error {
	columns := inferColumnsInfo(rs)
	if len(columns) == 0 {
		return fmt.Errorf("%w: result has no columns", model.ErrConfig)
	}

	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowType(col.Type), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()

	for _, row := range rs.Values {
		for i, col := range columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			appendArrowValue(builder.Field(i), col.Type, v)
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	fw, err := pqarrow.NewFileWriter(schema, w, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := fw.Write(record); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// appendArrowValue appends v to b, whose type was chosen by arrowType(t)
func appendArrowValue(b array.Builder, t columnType, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch t {
	case columnTypeInteger:
		b.(*array.Int64Builder).Append(v.(int64)) //nolint:forcetypeassert // type inferred from values
	case columnTypeReal:
		switch n := v.(type) {
		case int64:
			b.(*array.Float64Builder).Append(float64(n)) //nolint:forcetypeassert
		case float64:
			b.(*array.Float64Builder).Append(n) //nolint:forcetypeassert
		}
	case columnTypeDatetime:
		s, _ := v.(string)
		ts, _ := parseDatetime(s)
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(ts.UnixMilli())) //nolint:forcetypeassert
	case columnTypeBlob:
		b.(*array.BinaryBuilder).Append(v.([]byte)) //nolint:forcetypeassert
	default:
		b.(*array.StringBuilder).Append(formatValue(v)) //nolint:forcetypeassert
	}
}

func writeXLSX(w io.Writer, rs model.ResultSet) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	header := make([]any, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	columns := inferColumnsInfo(rs)
	for r, row := range rs.Values {
		cells := make([]any, len(columns))
		for i, col := range columns {
			if i >= len(row) {
				continue
			}
			cells[i] = xlsxValue(col.Type, row[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// xlsxValue converts a value to what excelize stores natively
func xlsxValue(t columnType, v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return hex.EncodeToString(v)
	case string:
		if t == columnTypeDatetime {
			if ts, ok := parseDatetime(v); ok {
				return ts
			}
		}
		return v
	default:
		return v
	}
}
