package httpvfs

import (
	"regexp"
	"strings"
	"time"

	"github.com/xet7/httpvfs/domain/model"
)

// columnType is the storage class of a result column, decided over all its values
type columnType int

const (
	// columnTypeText is TEXT, or a column mixing storage classes
	columnTypeText columnType = iota
	// columnTypeInteger is INTEGER
	columnTypeInteger
	// columnTypeReal is REAL, or INTEGER mixed with REAL
	columnTypeReal
	// columnTypeDatetime is TEXT holding datetimes in one of the known layouts
	columnTypeDatetime
	// columnTypeBlob is BLOB
	columnTypeBlob
)

// columnInfo is a result column with its inferred type
type columnInfo struct {
	Name string
	Type columnType
}

// Common datetime patterns to detect
var datetimePatterns = []struct {
	pattern *regexp.Regexp
	formats []string // Multiple formats for the same pattern
}{
	// ISO8601 formats with timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`),
		[]string{time.RFC3339, time.RFC3339Nano},
	},
	// ISO8601 formats without timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.000"},
	},
	// SQLite datetime() output
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.000"},
	},
	// ISO8601 date only
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
	},
}

// parseDatetime parses value in the first matching datetime layout
func parseDatetime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, dp := range datetimePatterns {
		if dp.pattern.MatchString(value) {
			// Try each format for this pattern
			for _, format := range dp.formats {
				if t, err := time.Parse(format, value); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// isDatetime checks if a string value represents a datetime
func isDatetime(value string) bool {
	_, ok := parseDatetime(value)
	return ok
}

// inferColumnType infers the column type from the values the engine returned.
// NULLs are ignored; a column of NULLs only is TEXT.
func inferColumnType(values []any) columnType {
	hasDatetime := false
	hasReal := false
	hasInteger := false
	hasText := false
	hasBlob := false

	for _, value := range values {
		switch v := value.(type) {
		case nil:
			continue
		case int64:
			hasInteger = true
		case float64:
			hasReal = true
		case []byte:
			hasBlob = true
		case string:
			if isDatetime(v) {
				hasDatetime = true
				continue
			}
			hasText = true
		default:
			hasText = true
		}
	}

	// Priority: TEXT > BLOB > DATETIME > REAL > INTEGER
	switch {
	case hasText:
		return columnTypeText
	case hasBlob && (hasInteger || hasReal || hasDatetime):
		return columnTypeText
	case hasBlob:
		return columnTypeBlob
	case hasDatetime && (hasInteger || hasReal):
		return columnTypeText
	case hasDatetime:
		return columnTypeDatetime
	case hasReal:
		return columnTypeReal
	case hasInteger:
		return columnTypeInteger
	default:
		return columnTypeText
	}
}

// inferColumnsInfo infers column information from a result set
func inferColumnsInfo(rs model.ResultSet) []columnInfo {
	columnCount := len(rs.Columns)
	if columnCount == 0 {
		return nil
	}

	columns := make([]columnInfo, columnCount)
	for i, name := range rs.Columns {
		values := make([]any, 0, len(rs.Values))
		for _, row := range rs.Values {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		columns[i] = columnInfo{Name: name, Type: inferColumnType(values)}
	}
	return columns
}
