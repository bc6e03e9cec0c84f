package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotReadOnly = errors.New("only read-only SELECT/WITH queries are allowed")

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Records converts rows into column-keyed maps, preserving row order.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// ErrorRecords is the single-row result reported in place of a failed query.
func ErrorRecords(err error) []map[string]any {
	return []map[string]any{{"error": err.Error()}}
}

// IsReadOnly accepts a single SELECT or WITH statement. Trailing semicolons are ignored.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(StripTrailingSemicolons(sqlText))
	if normalized == "" {
		return false
	}
	if strings.Contains(normalized, ";") {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with") ||
		strings.HasPrefix(normalized, "(select")
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// WrapRowLimit bounds the result set of an arbitrary SELECT.
func WrapRowLimit(sqlText string, rowLimit int) string {
	sqlText = StripTrailingSemicolons(sqlText)
	if rowLimit <= 0 {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
