package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/insightbot/internal/query"
)

const DefaultSampleLimit = 10

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type NumericStats struct {
	Min         any   `json:"min"`
	Max         any   `json:"max"`
	Avg         any   `json:"avg"`
	UniqueCount int64 `json:"unique_count"`
}

type Relationship struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (r Relationship) String() string {
	return r.From + " = " + r.To
}

// Info describes the loaded tables. Samples and Stats hold one entry per table, possibly empty.
type Info struct {
	Tables        []Table                            `json:"tables"`
	Samples       map[string]map[string][]any        `json:"categorical_samples"`
	Stats         map[string]map[string]NumericStats `json:"stats"`
	Relationships []Relationship                     `json:"relationships"`
	PrimaryTable  string                             `json:"primary_table"`
}

type Options struct {
	SchemaName    string
	SampleLimit   int
	Relationships []Relationship
	PrimaryTable  string
	Logger        *slog.Logger
}

// Introspect reads table and column metadata from information_schema, then samples text columns and
// computes statistics for numeric columns. Sampling failures are logged and skipped.
func Introspect(ctx context.Context, engine query.Engine, opts Options) (Info, error) {
	if opts.SchemaName == "" {
		opts.SchemaName = "main"
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = DefaultSampleLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	result, err := engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = %s ORDER BY table_name, ordinal_position",
		query.QuoteLiteral(opts.SchemaName),
	)})
	if err != nil {
		return Info{}, fmt.Errorf("list columns: %w", err)
	}

	info := Info{
		Samples:       map[string]map[string][]any{},
		Stats:         map[string]map[string]NumericStats{},
		Relationships: append([]Relationship(nil), opts.Relationships...),
	}
	index := map[string]int{}
	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		tableName, columnName, dataType := fmt.Sprint(row[0]), fmt.Sprint(row[1]), strings.ToUpper(fmt.Sprint(row[2]))
		pos, ok := index[tableName]
		if !ok {
			pos = len(info.Tables)
			index[tableName] = pos
			info.Tables = append(info.Tables, Table{Name: tableName})
		}
		info.Tables[pos].Columns = append(info.Tables[pos].Columns, Column{Name: columnName, Type: dataType})
	}

	for _, table := range info.Tables {
		samples := map[string][]any{}
		stats := map[string]NumericStats{}
		for _, column := range table.Columns {
			switch {
			case IsText(column.Type):
				values, err := sampleColumn(ctx, engine, table.Name, column.Name, opts.SampleLimit)
				if err != nil {
					logger.DebugContext(ctx, "sample column failed",
						slog.String("table", table.Name),
						slog.String("column", column.Name),
						slog.String("error", err.Error()),
					)
					continue
				}
				samples[column.Name] = values
			case IsNumeric(column.Type):
				columnStats, err := statColumn(ctx, engine, table.Name, column.Name)
				if err != nil {
					logger.DebugContext(ctx, "column stats failed",
						slog.String("table", table.Name),
						slog.String("column", column.Name),
						slog.String("error", err.Error()),
					)
					continue
				}
				stats[column.Name] = columnStats
			}
		}
		info.Samples[table.Name] = samples
		info.Stats[table.Name] = stats
	}

	info.PrimaryTable = opts.PrimaryTable
	if info.PrimaryTable == "" && len(info.Tables) > 0 {
		info.PrimaryTable = info.Tables[0].Name
	}
	return info, nil
}

func sampleColumn(ctx context.Context, engine query.Engine, table, column string, limit int) ([]any, error) {
	result, err := engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		query.QuoteIdent(column), query.QuoteIdent(table), query.QuoteIdent(column), limit,
	)})
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) > 0 {
			values = append(values, row[0])
		}
	}
	return values, nil
}

func statColumn(ctx context.Context, engine query.Engine, table, column string) (NumericStats, error) {
	col := query.QuoteIdent(column)
	result, err := engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(
		"SELECT MIN(%s), MAX(%s), AVG(%s), COUNT(DISTINCT %s) FROM %s",
		col, col, col, col, query.QuoteIdent(table),
	)})
	if err != nil {
		return NumericStats{}, err
	}
	if len(result.Rows) != 1 || len(result.Rows[0]) != 4 {
		return NumericStats{}, fmt.Errorf("unexpected stats result shape")
	}
	row := result.Rows[0]
	return NumericStats{Min: row[0], Max: row[1], Avg: row[2], UniqueCount: toInt64(row[3])}, nil
}

func IsText(dataType string) bool {
	base := baseType(dataType)
	switch base {
	case "VARCHAR", "TEXT", "STRING", "CHAR", "CHARACTER", "CHARACTER VARYING", "BPCHAR":
		return true
	}
	return false
}

func IsNumeric(dataType string) bool {
	base := baseType(dataType)
	switch base {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "HUGEINT", "UBIGINT", "UINTEGER", "USMALLINT", "UTINYINT",
		"DOUBLE", "DOUBLE PRECISION", "FLOAT", "REAL", "DECIMAL", "NUMERIC":
		return true
	}
	return false
}

func baseType(dataType string) string {
	base := strings.ToUpper(strings.TrimSpace(dataType))
	if idx := strings.Index(base, "("); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	return base
}

func toInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int32:
		return int64(typed)
	case int:
		return int64(typed)
	case uint64:
		return int64(typed)
	case float64:
		return int64(typed)
	default:
		return 0
	}
}

// ParseRelationships reads "a.col=b.col" pairs separated by commas.
func ParseRelationships(raw string) ([]Relationship, error) {
	var out []Relationship
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || !strings.Contains(from, ".") || !strings.Contains(to, ".") {
			return nil, fmt.Errorf("invalid relationship %q, want table.column=table.column", part)
		}
		out = append(out, Relationship{From: from, To: to})
	}
	return out, nil
}

func (i Info) Table(name string) (Table, bool) {
	for _, table := range i.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

// Render formats the schema as prompt context.
func (i Info) Render() string {
	var b strings.Builder
	b.WriteString("DATABASE SCHEMA:\nAvailable Tables:\n")
	for _, table := range i.Tables {
		parts := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			parts = append(parts, fmt.Sprintf("%s (%s)", column.Name, column.Type))
		}
		fmt.Fprintf(&b, "  %s: %s\n", table.Name, strings.Join(parts, ", "))
	}
	if len(i.Relationships) > 0 {
		b.WriteString("\nRELATIONSHIPS:\n")
		for _, rel := range i.Relationships {
			fmt.Fprintf(&b, "- %s\n", rel)
		}
	}
	if i.PrimaryTable != "" {
		fmt.Fprintf(&b, "\nPRIMARY TABLE: %s\n", i.PrimaryTable)
	}
	if samples, err := json.MarshalIndent(i.Samples, "", "  "); err == nil {
		fmt.Fprintf(&b, "\nSAMPLE VALUES BY TABLE:\n%s\n", samples)
	}
	if stats, err := json.MarshalIndent(i.Stats, "", "  "); err == nil {
		fmt.Fprintf(&b, "\nSTATISTICS BY TABLE:\n%s\n", stats)
	}
	return b.String()
}
