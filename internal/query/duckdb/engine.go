package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/storage"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Engine runs queries against one in-memory DuckDB database. Tables are materialized from local files
// or from objects fetched through the object store.
type Engine struct {
	Store storage.ObjectStore

	db      *sql.DB
	mu      sync.Mutex
	workDir string
}

func NewEngine(store storage.ObjectStore) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{Store: store, db: db}, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, query.WrapRowLimit(sqlText, request.RowLimit))
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return query.Result{}, fmt.Errorf("query column types: %w", err)
	}
	uuidColumns := make([]bool, len(columnTypes))
	for i, columnType := range columnTypes {
		uuidColumns[i] = strings.EqualFold(columnType.DatabaseTypeName(), "UUID")
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values, uuidColumns))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// LoadFile replaces table with the contents of a local CSV or Parquet file.
func (e *Engine) LoadFile(ctx context.Context, table, path string, format Format) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("table name is required")
	}
	var source string
	switch format {
	case FormatCSV:
		source = fmt.Sprintf("read_csv_auto(%s, header = true)", query.QuoteLiteral(path))
	case FormatParquet:
		source = fmt.Sprintf("read_parquet(%s)", query.QuoteLiteral(path))
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", query.QuoteIdent(table), source)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("load table %q from %s: %w", table, path, err)
	}
	return nil
}

// LoadObject copies an object from the store into the engine work dir and loads it as table.
func (e *Engine) LoadObject(ctx context.Context, table, key string, format Format) error {
	if e.Store == nil {
		return fmt.Errorf("object store is required")
	}
	dir, err := e.ensureWorkDir()
	if err != nil {
		return err
	}
	reader, err := e.Store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	localPath := filepath.Join(dir, fmt.Sprintf("%s.%s", sanitizeFileComponent(table), format))
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return fmt.Errorf("write local file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	return e.LoadFile(ctx, table, localPath, format)
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	dir := e.workDir
	e.workDir = ""
	e.mu.Unlock()
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
	return e.db.Close()
}

func (e *Engine) ensureWorkDir() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.workDir != "" {
		return e.workDir, nil
	}
	dir, err := os.MkdirTemp("", "insightbot-datasets-")
	if err != nil {
		return "", fmt.Errorf("create dataset temp dir: %w", err)
	}
	e.workDir = dir
	return dir, nil
}

// normalizeValues converts driver values into JSON-encodable ones. Composite values are converted
// recursively and non-finite floats become their string form.
func normalizeValues(values []any, uuidColumns []bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		if raw, ok := value.([]byte); ok && i < len(uuidColumns) && uuidColumns[i] {
			if id, err := uuid.FromBytes(raw); err == nil {
				normalized[i] = id.String()
				continue
			}
		}
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case float64:
		return finiteOrString(typed)
	case float32:
		return finiteOrString(float64(typed))
	case duckdb.Decimal:
		return finiteOrString(typed.Float64())
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case duckdb.UUID:
		return uuid.UUID(typed).String()
	case duckdb.Map:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(normalizeValue(key))] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	case duckdb.Union:
		return map[string]any{"tag": typed.Tag, "value": normalizeValue(typed.Value)}
	default:
		return typed
	}
}

func finiteOrString(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return strconv.FormatFloat(value, 'g', -1, 64)
	}
	return value
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
