package duckdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/storage"
)

type storeRow struct {
	TiendaID   int64   `parquet:"tienda_id"`
	Region     string  `parquet:"region"`
	Revenue    float64 `parquet:"revenue"`
	Experiment string  `parquet:"experimento"`
}

func newTestEngine(t *testing.T, store storage.ObjectStore) *Engine {
	t.Helper()
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestLoadObjectReadsParquetThroughObjectStore(t *testing.T) {
	parquetBytes, err := buildParquet([]storeRow{
		{TiendaID: 1, Region: "Norte", Revenue: 100, Experiment: "Control"},
		{TiendaID: 2, Region: "Sur", Revenue: 250, Experiment: "Test"},
	})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}
	store := &memoryStore{objects: map[string][]byte{"datasets/tiendas.parquet": parquetBytes}}
	engine := newTestEngine(t, store)

	if err := engine.LoadObject(context.Background(), "tiendas", "datasets/tiendas.parquet", FormatParquet); err != nil {
		t.Fatalf("LoadObject() error = %v", err)
	}
	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT COUNT(*) AS c FROM tiendas"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != int64(2) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestLoadFileCSVAndRowLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maestro.csv")
	csv := "tienda_id,nombre_tienda\n1,Tienda Centro\n2,Tienda Norte\n3,Tienda Sur\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	engine := newTestEngine(t, nil)
	if err := engine.LoadFile(context.Background(), "maestro_tiendas", path, FormatCSV); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT nombre_tienda FROM maestro_tiendas ORDER BY tienda_id;",
		RowLimit: 2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if result.Columns[0] != "nombre_tienda" || result.Rows[0][0] != "Tienda Centro" {
		t.Fatalf("result = %#v", result)
	}

	// Reloading replaces the table.
	if err := os.WriteFile(path, []byte("tienda_id,nombre_tienda\n9,Nueva\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := engine.LoadFile(context.Background(), "maestro_tiendas", path, FormatCSV); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	result, err = engine.Execute(context.Background(), query.Request{SQL: "SELECT COUNT(*) FROM maestro_tiendas"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != int64(1) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteNormalizesDecimals(t *testing.T) {
	engine := newTestEngine(t, nil)
	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT CAST(12.50 AS DECIMAL(10,2)) AS amount"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != 12.5 {
		t.Fatalf("amount = %#v", result.Rows[0][0])
	}
}

func TestExecuteErrors(t *testing.T) {
	engine := newTestEngine(t, nil)
	if _, err := engine.Execute(context.Background(), query.Request{SQL: " ; "}); err == nil {
		t.Fatal("expected error for empty SQL")
	}
	if _, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT * FROM missing_table"}); err == nil {
		t.Fatal("expected error for unknown table")
	}
	if err := engine.LoadFile(context.Background(), "t", "x.json", Format("json")); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if err := engine.LoadObject(context.Background(), "t", "k", FormatCSV); err == nil {
		t.Fatal("expected missing object store error")
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Execute(ctx, query.Request{SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func buildParquet(rows []storeRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[storeRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func TestExecuteNormalizesCompositeValuesForJSON(t *testing.T) {
	engine := newTestEngine(t, nil)

	result, err := engine.Execute(context.Background(), query.Request{SQL: `
		SELECT
			histogram(x) AS h,
			list(x ORDER BY x) AS xs,
			'123e4567-e89b-12d3-a456-426614174000'::UUID AS id,
			'NaN'::DOUBLE AS nan_value,
			'inf'::DOUBLE AS inf_value
		FROM (VALUES (1), (1), (2)) AS t(x)`})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	row := result.Rows[0]

	histogram, ok := row[0].(map[string]any)
	if !ok {
		t.Fatalf("histogram type = %T", row[0])
	}
	if fmt.Sprint(histogram["1"]) != "2" || fmt.Sprint(histogram["2"]) != "1" {
		t.Fatalf("histogram = %#v", histogram)
	}
	if list, ok := row[1].([]any); !ok || len(list) != 3 {
		t.Fatalf("list = %#v", row[1])
	}
	if row[2] != "123e4567-e89b-12d3-a456-426614174000" {
		t.Fatalf("uuid = %#v", row[2])
	}
	if row[3] != "NaN" || row[4] != "+Inf" {
		t.Fatalf("non-finite = %#v, %#v", row[3], row[4])
	}
	if _, err := json.Marshal(result.Records()); err != nil {
		t.Fatalf("json.Marshal(Records()) error = %v", err)
	}
}
