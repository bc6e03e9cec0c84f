package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/duckmesh/insightbot/internal/app"
	"github.com/duckmesh/insightbot/internal/config"
	"github.com/duckmesh/insightbot/internal/nl2sql"
	"github.com/duckmesh/insightbot/internal/pipeline"
	"github.com/duckmesh/insightbot/internal/storage"
)

type countTranslator struct{}

func (countTranslator) Generate(_ context.Context, _ nl2sql.Request) (nl2sql.Generation, error) {
	return nl2sql.Structured(nl2sql.SQLGenerationResult{
		SQL:               "SELECT COUNT(*) AS tiendas FROM tiendas",
		BusinessContext:   "Store count",
		Confidence:        0.8,
		RequiresExecution: true,
	}), nil
}

func (countTranslator) Synthesize(_ context.Context, _ nl2sql.InsightRequest) (nl2sql.Insight, error) {
	return nl2sql.Insight{KeyFinding: "There are 2 stores", SupportingMetrics: []string{"tiendas: 2"}}, nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = raw
	return storage.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: int64(len(m.objects[key]))}, nil
}

type testEnv struct {
	env    cliEnv
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	store  *memoryStore
}

func newTestEnv(t *testing.T, stdin string, values map[string]string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tiendas.csv")
	if err := os.WriteFile(path, []byte("tienda_id,region\nT001,Norte\nT002,Sur\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	env := map[string]string{
		"INSIGHTBOT_PROFILE":  "test",
		"INSIGHTBOT_DATASETS": "tiendas=" + path,
	}
	for key, value := range values {
		env[key] = value
	}

	te := &testEnv{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, store: &memoryStore{objects: map[string][]byte{}}}
	te.env = cliEnv{
		lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
		newApp: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger, app.Options{Translator: countTranslator{}})
		},
		newStore: func(_ context.Context, _ config.Config) (storage.ObjectStore, error) {
			return te.store, nil
		},
		newSession: func() string { return "chat-session" },
		stdin:      strings.NewReader(stdin),
		stdout:     te.stdout,
		stderr:     te.stderr,
	}
	return te
}

func (te *testEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCommand(te.env)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestAskCommandPrintsAnswer(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "ask", "How", "many", "stores?"); err != nil {
		t.Fatalf("ask error = %v, stderr = %s", err, te.stderr.String())
	}
	out := te.stdout.String()
	if !strings.Contains(out, "There are 2 stores") || !strings.Contains(out, "SQL: SELECT COUNT(*)") {
		t.Fatalf("stdout = %s", out)
	}
}

func TestAskCommandJSON(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "ask", "--json", "--session", "s-1", "How many stores?"); err != nil {
		t.Fatalf("ask error = %v", err)
	}
	var response pipeline.Response
	if err := json.Unmarshal(te.stdout.Bytes(), &response); err != nil {
		t.Fatalf("json decode failed: %v, stdout = %s", err, te.stdout.String())
	}
	if response.SessionID != "s-1" || !response.SQLExecuted || len(response.Data) != 1 {
		t.Fatalf("response = %#v", response)
	}
}

func TestAskCommandRequiresQuestion(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "ask"); err == nil {
		t.Fatal("expected missing argument error")
	}
}

func TestChatCommandKeepsOneSession(t *testing.T) {
	te := newTestEnv(t, "How many stores?\n\nHow many stores?\nexit\nignored\n", nil)
	if err := te.run(t, "chat"); err != nil {
		t.Fatalf("chat error = %v", err)
	}
	out := te.stdout.String()
	if !strings.Contains(out, "session chat-session") {
		t.Fatalf("stdout = %s", out)
	}
	if strings.Count(out, "There are 2 stores") != 2 {
		t.Fatalf("expected two answers, stdout = %s", out)
	}
	if !strings.Contains(out, "(cached)") {
		t.Fatalf("second identical question should be cached, stdout = %s", out)
	}
}

func TestSchemaCommand(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "schema"); err != nil {
		t.Fatalf("schema error = %v", err)
	}
	if !strings.Contains(te.stdout.String(), "tiendas") {
		t.Fatalf("stdout = %s", te.stdout.String())
	}

	te = newTestEnv(t, "", map[string]string{"INSIGHTBOT_DATASETS": "tiendas=" + filepath.Join(t.TempDir(), "none.csv")})
	if err := te.run(t, "schema"); err == nil {
		t.Fatal("expected error without datasets")
	}
}

func TestStatsCommand(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "stats"); err != nil {
		t.Fatalf("stats error = %v", err)
	}
	var stats pipeline.Stats
	if err := json.Unmarshal(te.stdout.Bytes(), &stats); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if stats.Cache.TotalCachedQueries != 0 {
		t.Fatalf("stats = %#v", stats)
	}
}

func TestDemoDataCommandWritesFiles(t *testing.T) {
	out := t.TempDir()
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "demo-data", "--out", out, "--format", "parquet", "--stores", "8"); err != nil {
		t.Fatalf("demo-data error = %v", err)
	}
	for _, name := range []string{"tiendas.parquet", "maestro_tiendas.parquet"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if !strings.Contains(te.stdout.String(), "wrote 8 stores") {
		t.Fatalf("stdout = %s", te.stdout.String())
	}
}

func TestDemoDataCommandUploads(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "demo-data", "--out", t.TempDir(), "--upload"); err != nil {
		t.Fatalf("demo-data error = %v", err)
	}
	if _, ok := te.store.objects["datasets/tiendas.csv"]; !ok {
		t.Fatalf("objects = %v", te.store.objects)
	}
	if !strings.Contains(te.stdout.String(), "INSIGHTBOT_DATASETS=tiendas=s3://datasets/tiendas.csv") {
		t.Fatalf("stdout = %s", te.stdout.String())
	}
}

func TestDemoDataCommandRejectsUnknownFormat(t *testing.T) {
	te := newTestEnv(t, "", nil)
	if err := te.run(t, "demo-data", "--out", t.TempDir(), "--format", "json"); err == nil {
		t.Fatal("expected format error")
	}
}
