package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/duckmesh/insightbot/internal/query/duckdb"
	"github.com/duckmesh/insightbot/internal/storage"
)

type TableLoader interface {
	LoadFile(ctx context.Context, table, path string, format duckdb.Format) error
	LoadObject(ctx context.Context, table, key string, format duckdb.Format) error
}

type Loader struct {
	Tables  TableLoader
	Store   storage.ObjectStore
	Sources []Source
	Logger  *slog.Logger
}

// Load materializes every source as a table. The first failure stops the load. With no sources the
// engine is expected to already hold its tables.
func (l *Loader) Load(ctx context.Context) ([]string, error) {
	if len(l.Sources) == 0 {
		return nil, nil
	}
	if l.Tables == nil {
		return nil, fmt.Errorf("table loader is required")
	}
	tables := make([]string, 0, len(l.Sources))
	for _, source := range l.Sources {
		var err error
		if source.Remote {
			err = l.Tables.LoadObject(ctx, source.Name, source.Location, source.Format)
		} else {
			err = l.Tables.LoadFile(ctx, source.Name, source.Location, source.Format)
		}
		if err != nil {
			return tables, fmt.Errorf("load dataset %q: %w", source.Name, err)
		}
		if l.Logger != nil {
			l.Logger.InfoContext(ctx, "dataset loaded",
				slog.String("table", source.Name),
				slog.String("location", source.Location),
				slog.Bool("remote", source.Remote),
			)
		}
		tables = append(tables, source.Name)
	}
	return tables, nil
}

// Fingerprint summarizes size and modification metadata of every source. It changes when any source
// file is rewritten.
func (l *Loader) Fingerprint(ctx context.Context) (string, error) {
	hasher := sha256.New()
	for _, source := range l.Sources {
		if source.Remote {
			if l.Store == nil {
				return "", fmt.Errorf("dataset %q: object store is required", source.Name)
			}
			info, err := l.Store.Stat(ctx, source.Location)
			if err != nil {
				return "", fmt.Errorf("stat dataset %q: %w", source.Name, err)
			}
			fmt.Fprintf(hasher, "%s|%s|%d|%d\n", source.Name, info.ETag, info.Size, info.LastModified.UnixNano())
			continue
		}
		info, err := os.Stat(source.Location)
		if err != nil {
			return "", fmt.Errorf("stat dataset %q: %w", source.Name, err)
		}
		fmt.Fprintf(hasher, "%s|%d|%d\n", source.Name, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
