package generator

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/insightbot/internal/storage"
)

const (
	StoresTable = "tiendas"
	MasterTable = "maestro_tiendas"
)

type File struct {
	Table string
	Path  string
	Key   string
}

// Write stores both tables under dir in the requested format.
func Write(dir string, format Format, data Dataset) ([]File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	files := []File{
		{Table: StoresTable, Path: filepath.Join(dir, StoresTable+"."+string(format))},
		{Table: MasterTable, Path: filepath.Join(dir, MasterTable+"."+string(format))},
	}
	var err error
	switch format {
	case FormatCSV:
		if err = writeFile(files[0].Path, func(w io.Writer) error { return writeStoresCSV(w, data.Stores) }); err == nil {
			err = writeFile(files[1].Path, func(w io.Writer) error { return writeMasterCSV(w, data.Master) })
		}
	case FormatParquet:
		if err = writeFile(files[0].Path, func(w io.Writer) error { return writeParquet(w, data.Stores) }); err == nil {
			err = writeFile(files[1].Path, func(w io.Writer) error { return writeParquet(w, data.Master) })
		}
	default:
		return nil, fmt.Errorf("unsupported demo format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Publish uploads written files to the object store under datasets/<table>.<format>.
func Publish(ctx context.Context, store storage.ObjectStore, files []File) ([]File, error) {
	out := make([]File, 0, len(files))
	for _, file := range files {
		format := strings.TrimPrefix(filepath.Ext(file.Path), ".")
		key, err := storage.DatasetKey(file.Table, format)
		if err != nil {
			return out, err
		}
		if err := uploadFile(ctx, store, key, file.Path); err != nil {
			return out, err
		}
		file.Key = key
		out = append(out, file)
	}
	return out, nil
}

// DatasetsSpec renders the INSIGHTBOT_DATASETS value that loads the files.
func DatasetsSpec(files []File) string {
	parts := make([]string, 0, len(files))
	for _, file := range files {
		location := file.Path
		if file.Key != "" {
			location = storage.URI(file.Key)
		}
		parts = append(parts, file.Table+"="+location)
	}
	return strings.Join(parts, ",")
}

func uploadFile(ctx context.Context, store storage.ObjectStore, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	if _, err := store.Put(ctx, key, file, info.Size(), storage.PutOptions{ContentType: storage.ContentType(key)}); err != nil {
		return fmt.Errorf("upload %q: %w", path, err)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	return file.Close()
}

func writeParquet[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		return err
	}
	return writer.Close()
}

func writeStoresCSV(w io.Writer, rows []StoreRow) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"tienda_id", "region", "tipo_tienda", "experimento", "usuarios", "conversiones", "revenue", "conversion_rate"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := out.Write([]string{
			row.TiendaID,
			row.Region,
			row.TipoTienda,
			row.Experimento,
			strconv.FormatInt(row.Usuarios, 10),
			strconv.FormatInt(row.Conversiones, 10),
			strconv.FormatFloat(row.Revenue, 'f', 2, 64),
			strconv.FormatFloat(row.ConversionRate, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func writeMasterCSV(w io.Writer, rows []MasterRow) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"tienda_id", "nombre_tienda", "fecha_apertura", "gerente"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := out.Write([]string{row.TiendaID, row.NombreTienda, row.FechaApertura, row.Gerente}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
