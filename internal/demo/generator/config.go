package generator

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultStores = 100
	DefaultSeed   = 42
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	OutDir string
	Format Format
	Stores int
	Seed   int64
	Upload bool
}

func DefaultConfig() Config {
	return Config{
		OutDir: "data",
		Format: FormatCSV,
		Stores: DefaultStores,
		Seed:   DefaultSeed,
	}
}

// LoadConfigFromEnv reads INSIGHTBOT_DEMO_* overrides on top of DefaultConfig.
func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "INSIGHTBOT_DEMO_OUT_DIR", &cfg.OutDir); err != nil {
		return Config{}, err
	}
	var format string
	if err := applyString(lookup, "INSIGHTBOT_DEMO_FORMAT", &format); err != nil {
		return Config{}, err
	}
	if format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}
	if err := applyInt(lookup, "INSIGHTBOT_DEMO_STORES", &cfg.Stores); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "INSIGHTBOT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "INSIGHTBOT_DEMO_UPLOAD", &cfg.Upload); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OutDir) == "" {
		return fmt.Errorf("INSIGHTBOT_DEMO_OUT_DIR is required")
	}
	if c.Format != FormatCSV && c.Format != FormatParquet {
		return fmt.Errorf("unsupported demo format %q, want csv or parquet", c.Format)
	}
	if c.Stores <= 0 {
		return fmt.Errorf("INSIGHTBOT_DEMO_STORES must be > 0")
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
