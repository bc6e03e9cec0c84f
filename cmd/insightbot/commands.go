package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/duckmesh/insightbot/internal/app"
	"github.com/duckmesh/insightbot/internal/config"
	"github.com/duckmesh/insightbot/internal/demo/generator"
	"github.com/duckmesh/insightbot/internal/observability"
	"github.com/duckmesh/insightbot/internal/pipeline"
	"github.com/duckmesh/insightbot/internal/storage"
	s3store "github.com/duckmesh/insightbot/internal/storage/s3"
)

// cliEnv carries the dependencies of every command so tests can swap them.
type cliEnv struct {
	lookup     config.LookupFunc
	newApp     func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)
	newStore   func(ctx context.Context, cfg config.Config) (storage.ObjectStore, error)
	newSession func() string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func defaultEnv() cliEnv {
	return cliEnv{
		lookup: os.LookupEnv,
		newApp: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger, app.Options{})
		},
		newStore: func(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
			store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
			if err != nil {
				return nil, err
			}
			if err := store.EnsureBucket(ctx); err != nil {
				return nil, err
			}
			return store, nil
		},
		newSession: uuid.NewString,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

func newRootCommand(env cliEnv) *cobra.Command {
	root := &cobra.Command{
		Use:          "insightbot",
		Short:        "insightbot - ask business questions about your datasets",
		SilenceUsage: true,
	}
	root.SetIn(env.stdin)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")

	load := func(cmd *cobra.Command, service string) (*app.App, error) {
		cfg, err := config.Load(service, env.lookup)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if !verbose && service != "insightbot-api" {
			cfg.Observability.LogLevel = slog.LevelWarn
			cfg.Observability.LogJSON = false
		}
		logger := observability.NewLogger(cfg, env.stderr)
		return env.newApp(cmd.Context(), cfg, logger)
	}

	root.AddCommand(
		newServeCommand(load),
		newAskCommand(env, load),
		newChatCommand(env, load),
		newSchemaCommand(env, load),
		newStatsCommand(env, load),
		newDemoDataCommand(env),
	)
	return root
}

type loadFunc func(cmd *cobra.Command, service string) (*app.App, error)

func newServeCommand(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd, "insightbot-api")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.Serve(cmd.Context())
		},
	}
}

func newAskCommand(env cliEnv, load loadFunc) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd, "insightbot")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			response, err := a.Orchestrator.Ask(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(env.stdout, response)
			}
			printResponse(env.stdout, response)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id for conversation memory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func newChatCommand(env cliEnv, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive session with conversation memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd, "insightbot")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sessionID := env.newSession()
			fmt.Fprintf(env.stdout, "insightbot chat (session %s, type 'exit' to quit)\n", sessionID)
			scanner := bufio.NewScanner(env.stdin)
			for {
				fmt.Fprint(env.stdout, "\n> ")
				if !scanner.Scan() {
					break
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "exit" || input == "quit" {
					break
				}
				response, err := a.Orchestrator.Ask(cmd.Context(), input, sessionID)
				if err != nil {
					fmt.Fprintf(env.stderr, "error: %v\n", err)
					continue
				}
				printResponse(env.stdout, response)
			}
			fmt.Fprintln(env.stdout)
			return scanner.Err()
		},
	}
}

func newSchemaCommand(env cliEnv, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the introspected schema context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd, "insightbot")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			info := a.Orchestrator.Schema()
			if len(info.Tables) == 0 {
				return fmt.Errorf("no datasets loaded, check INSIGHTBOT_DATASETS")
			}
			fmt.Fprintln(env.stdout, info.Render())
			return nil
		},
	}
}

func newStatsCommand(env cliEnv, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache and session statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd, "insightbot")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return writeJSON(env.stdout, a.Orchestrator.Stats())
		},
	}
}

func newDemoDataCommand(env cliEnv) *cobra.Command {
	var (
		outDir string
		format string
		stores int
		seed   int64
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "demo-data",
		Short: "Generate the retail A/B experiment demo datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := generator.LoadConfigFromEnv(generator.LookupFunc(env.lookup))
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("out") {
				cfg.OutDir = outDir
			}
			if flags.Changed("format") {
				cfg.Format = generator.Format(strings.ToLower(format))
			}
			if flags.Changed("stores") {
				cfg.Stores = stores
			}
			if flags.Changed("seed") {
				cfg.Seed = seed
			}
			if flags.Changed("upload") {
				cfg.Upload = upload
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			data := generator.NewGenerator(cfg.Seed, cfg.Stores).Generate()
			files, err := generator.Write(cfg.OutDir, cfg.Format, data)
			if err != nil {
				return err
			}
			if cfg.Upload {
				appCfg, err := config.Load("insightbot", env.lookup)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				store, err := env.newStore(cmd.Context(), appCfg)
				if err != nil {
					return fmt.Errorf("initialize object store: %w", err)
				}
				if files, err = generator.Publish(cmd.Context(), store, files); err != nil {
					return err
				}
			}

			fmt.Fprintf(env.stdout, "wrote %d stores and %d master rows to %s\n", len(data.Stores), len(data.Master), cfg.OutDir)
			fmt.Fprintf(env.stdout, "INSIGHTBOT_DATASETS=%s\n", generator.DatasetsSpec(files))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "data", "output directory")
	cmd.Flags().StringVarP(&format, "format", "f", string(generator.FormatCSV), "file format: csv or parquet")
	cmd.Flags().IntVar(&stores, "stores", generator.DefaultStores, "number of stores")
	cmd.Flags().Int64Var(&seed, "seed", generator.DefaultSeed, "random seed")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload the files to the object store")
	return cmd
}

func printResponse(w io.Writer, response pipeline.Response) {
	fmt.Fprintln(w, response.Answer)
	if response.SQLUsed != "" {
		fmt.Fprintf(w, "\nSQL: %s\n", response.SQLUsed)
	}
	if len(response.Data) > 0 && response.SQLExecuted {
		fmt.Fprintf(w, "Rows: %d\n", len(response.Data))
	}
	for _, metric := range response.Insights.SupportingMetrics {
		fmt.Fprintf(w, "  - %s\n", metric)
	}
	if response.Cached {
		fmt.Fprintln(w, "(cached)")
	}
	fmt.Fprintf(w, "confidence %.2f, %.2fs\n", response.Confidence, response.ExecutionTime)
}

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
