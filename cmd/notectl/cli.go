package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v2"

	"bilinote/internal/config"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/services"
	"bilinote/internal/repository"
	"bilinote/internal/seed"
	"bilinote/internal/service"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "notectl",
		Usage:   "Manage the bilinote history and folder store",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Usage: "Database URL or SQLite path (overrides DATABASE_URL)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "Log at debug level to stderr"},
		},
		Commands: []*cli.Command{
			migrateCmd(cfg),
			seedCmd(cfg),
			importCmd(cfg),
			foldersCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// migrateCmd creates the migrate command.
func migrateCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the schema",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "reset", Usage: "Drop all tables first (refused in prod)"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("reset") && cfg.Environment == "prod" {
				return cli.Exit("refusing to drop tables in the prod environment", 1)
			}

			store, _, err := open(c, cfg)
			if err != nil {
				return outputError(err)
			}
			defer store.Close()

			if c.Bool("reset") {
				if err := store.Reset(c.Context); err != nil {
					return outputError(err)
				}
				fmt.Fprintln(c.App.Writer, "tables dropped")
			}

			fmt.Fprintf(c.App.Writer, "schema ready (%s, prefix %q)\n", store.Backend, cfg.TablePrefix)
			return nil
		},
	}
}

// seedCmd creates the seed command.
func seedCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "Load folders and history from a YAML fixture",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("seed requires exactly one FILE argument", 2)
			}

			fx, err := seed.LoadFile(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			store, svcs, err := open(c, cfg)
			if err != nil {
				return outputError(err)
			}
			defer store.Close()

			seeder := seed.NewSeeder(svcs.Folders, svcs.Upsert, cliLogger(c))
			result, err := seeder.Apply(c.Context, fx)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, result)
		},
	}
}

// importCmd creates the import command.
func importCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import tasks from a localStorage export ({\"state\":{\"tasks\":[...]}})",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the full per-item result as JSON"},
			&cli.StringFlag{
				Name:  "default-status",
				Value: models.StatusUnknown,
				Usage: "Status for tasks that carry none (empty to reject them)",
			},
			&cli.StringFlag{
				Name:  "default-platform",
				Value: "unknown",
				Usage: "Platform for tasks that carry none (empty to reject them)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("import requires exactly one FILE argument", 2)
			}

			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			items, err := extractTasks(data)
			if err != nil {
				return outputError(err)
			}

			store, svcs, err := open(c, cfg)
			if err != nil {
				return outputError(err)
			}
			defer store.Close()

			opts := services.ImportOptions{
				DefaultStatus:   strings.TrimSpace(c.String("default-status")),
				DefaultPlatform: strings.TrimSpace(c.String("default-platform")),
			}
			result, err := importInChunks(c.Context, svcs.Upsert, items, opts)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, result)
			}
			printImportResult(c.App.Writer, result)
			return nil
		},
	}
}

// foldersCmd creates the folders command.
func foldersCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "Print the folder tree",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the tree as JSON"},
		},
		Action: func(c *cli.Context) error {
			store, svcs, err := open(c, cfg)
			if err != nil {
				return outputError(err)
			}
			defer store.Close()

			tree, err := svcs.Folders.GetTree(c.Context)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, tree)
			}
			printTree(c.App.Writer, tree, 0)
			return nil
		},
	}
}

// Helper functions

// open connects to the configured store and wires the services.
func open(c *cli.Context, cfg *config.Config) (*repository.Store, *service.Services, error) {
	runCfg := *cfg
	if url := c.String("db"); url != "" {
		runCfg.DatabaseURL = url
	}

	logger := cliLogger(c)
	store, err := repository.Open(c.Context, &runCfg, logger)
	if err != nil {
		return nil, nil, err
	}

	svcs := service.SetupServices(store.Folders, store.History, store.TxManager, &runCfg, logger)
	return store, svcs, nil
}

// cliLogger logs to stderr so stdout stays parseable.
func cliLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

// extractTasks pulls the task list out of a localStorage export. A bare
// array or a top-level "tasks" array is accepted too.
func extractTasks(data []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("import file is not valid JSON")
	}

	var list gjson.Result
	for _, path := range []string{"state.tasks", "tasks", "@this"} {
		if r := gjson.GetBytes(data, path); r.IsArray() {
			list = r
			break
		}
	}
	if !list.Exists() {
		return nil, fmt.Errorf("import file has no task list (expected state.tasks)")
	}

	items := make([]json.RawMessage, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		items = append(items, json.RawMessage(value.Raw))
		return true
	})
	return items, nil
}

// importInChunks feeds items to ImportBatchWith without exceeding its size cap,
// re-indexing per-item results against the whole file.
func importInChunks(ctx context.Context, upsert services.UpsertService, items []json.RawMessage, opts services.ImportOptions) (*services.ImportBatchResult, error) {
	total := &services.ImportBatchResult{Items: []services.ImportItemResult{}}

	for start := 0; start < len(items); start += config.MaxImportBatchSize {
		end := min(start+config.MaxImportBatchSize, len(items))

		result, err := upsert.ImportBatchWith(ctx, items[start:end], opts)
		if err != nil {
			return total, err
		}

		total.Created += result.Created
		total.Skipped += result.Skipped
		total.Failed += result.Failed
		for _, item := range result.Items {
			item.Index += start
			total.Items = append(total.Items, item)
		}
	}
	return total, nil
}

func printImportResult(w io.Writer, result *services.ImportBatchResult) {
	for _, item := range result.Items {
		line := fmt.Sprintf("#%d %s %s", item.Index, item.TaskID, item.Outcome)
		if item.Reason != "" {
			line += ": " + item.Reason
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "created %d, skipped %d, failed %d\n", result.Created, result.Skipped, result.Failed)
}

func printTree(w io.Writer, nodes []*models.FolderTreeNode, depth int) {
	for _, node := range nodes {
		marker := "+"
		if node.IsExpanded {
			marker = "-"
		}
		fmt.Fprintf(w, "%s%s %s (%s)\n", strings.Repeat("  ", depth), marker, node.Name, node.ID)
		printTree(w, node.Children, depth+1)
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}
