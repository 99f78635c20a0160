package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/modelhub/internal"
	"github.com/starford/modelhub/internal/apperr"
	pkgconfig "github.com/starford/modelhub/pkg/config"
)

var version = "dev"

// loadConfig reads the config file (if present) and applies the catalog
// and shared-dir overrides from flags or their environment variables.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("db") {
		cfg.Catalog.Path = cmd.String("db")
	}
	if cmd.IsSet("shared-dir") {
		cfg.Storage.SharedDir = cmd.String("shared-dir")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "modelhub",
		Usage:   "Import ML models into a shared read-only directory and keep a catalog of them",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("MODELHUB_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the SQLite catalog (overrides catalog.path)",
				Sources: cli.EnvVars("MODELHUB_DB_PATH"),
			},
			&cli.StringFlag{
				Name:    "shared-dir",
				Usage:   "Shared models directory (overrides storage.shared_dir)",
				Sources: cli.EnvVars("MODELHUB_SHARED_DIR"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			cloneCommand(),
			copyCommand(),
			listCommand(),
			deleteCommand(),
			reconcileCommand(),
			mcpCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Run(ctx, os.Args)
	stop()
	if err != nil {
		if kind := apperr.KindOf(err); kind != apperr.KindInternal {
			fmt.Fprintf(os.Stderr, "modelhub: %s: %v\n", kind, err)
			os.Exit(2)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
