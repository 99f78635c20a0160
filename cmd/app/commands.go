package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/modelhub/internal"
	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/registry"
)

// stdout receives command output; logs go to stderr.
var stdout io.Writer = os.Stdout

// withHub loads the config, opens the hub and runs fn against it.
func withHub(ctx context.Context, cmd *cli.Command, fn func(context.Context, *internal.Hub) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("remove-orphans") {
		cfg.Storage.RemoveOrphans = cmd.Bool("remove-orphans")
	}
	hub, err := internal.NewHub(cfg, internal.NewLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer hub.Close()
	return fn(ctx, hub)
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", apperr.ErrInvalidInput, what)
	}
	return v, nil
}

var nameFlag = &cli.StringFlag{
	Name:    "name",
	Aliases: []string{"n"},
	Usage:   "Model name (derived from the source when empty)",
}

var jsonFlag = &cli.BoolFlag{
	Name:  "json",
	Usage: "Print JSON instead of text",
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API, background import worker and shared-dir watcher",
		Action: serve,
	}
}

func cloneCommand() *cli.Command {
	return &cli.Command{
		Name:      "clone",
		Usage:     "Clone a git repository into the shared directory and register it",
		ArgsUsage: "<url>",
		Flags:     []cli.Flag{nameFlag, jsonFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url, err := requireArg(cmd, "repository URL")
			if err != nil {
				return err
			}
			return withHub(ctx, cmd, func(ctx context.Context, hub *internal.Hub) error {
				res, err := hub.Registry.Clone(ctx, url, cmd.String("name"))
				if err != nil {
					return err
				}
				return printResult(cmd, res)
			})
		},
	}
}

func copyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Copy a local directory into the shared directory and register it",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{nameFlag, jsonFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := requireArg(cmd, "source path")
			if err != nil {
				return err
			}
			return withHub(ctx, cmd, func(ctx context.Context, hub *internal.Hub) error {
				res, err := hub.Registry.CopyLocal(ctx, path, cmd.String("name"))
				if err != nil {
					return err
				}
				return printResult(cmd, res)
			})
		},
	}
}

func printResult(cmd *cli.Command, res *registry.Result) error {
	if cmd.Bool("json") {
		return printJSON(res.Model)
	}
	_, err := fmt.Fprintln(stdout, res.Message())
	return err
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered models",
		Flags: []cli.Flag{jsonFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withHub(ctx, cmd, func(ctx context.Context, hub *internal.Hub) error {
				listing, err := hub.Registry.List(ctx)
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(listing.Models)
				}
				_, err = fmt.Fprintln(stdout, listing.String())
				return err
			})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove a model from the catalog (files are kept)",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name, err := requireArg(cmd, "model name")
			if err != nil {
				return err
			}
			return withHub(ctx, cmd, func(ctx context.Context, hub *internal.Hub) error {
				if err := hub.Registry.Delete(ctx, name); err != nil {
					return err
				}
				_, err := fmt.Fprintf(stdout, "model %q removed from catalog\n", name)
				return err
			})
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Release stale reservations and report drift between catalog and shared directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remove-orphans",
				Usage: "Delete shared-dir entries that have no catalog record",
			},
			jsonFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withHub(ctx, cmd, func(ctx context.Context, hub *internal.Hub) error {
				report, err := hub.Registry.Reconcile(ctx)
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(report)
				}
				if report.Clean() && len(report.InProgress) == 0 {
					_, err = fmt.Fprintln(stdout, "catalog and shared directory are consistent")
					return err
				}
				fmt.Fprintf(stdout, "released reservations: %v\n", report.ReleasedPending)
				if len(report.InProgress) > 0 {
					fmt.Fprintf(stdout, "still importing:       %v\n", report.InProgress)
				}
				fmt.Fprintf(stdout, "missing on disk:       %v\n", report.Missing)
				fmt.Fprintf(stdout, "orphaned entries:      %v\n", report.Orphans)
				_, err = fmt.Fprintf(stdout, "removed orphans:       %v\n", report.RemovedOrphans)
				return err
			})
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the import tools over MCP on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.RunMCP(ctx, version, internal.WithConfig(cfg))
		},
	}
}
