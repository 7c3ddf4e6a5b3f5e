// tariffctl runs single pipeline steps against the configured database.
//
// Usage:
//
//	tariffctl ingest [--date 2025-01-31]
//	tariffctl publish [--preview]
//	tariffctl targets list|add <id>|remove <id>
//	tariffctl table [--limit 20] [--format table|json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"tariff-sync/internal/app"
	"tariff-sync/internal/config"
	"tariff-sync/internal/logging"
	"tariff-sync/internal/models"
	"tariff-sync/internal/tariff"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tariffctl",
		Usage: "Run WB tariff ingestion and spreadsheet publishing by hand",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logging.Setup(c.String("log-level"), "console")
			return nil
		},
		Commands: []*cli.Command{
			ingestCommand(),
			publishCommand(),
			targetsCommand(),
			tableCommand(),
		},
	}
}

// withApp loads config, applies adjust and runs fn against a fresh App.
func withApp(c *cli.Context, adjust func(*config.Config), fn func(context.Context, *app.App) error) error {
	cfg := config.Load()
	if adjust != nil {
		adjust(cfg)
	}
	a, err := app.New(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(c.Context, a)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Fetch tariffs for a day and store the snapshot",
		Flags: []cli.Flag{
			&cli.TimestampFlag{
				Name:   "date",
				Usage:  "Day to fetch (YYYY-MM-DD), defaults to today UTC",
				Layout: models.DayLayout,
			},
		},
		Action: func(c *cli.Context) error {
			var day time.Time
			if ts := c.Timestamp("date"); ts != nil {
				day = *ts
			}
			return withApp(c, nil, func(ctx context.Context, a *app.App) error {
				items, err := a.Tariffs.FetchAndStore(ctx, day)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "stored %d warehouse records\n", len(items))
				return nil
			})
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Write the latest snapshot to every registered spreadsheet",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "preview",
				Usage: "Log the first rows per target instead of writing",
			},
		},
		Action: func(c *cli.Context) error {
			adjust := func(cfg *config.Config) {
				cfg.FastMode = cfg.FastMode || c.Bool("preview")
			}
			return withApp(c, adjust, func(ctx context.Context, a *app.App) error {
				report := a.Sheets.PublishLatest(ctx)
				if report.Error != "" {
					return errors.New(report.Error)
				}
				if report.Day == "" {
					fmt.Fprintln(c.App.Writer, "no snapshot to publish")
					return nil
				}
				w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "TARGET\tCURRENT\tOUTCOME\tERROR\n")
				failed := 0
				for _, t := range report.Targets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Target, t.Current, t.Outcome, t.Error)
					if t.Error != "" {
						failed++
					}
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d targets failed", failed, len(report.Targets))
				}
				return nil
			})
		},
	}
}

func targetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "targets",
		Usage: "Manage the spreadsheet registry",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered spreadsheet ids",
				Action: func(c *cli.Context) error {
					return withApp(c, nil, func(ctx context.Context, a *app.App) error {
						ids, err := a.Store.ListTargets(ctx)
						if err != nil {
							return err
						}
						for _, id := range ids {
							fmt.Fprintln(c.App.Writer, id)
						}
						return nil
					})
				},
			},
			{
				Name:      "add",
				Usage:     "Register a spreadsheet id",
				ArgsUsage: "<spreadsheet-id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("spreadsheet id is required")
					}
					return withApp(c, nil, func(ctx context.Context, a *app.App) error {
						created, err := a.Store.AddTarget(ctx, id)
						if err != nil {
							return err
						}
						if !created {
							fmt.Fprintf(c.App.Writer, "%s already registered\n", id)
						}
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Unregister a spreadsheet id",
				ArgsUsage: "<spreadsheet-id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("spreadsheet id is required")
					}
					return withApp(c, nil, func(ctx context.Context, a *app.App) error {
						return a.Store.RemoveTarget(ctx, id)
					})
				},
			},
		},
	}
}

func tableCommand() *cli.Command {
	return &cli.Command{
		Name:  "table",
		Usage: "Print the table that publishing would write",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Print at most this many rows (0 for all)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, nil, func(ctx context.Context, a *app.App) error {
				snap, err := a.Store.LatestSnapshot(ctx)
				if err != nil {
					return err
				}
				if snap == nil {
					return errors.New("no tariff snapshot stored yet")
				}
				rows := tariff.BuildRows(snap.Data)
				if n := c.Int("limit"); n > 0 && n < len(rows) {
					rows = rows[:n]
				}
				return printTable(c.App.Writer, c.String("format"), snap.Day, rows)
			})
		},
	}
}

func printTable(out io.Writer, format, day string, rows []tariff.PublishedRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"day": day, "rows": tariff.Grid(rows)})
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "# %s\n", day)
		fmt.Fprintln(w, "WAREHOUSE\tGEO\tCOEFFICIENT")
		for _, r := range rows {
			coef := "-"
			if r.Coefficient.Valid {
				coef = r.Coefficient.Decimal.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Warehouse, r.Geo, coef)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
