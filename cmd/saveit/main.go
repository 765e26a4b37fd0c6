package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/bunchhieng/saveit/internal/app"
	commands "github.com/bunchhieng/saveit/internal/cli"
	"github.com/bunchhieng/saveit/internal/config"
	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/service"
	"github.com/bunchhieng/saveit/internal/tui"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "saveit",
		Usage:   "save links now, read them later",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "db-path", Usage: "database path (default: platform config directory)"},
			&cli.StringFlag{Name: "storage", Usage: "storage driver: sqlite or badger"},
			&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Save a link and fetch its preview",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "title for the link"},
					&cli.StringFlag{Name: "note", Usage: "note for the link"},
					&cli.StringFlag{Name: "tags", Usage: "comma-separated tags"},
					&cli.StringFlag{Name: "category", Usage: "category, e.g. " + strings.Join(model.Categories, ", ")},
				},
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					url, err := requireArg(c, "url")
					if err != nil {
						return err
					}
					return cmds.Add(c.Context, service.NewLink{
						URL:      url,
						Title:    c.String("title"),
						Note:     c.String("note"),
						Tags:     model.ParseTags(c.String("tags")),
						Category: c.String("category"),
					})
				}),
			},
			{
				Name:  "list",
				Usage: "List links, most recent first",
				Flags: listFlags(),
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					return cmds.List(criteriaFrom(c, c.String("query")), c.Int("limit"))
				}),
			},
			{
				Name:      "search",
				Usage:     "Search titles, descriptions and tags",
				ArgsUsage: "<query>",
				Flags:     listFlags(),
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					query, err := requireArg(c, "query")
					if err != nil {
						return err
					}
					return cmds.List(criteriaFrom(c, query), c.Int("limit"))
				}),
			},
			{
				Name:      "show",
				Usage:     "Show every detail of a link",
				ArgsUsage: "<id>",
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return err
					}
					return cmds.Show(id)
				}),
			},
			{
				Name:      "edit",
				Usage:     "Change fields of a link; an empty value clears optional fields",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "new URL; the preview is fetched again"},
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "note"},
					&cli.StringFlag{Name: "tags", Usage: "comma-separated tags, replacing the current ones"},
					&cli.StringFlag{Name: "category"},
				},
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return err
					}
					return cmds.Edit(c.Context, id, patchFrom(c))
				}),
			},
			{
				Name:      "progress",
				Usage:     "Record reading progress in percent",
				ArgsUsage: "<id> <percent>",
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					if c.NArg() < 2 {
						return fmt.Errorf("usage: saveit progress <id> <percent>")
					}
					pct, err := strconv.ParseFloat(strings.TrimSuffix(c.Args().Get(1), "%"), 64)
					if err != nil {
						return fmt.Errorf("invalid percent %q", c.Args().Get(1))
					}
					return cmds.Progress(c.Args().First(), pct)
				}),
			},
			{
				Name:      "status",
				Usage:     "Set the status: unread, reading or completed",
				ArgsUsage: "<id> <status>",
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					if c.NArg() < 2 {
						return fmt.Errorf("usage: saveit status <id> <status>")
					}
					return cmds.Status(c.Args().First(), c.Args().Get(1))
				}),
			},
			idCommand("done", "Mark a link as read", (*commands.Commands).Done),
			idCommand("undo", "Mark a link as unread", (*commands.Commands).Undo),
			idCommand("toggle", "Flip a link between read and unread", (*commands.Commands).Toggle),
			idCommand("open", "Open a link in the browser", (*commands.Commands).Open),
			{
				Name:      "rm",
				Usage:     "Delete one or more links",
				ArgsUsage: "<id> [id...]",
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					return cmds.Remove(c.Args().Slice()...)
				}),
			},
			{
				Name:      "read",
				Usage:     "Print the article text of a link",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "cards", Usage: "split the text into two-sentence cards"},
					&cli.BoolFlag{Name: "refresh", Usage: "extract the article again"},
				},
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return err
					}
					return cmds.Read(c.Context, id, c.Bool("refresh"), c.Bool("cards"))
				}),
			},
			{
				Name:  "tags",
				Usage: "List every tag in use",
				Action: withCommands(func(_ *cli.Context, cmds *commands.Commands) error {
					return cmds.Tags()
				}),
			},
			{
				Name:  "export",
				Usage: "Export all links as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write to a file instead of stdout"},
				},
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					out := c.String("output")
					if out == "" {
						return cmds.Export(os.Stdout)
					}
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("create file: %w", err)
					}
					if err := cmds.Export(f); err != nil {
						f.Close()
						return err
					}
					return f.Close()
				}),
			},
			{
				Name:      "import",
				Usage:     "Import links from a JSON export, skipping URLs already saved",
				ArgsUsage: "<file>",
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					file, err := requireArg(c, "file")
					if err != nil {
						return err
					}
					return cmds.Import(file)
				}),
			},
			{
				Name:  "clear",
				Usage: "Delete every link",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "confirm deleting everything"},
				},
				Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
					return cmds.Clear(c.Bool("yes"))
				}),
			},
			{
				Name:  "tui",
				Usage: "Browse and read links interactively",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					go serveMetrics(c.Context, a)
					return tui.Run(c.Context, a.Service)
				}),
			},
			remindCommand(),
		},
	}
}

func listFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "status", Value: filter.StatusAll, Usage: "all, unread, reading or completed"},
		&cli.StringSliceFlag{Name: "tag", Usage: "only links with this tag (repeatable)"},
		&cli.StringFlag{Name: "category", Usage: "only links in this category"},
		&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "text to search for"},
		&cli.IntFlag{Name: "limit", Usage: "limit number of results"},
	}
}

func criteriaFrom(c *cli.Context, query string) filter.Criteria {
	return filter.Criteria{
		Status:   c.String("status"),
		Query:    query,
		Tags:     c.StringSlice("tag"),
		Category: c.String("category"),
	}
}

func patchFrom(c *cli.Context) model.Patch {
	var p model.Patch
	if c.IsSet("url") {
		p.URL = model.Set(c.String("url"))
	}
	if c.IsSet("title") {
		p.Title = model.Set(c.String("title"))
	}
	if c.IsSet("description") {
		p.Description = optional(c.String("description"))
	}
	if c.IsSet("note") {
		p.Note = optional(c.String("note"))
	}
	if c.IsSet("category") {
		p.Category = optional(c.String("category"))
	}
	if c.IsSet("tags") {
		p.Tags = model.Set(model.ParseTags(c.String("tags")))
	}
	return p
}

func optional(s string) model.Opt[string] {
	if strings.TrimSpace(s) == "" {
		return model.Null[string]()
	}
	return model.Set(s)
}

func remindCommand() *cli.Command {
	return &cli.Command{
		Name:  "remind",
		Usage: "Manage the daily reading reminder",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Turn reminders on or off and choose the time",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "on"},
					&cli.BoolFlag{Name: "off"},
					&cli.StringFlag{Name: "at", Usage: "time of day as HH:mm"},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					var enabled *bool
					switch {
					case c.Bool("on") && c.Bool("off"):
						return fmt.Errorf("use either --on or --off")
					case c.Bool("on"):
						v := true
						enabled = &v
					case c.Bool("off"):
						v := false
						enabled = &v
					}
					return newCommands(a).RemindSet(c.Context, a.Reminders(os.Stdout), enabled, c.String("at"))
				}),
			},
			{
				Name:  "status",
				Usage: "Show the reminder settings",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					return newCommands(a).RemindStatus(c.Context, a.Reminders(os.Stdout))
				}),
			},
			{
				Name:  "now",
				Usage: "Send the reminder immediately",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					return newCommands(a).RemindNow(c.Context, a.Reminders(os.Stdout))
				}),
			},
			{
				Name:  "run",
				Usage: "Stay in the foreground and remind daily",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					go serveMetrics(c.Context, a)
					return newCommands(a).RemindRun(c.Context, a.Reminders(os.Stdout))
				}),
			},
		},
	}
}

func idCommand(name, usage string, fn func(*commands.Commands, string) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Action: withCommands(func(c *cli.Context, cmds *commands.Commands) error {
			id, err := requireArg(c, "id")
			if err != nil {
				return err
			}
			return fn(cmds, id)
		}),
	}
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("usage: saveit %s <%s>", c.Command.Name, name)
	}
	return c.Args().First(), nil
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if driver := c.String("storage"); driver != "" && driver != cfg.Storage.Driver {
		if def, err := config.DefaultStoragePath(cfg.Storage.Driver); err == nil && def == cfg.Storage.Path {
			if cfg.Storage.Path, err = config.DefaultStoragePath(driver); err != nil {
				return config.Config{}, err
			}
		}
		cfg.Storage.Driver = driver
	}
	if p := c.String("db-path"); p != "" {
		cfg.Storage.Path = p
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, cfg.Validate()
}

func withApp(fn func(c *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		logger, err := app.NewLogger(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}

		a, err := app.New(c.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.WithError(err).Error("Failed to close")
			}
		}()

		return fn(c, a)
	}
}

func withCommands(fn func(c *cli.Context, cmds *commands.Commands) error) cli.ActionFunc {
	return withApp(func(c *cli.Context, a *app.App) error {
		return fn(c, newCommands(a))
	})
}

func newCommands(a *app.App) *commands.Commands {
	return commands.NewCommands(a.Service)
}

func serveMetrics(ctx context.Context, a *app.App) {
	if err := a.ServeMetrics(ctx); err != nil {
		a.Log.WithError(err).Error("Metrics server stopped")
	}
}
