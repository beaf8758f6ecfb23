package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/eihwaz/internal"
	"github.com/starford/eihwaz/internal/identity"
	"github.com/starford/eihwaz/internal/index"
	"github.com/starford/eihwaz/internal/mcpserver"
	"github.com/starford/eihwaz/internal/relation"
	"github.com/starford/eihwaz/internal/shellenv"
	"github.com/starford/eihwaz/internal/storage"
	"github.com/starford/eihwaz/internal/tagservice"
	pkgconfig "github.com/starford/eihwaz/pkg/config"
)

func newLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newService builds the application service for one-shot CLI commands.
// The search index is only opened when withIndex is set; plain tagging
// operations never touch SQLite.
func newService(cmd *cli.Command, withIndex bool) (*tagservice.Service, func(), error) {
	logger := newLogger(cmd)
	provider := storage.NewJSONFile(cmd.String("store"))
	resolver := identity.NewResolver(cmd.String("root"), int(cmd.Int("workers")), logger)

	var (
		db      *index.DB
		cleanup = func() {}
	)
	if withIndex {
		var err error
		db, err = index.Open(cmd.String("index"))
		if err != nil {
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		cleanup = func() { _ = db.Close() }
	}
	return tagservice.New(provider, resolver, db, logger), cleanup, nil
}

// printReports writes one line per operation. Domain rejections are part
// of the normal output contract, so they never fail the process.
func printReports(reports []tagservice.Report) {
	for _, rep := range reports {
		if rep.Rejected() {
			fmt.Println(rep.Err.Error())
			continue
		}
		fmt.Println(rep.Result.String())
	}
}

// finish maps domain rejections to a printed line and a zero exit; real
// failures propagate to cli and exit non-zero.
func finish(err error) error {
	if err == nil {
		return nil
	}
	if tagservice.IsDomain(err) {
		fmt.Println(err.Error())
		return nil
	}
	return err
}

func applyAction(ctx context.Context, cmd *cli.Command) error {
	defPath := cmd.Args().First()
	if defPath == "" {
		defPath = "tags.ents"
	}
	svc, cleanup, err := newService(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := svc.ApplyDefinition(ctx, defPath); err != nil {
		return err
	}
	fmt.Printf("Successfully parsed %s and saved to %s\n", defPath, cmd.String("store"))
	return nil
}

func fileAction(op relation.Op) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args().Slice()
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <file> <tag>...", cmd.Name)
		}
		svc, cleanup, err := newService(cmd, false)
		if err != nil {
			return err
		}
		defer cleanup()
		reports, err := svc.FileToTags(ctx, op, args[0], args[1:])
		printReports(reports)
		return finish(err)
	}
}

func tagAction(op relation.Op) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args().Slice()
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <tag> <file>...", cmd.Name)
		}
		svc, cleanup, err := newService(cmd, false)
		if err != nil {
			return err
		}
		defer cleanup()
		reports, err := svc.TagToFiles(ctx, op, args[0], args[1:])
		printReports(reports)
		return finish(err)
	}
}

func filterAction(ctx context.Context, cmd *cli.Command) error {
	svc, cleanup, err := newService(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	files, err := svc.Filter(ctx, cmd.Args().Slice())
	if err != nil {
		return finish(err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func intersectAction(ctx context.Context, cmd *cli.Command) error {
	svc, cleanup, err := newService(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	files, err := svc.Intersect(ctx, cmd.Args().Slice())
	if err != nil {
		return finish(err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("usage: inspect <file>...")
	}
	svc, cleanup, err := newService(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	out, err := svc.Inspect(ctx, args)
	if err != nil {
		return finish(err)
	}
	for _, ft := range out {
		fmt.Printf("%s:\n", ft.File)
		for _, tag := range ft.Tags {
			fmt.Printf("\t%s\n", tag)
		}
	}
	return nil
}

func tagsAction(ctx context.Context, cmd *cli.Command) error {
	svc, cleanup, err := newService(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	tags, err := svc.ListTags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		fmt.Printf("%s\t%s\t%d\n", t.Kind, t.Path, t.Files)
	}
	return nil
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	q := cmd.Args().First()
	if q == "" {
		return fmt.Errorf("usage: search <query>")
	}
	svc, cleanup, err := newService(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := svc.SyncIndex(ctx); err != nil {
		return err
	}
	results, err := svc.Search(ctx, q, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s\t%s\n", r.Kind, r.Path)
	}
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	svc, cleanup, err := newService(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := svc.SyncIndex(ctx); err != nil {
		newLogger(cmd).Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(svc).ServeStdio()
}

func shellAction(_ context.Context, _ *cli.Command) error {
	fmt.Print(shellenv.Script(os.Getenv("SHELL")))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "eihwaz",
		Usage: "Hierarchical file tagging with inode-tracked identity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Path to the persisted tag registry",
				Value:   "tags.json",
				Sources: cli.EnvVars("EIHWAZ_STORE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Root directory for locating moved files",
				Value:   ".",
				Sources: cli.EnvVars("EIHWAZ_ROOT"),
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent directory scan workers",
				Value: identity.DefaultWorkers,
			},
			&cli.StringFlag{
				Name:    "index",
				Usage:   "Path to the SQLite search index",
				Value:   "eihwaz.db",
				Sources: cli.EnvVars("EIHWAZ_INDEX"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "apply",
				Aliases:   []string{"process", "parse"},
				Usage:     "Parse a hierarchy definition and reconcile it into the store",
				ArgsUsage: "[definition-file]",
				Action:    applyAction,
			},
			{
				Name:      "file",
				Aliases:   []string{"ftt"},
				Usage:     "Assign or remove tags on one file",
				ArgsUsage: "<add|remove> <file> <tag>...",
				Commands: []*cli.Command{
					{Name: "add", Aliases: []string{"assign"}, Action: fileAction(relation.OpAdd)},
					{Name: "remove", Aliases: []string{"rm"}, Action: fileAction(relation.OpRemove)},
				},
			},
			{
				Name:      "tag",
				Aliases:   []string{"ttf"},
				Usage:     "Assign or remove one tag on many files",
				ArgsUsage: "<add|remove> <tag> <file>...",
				Commands: []*cli.Command{
					{Name: "add", Aliases: []string{"assign"}, Action: tagAction(relation.OpAdd)},
					{Name: "remove", Aliases: []string{"rm"}, Action: tagAction(relation.OpRemove)},
				},
			},
			{
				Name:      "filter",
				Aliases:   []string{"union", "fil", "un"},
				Usage:     "List files under any of the given tags or their descendants",
				ArgsUsage: "<tag>...",
				Action:    filterAction,
			},
			{
				Name:      "intersect",
				Aliases:   []string{"intersection", "int"},
				Usage:     "List files common to every given tag",
				ArgsUsage: "<tag>...",
				Action:    intersectAction,
			},
			{
				Name:      "inspect",
				Aliases:   []string{"insp"},
				Usage:     "Show the tag paths assigned to files",
				ArgsUsage: "<file>...",
				Action:    inspectAction,
			},
			{
				Name:   "tags",
				Usage:  "List every visible tag",
				Action: tagsAction,
			},
			{
				Name:      "search",
				Usage:     "Search tag paths and tracked file paths",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Maximum results", Value: 20},
				},
				Action: searchAction,
			},
			{
				Name:  "serve",
				Usage: "Run the HTTP API with SSE updates and a definition watcher",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Aliases:     []string{"c"},
						Usage:       "Path to config file",
						DefaultText: "config/config.yaml",
						Value:       "config/config.yaml",
						Sources:     cli.EnvVars("APP_CONFIG_FILE"),
					},
				},
				Action: serveAction,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: mcpAction,
			},
			{
				Name:   "shell",
				Usage:  "Print shell helper functions for prompt-based tagging",
				Action: shellAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
