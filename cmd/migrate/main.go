// Command migrate manages the deployment store schema: migrate [up|status|down] [-to version].
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/app/migrate"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/config"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "overall deadline")
	to := fs.Int64("to", 0, "with down: roll back to this version instead of one step")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: migrate [flags] up|status|down")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	command := "up"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	cfg := config.Load()
	log := logger.New("catalyst-migrate", logger.ParseLevel(cfg.LogLevel))
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		log.Error("failed to load migrations", "dir", cfg.MigrationsDir, "error", err)
		os.Exit(1)
	}

	if err := run(ctx, runner, command, *to); err != nil {
		log.Error("migration command failed", "command", command, "error", err)
		runner.Close()
		os.Exit(1)
	}
	runner.Close()
}

func run(ctx context.Context, runner *migrate.Runner, command string, to int64) error {
	switch command {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx, to)
	case "status":
		migrations, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, m := range migrations {
			state, at := "pending", ""
			if m.Applied {
				state, at = "applied", m.AppliedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Version, state, at, m.Path)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
