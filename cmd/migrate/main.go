package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-scheduler/internal/adapters/postgres"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/sqlite"
)

var (
	flags      = flag.NewFlagSet("migrate", flag.ExitOnError)
	driver     = flags.String("driver", getEnv("DB_DRIVER", "postgres"), "postgres or sqlite")
	dbURL      = flags.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	sqlitePath = flags.String("sqlite-path", getEnv("SQLITE_PATH", "scheduler.db"), "sqlite database file")
)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	provider, err := openProvider(ctx)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer provider.Close()

	if err := run(ctx, provider, args[0], args[1:]); err != nil {
		log.Fatalf("migrate %s: %v", args[0], err)
	}
}

func openProvider(ctx context.Context) (*goose.Provider, error) {
	switch *driver {
	case "postgres":
		if *dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL or -database-url is required")
		}
		cfg := postgres.DefaultPoolConfig(*dbURL)
		cfg.MaxConns = 2
		cfg.MinConns = 0
		pool, err := postgres.NewPool(ctx, cfg, zap.NewNop())
		if err != nil {
			return nil, err
		}
		return postgres.NewMigrationProvider(pool)
	case "sqlite":
		db, err := sqlite.Open(ctx, *sqlitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewMigrationProvider(db)
	default:
		return nil, fmt.Errorf("unknown driver %q", *driver)
	}
}

func run(ctx context.Context, p *goose.Provider, command string, args []string) error {
	switch command {
	case "up":
		results, err := p.Up(ctx)
		printResults(results)
		return err
	case "up-by-one":
		result, err := p.UpByOne(ctx)
		printResults([]*goose.MigrationResult{result})
		return err
	case "up-to":
		version, err := versionArg(args)
		if err != nil {
			return err
		}
		results, err := p.UpTo(ctx, version)
		printResults(results)
		return err
	case "down":
		result, err := p.Down(ctx)
		printResults([]*goose.MigrationResult{result})
		return err
	case "down-to":
		version, err := versionArg(args)
		if err != nil {
			return err
		}
		results, err := p.DownTo(ctx, version)
		printResults(results)
		return err
	case "reset":
		results, err := p.DownTo(ctx, 0)
		printResults(results)
		return err
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-20s %s\n", applied, s.Source.Path)
		}
		return nil
	case "version":
		version, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version %d\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func versionArg(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("a VERSION argument is required")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func printResults(results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Printf("%-4s %-50s %s\n", r.Direction, r.Source.Path, r.Duration)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func usage() {
	fmt.Print(`Usage: migrate [-driver postgres|sqlite] [-database-url URL] [-sqlite-path FILE] COMMAND

Commands:
    up                   Migrate the DB to the most recent version available
    up-by-one            Migrate the DB up by 1
    up-to VERSION        Migrate the DB to a specific VERSION
    down                 Roll back the version by 1
    down-to VERSION      Roll back to a specific VERSION
    reset                Roll back all migrations
    status               Dump the migration status for the current DB
    version              Print the current version of the database

Examples:
    migrate up
    migrate -driver sqlite -sqlite-path data/scheduler.db status
`)
}
