package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/logger"
)

// migrator is the part of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Migrate(version uint) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	defer m.Close()

	if err := run(m, args, log); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}
}

var errUsage = errors.New("invalid usage")

// run executes one command. Commands that find nothing to apply succeed.
func run(m migrator, args []string, log zerolog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "up":
		if err := ignoreNoChange(m.Up()); err != nil {
			return fmt.Errorf("up: %w", err)
		}
	case "down":
		// One step by default; "down all" rolls back every migration.
		if len(args) > 1 && args[1] == "all" {
			if err := ignoreNoChange(m.Down()); err != nil {
				return fmt.Errorf("down: %w", err)
			}
			break
		}
		n, err := optionalCount(args, 1)
		if err != nil {
			return err
		}
		if err := ignoreNoChange(m.Steps(-n)); err != nil {
			return fmt.Errorf("down %d: %w", n, err)
		}
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("%w: steps requires a count", errUsage)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n == 0 {
			return fmt.Errorf("%w: invalid step count %q", errUsage, args[1])
		}
		if err := ignoreNoChange(m.Steps(n)); err != nil {
			return fmt.Errorf("steps %d: %w", n, err)
		}
	case "goto":
		if len(args) < 2 {
			return fmt.Errorf("%w: goto requires a version", errUsage)
		}
		v, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid version %q", errUsage, args[1])
		}
		if err := ignoreNoChange(m.Migrate(uint(v))); err != nil {
			return fmt.Errorf("goto %d: %w", v, err)
		}
	case "version":
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("%w: force requires a version", errUsage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: invalid version %q", errUsage, args[1])
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force %d: %w", v, err)
		}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	return logVersion(m, args[0], log)
}

func logVersion(m migrator, command string, log zerolog.Logger) error {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Str("command", command).Msg("No migrations applied")
		return nil
	case err != nil:
		return fmt.Errorf("version: %w", err)
	}

	ev := log.Info()
	if dirty {
		ev = log.Warn()
	}
	ev.Str("command", command).Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
	return nil
}

func optionalCount(args []string, def int) (int, error) {
	if len(args) < 2 {
		return def, nil
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid step count %q", errUsage, args[1])
	}
	return n, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: migrate [flags] <command>")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up                apply all pending migrations")
	fmt.Fprintln(w, "  down [N|all]      roll back N migrations (default 1) or all of them")
	fmt.Fprintln(w, "  steps N           apply N migrations, negative to roll back")
	fmt.Fprintln(w, "  goto V            migrate up or down to version V")
	fmt.Fprintln(w, "  version           print the current schema version")
	fmt.Fprintln(w, "  force V           set the version without running migrations")
	fmt.Fprintln(w, "Flags:")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
