package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand runs one 'migrate' action against the database at
// dbPath: up, down, status, version <n>, force <n> or help. The database is
// opened without migrating so the action alone decides the schema version.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("migrate: missing action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}
	if dbPath == "" {
		return fmt.Errorf("migrate %s: -db is required", action)
	}

	migrations, err := MigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
	case "status":
	case "version":
		target, err := versionArg(args, action)
		if err != nil {
			return err
		}
		if err := database.MigrateTo(migrations, uint(target)); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", target, err)
		}
	case "force":
		target, err := versionArg(args, action)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "forcing migration version to %d (recovery from a dirty state only)\n", target)
		if err := database.MigrateForce(migrations, target); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return printMigrateStatus(database, migrations, out)
}

func versionArg(args []string, action string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: tpcreco -db <file> migrate %s <version_number>", action)
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version number: %s", args[1])
	}
	return v, nil
}

func printMigrateStatus(database *DB, migrations fs.FS, out io.Writer) error {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "current version: %d (latest %d, dirty: %t)\n", version, latest, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-execution; inspect the database, then run: tpcreco -db <file> migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp lists the migrate actions.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: tpcreco -db <file> migrate <action> [version]

Actions:
  up                 apply all pending migrations
  down               roll back one migration
  status             show the current schema version
  version <n>        migrate up or down to version n
  force <n>          set the version without running migrations (recovery)
  help               show this help
`)
}
