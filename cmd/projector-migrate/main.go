// Command projector-migrate applies and inspects the projector's own
// schema migrations (see framework/migrations) against a PostgreSQL
// database. It only manages the two tables a PostgresStoreSessionFactory
// depends on, projections and projector_state; projection rows themselves
// are written by the projector process, not by this tool.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/liquidprojections/projector/framework/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := flag.String("database-url", "", "PostgreSQL connection string (postgres://...)")
	migrationsDir := flag.String("migrations-dir", "./framework/migrations/sql", "directory to scaffold new migration files into")
	flag.CommandLine.Parse(os.Args[2:])

	if command != "create" && *dbURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --database-url is required")
		os.Exit(1)
	}

	switch command {
	case "up":
		withDB(*dbURL, migrations.Migrate)
	case "down":
		withDB(*dbURL, migrations.Rollback)
	case "status":
		withDB(*dbURL, migrations.PrintStatus)
	case "version":
		withDB(*dbURL, printVersion)
	case "create":
		runCreate(*migrationsDir, flag.Args())
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printVersion(db *sql.DB) error {
	version, err := migrations.CurrentVersion(db)
	if err != nil {
		return err
	}
	fmt.Println(version)
	return nil
}

func runCreate(migrationsDir string, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: migration name is required")
		os.Exit(1)
	}
	if err := migrations.CreateSQLMigration(migrationsDir, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created migration %q under %s\n", args[0], migrationsDir)
}

func withDB(dbURL string, fn func(*sql.DB) error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := fn(db); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("projector-migrate: manage the projector's schema migrations")
	fmt.Println()
	fmt.Println("Usage: projector-migrate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              apply all pending migrations")
	fmt.Println("  down            roll back the most recently applied migration")
	fmt.Println("  status          show the applied/pending state of every migration")
	fmt.Println("  version         print the current schema version")
	fmt.Println("  create <name>   scaffold a new migration file")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url    PostgreSQL connection string (required except for create)")
	fmt.Println("  --migrations-dir  directory to scaffold new migration files into")
}
