// Command migrate applies the embedded schema migrations and exits. Container
// deployments run it as an init step before 'costwatch serve'.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/costwatch/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := postgres.RunMigrations(context.Background(), db, migrations.GetFS())
	for _, name := range applied {
		fmt.Printf("Applied %s\n", name)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		db.Close()
		os.Exit(1)
	}

	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
	}
}
