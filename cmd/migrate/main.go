package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/migrate"
)

const usage = "usage: migrate up|down|status"

func main() {
	if len(os.Args) != 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.SlogLevel()})))

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(context.Background(), migrate.NewManager(db.SQL()), os.Args[1]); err != nil {
		slog.Error("migration command failed", "command", os.Args[1], "error", err)
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, m *migrate.Manager, command string) error {
	switch command {
	case "up":
		applied, err := m.Up(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("Nothing to apply")
		}
		for _, name := range applied {
			fmt.Println("Applied", name)
		}
	case "down":
		name, err := m.Down(ctx)
		if errors.Is(err, migrate.ErrNothingToRollback) {
			fmt.Println("Nothing to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Rolled back", name)
	case "status":
		applied, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}
	return nil
}
