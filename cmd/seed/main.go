package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravadigital/eventhub-api/internal/config"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/services"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/factory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level)
	log := logger.Command("seed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := factory.Open(ctx, cfg)
	if err != nil {
		log.Error("Failed to open storage", "storage", cfg.Storage.Type, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	if err := run(ctx, cfg, backend); err != nil {
		log.Error("Seed failed", "error", err)
		backend.Close()
		os.Exit(1)
	}
}

// run makes sure at least one admin exists
func run(ctx context.Context, cfg *config.Config, backend storage.Backend) error {
	log := logger.Command("seed")

	svc, err := services.FromConfig(backend, cfg)
	if err != nil {
		return err
	}

	admin, created, err := svc.Users.EnsureAdmin(ctx, services.CreateUserRequest{
		Email:     cfg.Seed.AdminEmail,
		FirstName: cfg.Seed.AdminFirstName,
		LastName:  cfg.Seed.AdminLastName,
	})
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if !created {
		log.Info("Admin already present, nothing to seed")
		return nil
	}

	log.Info("Admin user created", "user_id", admin.ID, "email", admin.Email)
	return nil
}
