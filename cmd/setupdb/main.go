// Command setupdb creates the application database if it does not exist and
// applies the embedded migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cimillas/storefront/internal/config"
	"github.com/cimillas/storefront/internal/logging"
	"github.com/cimillas/storefront/internal/storage/postgres"
	"github.com/cimillas/storefront/migrations"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.App.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := cfg.DB.DatabaseName()
	created, err := ensureDatabase(ctx, cfg.DB.MaintenanceDSN(), name)
	if err != nil {
		logger.Fatal("ensure database", zap.String("database", name), zap.Error(err))
	}
	if created {
		logger.Info("database created", zap.String("database", name))
	} else {
		logger.Info("database already exists", zap.String("database", name))
	}

	pool, err := postgres.OpenPool(ctx, cfg.DB.DSN(), postgres.PoolOptions{MaxConns: 1})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	logger.Info("migrations applied", zap.Strings("files", applied))
}

func ensureDatabase(ctx context.Context, maintenanceDSN, name string) (bool, error) {
	conn, err := pgx.Connect(ctx, maintenanceDSN)
	if err != nil {
		return false, fmt.Errorf("connect to maintenance database: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("create database: %w", err)
	}
	return true, nil
}
