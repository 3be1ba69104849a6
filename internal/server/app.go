// Package server assembles the vault engine: configuration, structured
// logging, the metadata database with migrations applied, the payload store
// and the service facade over all of them.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/cryptox"
	"github.com/mosaicedu/notevault/internal/logging"
	"github.com/mosaicedu/notevault/internal/server/blob"
	"github.com/mosaicedu/notevault/internal/server/config"
	"github.com/mosaicedu/notevault/internal/server/repositories/repomanager"
	"github.com/mosaicedu/notevault/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	key    []byte
	vault  *services.VaultService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := newLogger(cfg.LogLevel)

	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}

	driver, manager := repomanager.ForDSN(cfg.DatabaseDSN)
	db, err := sql.Open(driver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := manager.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := blob.NewStore(blob.Options{
		Dir:           cfg.UploadDir,
		Key:           key,
		Compression:   cfg.Compression,
		ZstdLevel:     cfg.ZstdLevel,
		MaxObjectSize: cfg.MaxUploadSize,
	}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	vault, err := services.NewVaultService(db, manager, store, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info(ctx, "vault engine ready",
		"driver", driver, "upload_dir", cfg.UploadDir, "encryption", len(key) > 0)

	return &App{config: cfg, logger: logger, db: db, key: key, vault: vault}, nil
}

// Vault returns the service facade the callers operate through.
func (app *App) Vault() *services.VaultService {
	return app.vault
}

func (app *App) Logger() logging.Logger {
	return app.logger
}

// Close releases the database handle and wipes key material from memory.
func (app *App) Close() error {
	common.WipeByteArray(app.key)
	return app.db.Close()
}

// newLogger builds the JSON logger every component shares. Logs go to
// stderr so stdout stays free for payload output.
func newLogger(level string) logging.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	return logging.NewSlogLogger(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveKey picks the object encryption key: an explicit hex key wins,
// otherwise one is derived from the passphrase and salt, otherwise
// encryption stays off.
func resolveKey(cfg *config.Config) ([]byte, error) {
	if cfg.EncryptionKey != "" {
		key, err := cryptox.ParseKeyHex(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		return key, nil
	}
	if cfg.EncryptionPassphrase != "" {
		if cfg.EncryptionSalt == "" {
			return nil, fmt.Errorf("encryption passphrase set without a salt")
		}
		return cryptox.DeriveKey([]byte(cfg.EncryptionPassphrase), []byte(cfg.EncryptionSalt)), nil
	}
	return nil, nil
}
