package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/reviewer/internal/core/config"
	redisclient "github.com/vietddude/reviewer/internal/infra/redis"
	"github.com/vietddude/reviewer/internal/infra/storage"
	"github.com/vietddude/reviewer/internal/infra/storage/memory"
	"github.com/vietddude/reviewer/internal/infra/storage/postgres"
	"github.com/vietddude/reviewer/internal/infra/storage/sheets"
)

// Store is an opened review store and the resources behind it.
type Store struct {
	storage.ReviewStore
	DB *postgres.DB // nil unless the postgres driver is used
}

// Close releases the underlying connection, if any.
func (s *Store) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// OpenStore opens the review store selected by cfg.Driver.
// The postgres driver runs pending migrations before returning.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		slog.Info("Using memory store")
		return &Store{ReviewStore: memory.NewStore()}, nil

	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL store")
		return &Store{ReviewStore: postgres.NewReviewRepo(db), DB: db}, nil

	case config.DriverSheets:
		client, err := sheets.NewClient(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Google Sheets store", "spreadsheets", len(cfg.Sheets.Spreadsheets))
		return &Store{ReviewStore: sheets.NewStore(client, cfg.Sheets.Spreadsheets)}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// OpenRedis connects to Redis when configured. It returns nil, nil when
// Redis is disabled.
func OpenRedis(cfg redisclient.Config) (*redisclient.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return redisclient.NewClient(cfg)
}

// Counts reports item counts, or storage.ErrNotSupported.
func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	r, ok := s.ReviewStore.(storage.StatusReader)
	if !ok {
		return storage.Counts{}, storage.ErrNotSupported
	}
	return r.Counts(ctx)
}

// ResetFailed moves failed items back to pending, or returns storage.ErrNotSupported.
func (s *Store) ResetFailed(ctx context.Context, ids []string) (int, error) {
	r, ok := s.ReviewStore.(storage.Resetter)
	if !ok {
		return 0, storage.ErrNotSupported
	}
	return r.ResetFailed(ctx, ids)
}
