package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/config"
	"github.com/jonathan/portfolio-admin/internal/db"
	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/gcp"
	"github.com/jonathan/portfolio-admin/internal/kv"
	"github.com/jonathan/portfolio-admin/internal/store"
)

// loadConfig reads the optional config file, overlays the environment and
// fills defaults.
func loadConfig(path string) (config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	merged := cfg.MergeWithDefaults(config.Defaults())
	if verbose {
		merged.Verbose = true
	}
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	return merged, nil
}

// backends holds the collection and file stores selected by the config.
type backends struct {
	Collection store.Collection
	Files      files.Store

	closers []func()
}

// Close releases every backend connection in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// openBackends connects the collection and file stores named by cfg.
func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}
	coll, err := openCollection(ctx, cfg, logger, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Collection = coll

	fs, err := openFiles(ctx, cfg, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Files = fs
	return b, nil
}

func openCollection(ctx context.Context, cfg config.Config, logger *zap.Logger, b *backends) (store.Collection, error) {
	switch cfg.Store {
	case "", config.StoreMemory:
		logger.Warn("using in-memory collection store, content is lost on exit")
		return store.NewMemory(), nil
	case config.StorePostgres:
		database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		records := db.NewRecords(database)
		b.closers = append(b.closers, database.Close, records.Close)
		return records, nil
	case config.StoreFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.FirestoreProject, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		return gcp.NewFirestoreCollection(client, logger), nil
	case config.StoreNATS:
		coll, err := kv.Open(ctx, cfg.NATSURL, cfg.KVBucket, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = coll.Close() })
		return coll, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openFiles(ctx context.Context, cfg config.Config, b *backends) (files.Store, error) {
	switch cfg.Files {
	case "", config.FilesMemory:
		return files.NewMemory(cfg.FilesOrigin), nil
	case config.FilesGCS:
		client, err := gcp.NewStorageClient(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		return gcp.NewBucketStore(client, cfg.GCSBucket), nil
	default:
		return nil, fmt.Errorf("unknown files backend %q", cfg.Files)
	}
}
