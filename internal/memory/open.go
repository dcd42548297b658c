// File: internal/memory/open.go
package memory

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/advbot/internal/config"
	"go.uber.org/zap"
)

// OpenBackend builds the backend selected by cfg.Backend.
func OpenBackend(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.MemoryBackendFile, "":
		backend, err = NewFileBackend(cfg.Path)
	case config.MemoryBackendSQLite:
		backend, err = OpenSQLite(ctx, cfg.Path)
	case config.MemoryBackendPostgres:
		backend, err = OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// Open builds the configured backend and loads a Store from it.
func Open(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (*Store, error) {
	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store := NewStore(backend, logger)
	if err := store.Load(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}
