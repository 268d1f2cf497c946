package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"locationcore/internal/blob"
	"locationcore/internal/certificate"
	"locationcore/internal/core"
	"locationcore/internal/platform/config"
	"locationcore/internal/platform/logger"
	"locationcore/internal/prisonconfig"
	"locationcore/pkg/domain"
)

// app holds the stores every command needs.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    domain.PersistentStore
	registry *prisonconfig.Registry
	archive  *certificate.Archive
	closers  []func() error
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfg: cfg, logger: logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)}

	if a.registry, err = prisonconfig.Load(cfg.PrisonConfigPath); err != nil {
		return nil, fmt.Errorf("load prison config: %w", err)
	}
	if a.store, err = core.OpenPersistentStore(ctx, cfg.Storage, nil); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	a.archive = certificate.NewArchive(blobs)
	return a, nil
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
