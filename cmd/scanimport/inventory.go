package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/exploopio/scanimport/pkg/compress"
	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/inventory/memory"
	"github.com/exploopio/scanimport/pkg/inventory/natsink"
	"github.com/exploopio/scanimport/pkg/inventory/sqlstore"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/options"
)

// backend is an opened inventory adapter.
type backend struct {
	core.Inventory

	ping  func(ctx context.Context) error
	close func() error

	// dataDir is the directory holding a file database, if any.
	dataDir string
}

func (b *backend) Ping(ctx context.Context) error { return b.ping(ctx) }
func (b *backend) Close() error                   { return b.close() }

func openInventory(ctx context.Context, cfg options.InventoryConfig, logger core.Logger, collector metrics.Collector) (*backend, error) {
	switch cfg.Driver {
	case options.InventoryMemory, "":
		return &backend{
			Inventory: memory.New(),
			ping:      func(context.Context) error { return nil },
			close:     func() error { return nil },
		}, nil

	case options.InventorySQLite, options.InventoryPostgres:
		store, err := sqlstore.Open(ctx, &sqlstore.Config{
			Driver:    cfg.Driver,
			DSN:       cfg.DSN,
			CacheSize: cfg.CacheSize,
			Logger:    logger,
			Metrics:   collector,
		})
		if err != nil {
			return nil, err
		}
		b := &backend{Inventory: store, ping: store.Ping, close: store.Close}
		if cfg.Driver == options.InventorySQLite && cfg.DSN != "" && cfg.DSN != ":memory:" {
			b.dataDir = filepath.Dir(cfg.DSN)
		}
		logger.Info("inventory: %s", cfg.Driver)
		return b, nil

	case options.InventoryNATS:
		sink, err := natsink.Connect(cfg.NATSURL, &natsink.Config{
			SubjectPrefix: cfg.SubjectPrefix,
			Compression:   compress.Algorithm(cfg.Compression),
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("inventory: publishing to %s.*", cfg.SubjectPrefix)
		return &backend{Inventory: sink, ping: sink.Ping, close: sink.Close}, nil

	default:
		return nil, fmt.Errorf("unknown inventory driver %q", cfg.Driver)
	}
}
