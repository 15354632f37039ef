// Package app assembles the normalizer from configuration: it opens the
// ledger and file store backends, loads the layout rules and builds the
// core.Service shared by the server and the one-shot CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/stmtnorm/internal/config"
	"github.com/JonMunkholm/stmtnorm/internal/core"
	_ "github.com/JonMunkholm/stmtnorm/internal/core/layouts" // register built-in layouts
	"github.com/JonMunkholm/stmtnorm/internal/ledger"
	"github.com/JonMunkholm/stmtnorm/internal/storage"
)

// App holds the wired components. Close releases backend connections.
type App struct {
	Config  *config.Config
	Service *core.Service
	Limiter *core.RunLimiter
	Ledger  core.Ledger
	Store   core.FileStore
	Rules   []core.LayoutRule

	closers []func()
}

// New wires every component described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg}

	rules, err := LoadRules(cfg.Normalize.LayoutsFile)
	if err != nil {
		return nil, err
	}
	a.Rules = rules

	enc, err := core.ParseEncoding(cfg.Normalize.LegacyEncoding)
	if err != nil {
		return nil, fmt.Errorf("NORMALIZE_LEGACY_ENCODING: %w", err)
	}

	if a.Ledger, err = a.openLedger(ctx, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.Store, err = a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Service = core.NewService(core.ServiceConfig{
		Rules:            rules,
		BaseCurrency:     cfg.Normalize.BaseCurrency,
		SheetName:        cfg.Normalize.SheetName,
		MaxFileSize:      cfg.Normalize.MaxFileSize,
		Workers:          cfg.Normalize.Workers,
		FuzzyThreshold:   cfg.Normalize.FuzzyThreshold,
		LegacyEncoding:   enc,
		Pivot:            cfg.Normalize.TwoDigitYearPivot,
		HeaderSearchRows: cfg.Normalize.HeaderSearchRows,
		SniffLines:       cfg.Normalize.SniffLines,
	}, a.Store, a.Ledger, logger)
	a.Limiter = core.NewRunLimiter(cfg.Trigger.MaxConcurrentRuns, cfg.Trigger.MaxWait)

	logger.Info("normalizer ready",
		"rules", len(rules),
		"ledger", cfg.Ledger.Backend,
		"storage", cfg.Storage.Backend,
		"workers", cfg.Normalize.Workers,
	)
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// LoadRules returns the built-in rules merged with the optional YAML file.
// A YAML rule replaces a built-in one with the same name.
func LoadRules(path string) ([]core.LayoutRule, error) {
	if path == "" {
		return core.Rules(), nil
	}
	extra, err := core.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("NORMALIZE_LAYOUTS_FILE: %w", err)
	}
	return core.MergeRules(core.Rules(), extra), nil
}

func (a *App) openLedger(ctx context.Context, logger *slog.Logger) (core.Ledger, error) {
	lc := a.Config.Ledger
	switch strings.ToLower(lc.Backend) {
	case "memory":
		logger.Warn("memory ledger in use, processed files are forgotten on restart")
		return ledger.NewMemoryLedger(), nil

	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(lc.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(lc.MaxConns)
		poolConfig.MinConns = int32(lc.MinConns)
		poolConfig.MaxConnLifetime = lc.MaxConnLifetime
		poolConfig.MaxConnIdleTime = lc.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		pingCtx, cancel := context.WithTimeout(ctx, lc.PingTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}

		l := ledger.NewPostgresLedger(pool)
		if err := l.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.Info("postgres ledger connected", "database", poolConfig.ConnConfig.Database)
		return l, nil

	default:
		return ledger.NewFileLedger(lc.Dir)
	}
}

func (a *App) openStore(ctx context.Context) (core.FileStore, error) {
	sc := a.Config.Storage
	if strings.ToLower(sc.Backend) != "gcs" {
		p := a.Config.Paths
		return storage.NewLocal(p.InputDir, p.OutputDir, p.ArchiveDir)
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	return storage.NewGCS(client, sc.GCSBucket, storage.GCSPrefixes{
		Input:   sc.GCSInputPrefix,
		Output:  sc.GCSOutputPrefix,
		Archive: sc.GCSArchivePrefix,
	}), nil
}
