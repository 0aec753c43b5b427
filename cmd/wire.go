package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/identity"
	"github.com/kozaktomas/faceid/internal/identity/mock"
	"github.com/kozaktomas/faceid/internal/identity/mysql"
	"github.com/kozaktomas/faceid/internal/identity/postgres"
	"github.com/kozaktomas/faceid/internal/liveness"
	"github.com/kozaktomas/faceid/internal/quality"
	"github.com/kozaktomas/faceid/internal/vecindex"
)

// app bundles the wired service for CLI commands.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	closers []func() error
}

// buildStore connects the configured identity store driver.
func buildStore(ctx context.Context, cfg *config.Config) (identity.Store, []func() error, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := postgres.NewPool(postgres.Config{
			URL:          cfg.Database.URL,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return postgres.NewStore(pool), []func() error{pool.Close}, nil
	case "mysql":
		pool, err := mysql.NewPool(cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to mysql: %w", err)
		}
		if err := pool.Initialize(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("initializing mysql schema: %w", err)
		}
		return mysql.NewStore(pool), []func() error{pool.Close}, nil
	default:
		return mock.NewStore(), nil, nil
	}
}

// buildApp validates the configuration and wires every collaborator into
// an engine. The returned app must be closed by the caller.
func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, closers, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backendType, _ := vecindex.ParseType(cfg.Index.Backend)
	backend, err := vecindex.New(backendType, cfg.IndexOptions())
	if err != nil {
		return nil, fmt.Errorf("constructing index backend: %w", err)
	}

	analyzer, err := quality.NewAnalyzer(cfg.Matching.QualityThreshold)
	if err != nil {
		return nil, fmt.Errorf("constructing quality analyzer: %w", err)
	}

	var detector liveness.Detector
	if cfg.Liveness.Enabled {
		kind, _ := liveness.ParseKind(cfg.Liveness.Kind)
		detector, err = liveness.NewDetector(ctx, liveness.Config{
			Kind:         kind,
			OpenAIAPIKey: cfg.OpenAI.Token,
			GeminiAPIKey: cfg.Gemini.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("constructing liveness detector: %w", err)
		}
	}
	gate := liveness.NewGate(detector, cfg.Liveness.Enabled, cfg.Liveness.FailOpen)

	eng := engine.New(backend, store, capture.NewClient(cfg.Capture.DetectorURL), analyzer, gate, engine.Config{
		SimilarityThreshold: cfg.Matching.SimilarityThreshold,
		TopK:                cfg.Matching.TopK,
		Workers:             cfg.Server.Workers,
	})

	a := &app{cfg: cfg, engine: eng, closers: closers}

	if cfg.Index.Path != "" {
		if matches, _ := filepath.Glob(cfg.Index.Path + "*"); len(matches) > 0 {
			if err := eng.LoadIndex(ctx, cfg.Index.Path); err != nil {
				a.close()
				return nil, fmt.Errorf("loading index from %s: %w", cfg.Index.Path, err)
			}
			fmt.Printf("Loaded %s index with %d entries from %s\n",
				cfg.Index.Backend, eng.IndexStats().Size, cfg.Index.Path)
		}
	}

	return a, nil
}

func (a *app) close() {
	a.engine.Close()
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			fmt.Printf("Warning: close error: %v\n", err)
		}
	}
}

// saveIndex persists the index when a path is configured.
func (a *app) saveIndex(ctx context.Context) {
	if a.cfg.Index.Path == "" {
		return
	}
	if err := a.engine.SaveIndex(ctx, a.cfg.Index.Path); err != nil {
		fmt.Printf("Warning: failed to save index: %v\n", err)
		return
	}
	fmt.Printf("Index saved to %s\n", a.cfg.Index.Path)
}
