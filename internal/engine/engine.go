// Package engine orchestrates the enrollment, identification and
// verification pipelines on top of a single shared vector index backend.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/identity"
	"github.com/kozaktomas/faceid/internal/liveness"
	"github.com/kozaktomas/faceid/internal/quality"
	"github.com/kozaktomas/faceid/internal/vecindex"
)

const (
	defaultTopK      = 5
	defaultThreshold = 0.5
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	SimilarityThreshold float64
	TopK                int
	Workers             int
}

// Engine owns the process-wide index backend and serializes access to it.
// Mutations hold the write lock; searches share the read lock. Index work
// runs on a bounded worker pool so request handlers never burn CPU on the
// index directly.
type Engine struct {
	backend   vecindex.Backend
	store     identity.Store
	extractor capture.Extractor
	quality   *quality.Analyzer
	gate      *liveness.Gate
	pool      *workerPool

	mu sync.RWMutex

	threshold float64
	topK      int
}

// New wires the engine together. All collaborators are required.
func New(backend vecindex.Backend, store identity.Store, extractor capture.Extractor, analyzer *quality.Analyzer, gate *liveness.Gate, cfg Config) *Engine {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	return &Engine{
		backend:   backend,
		store:     store,
		extractor: extractor,
		quality:   analyzer,
		gate:      gate,
		pool:      newWorkerPool(cfg.Workers),
		threshold: threshold,
		topK:      topK,
	}
}

// Close stops the worker pool. Queued index operations finish first.
func (e *Engine) Close() {
	e.pool.close()
}

// Store exposes the identity store for callers that manage persons
// directly.
func (e *Engine) Store() identity.Store {
	return e.store
}

// SimilarityThreshold returns the process-wide default match threshold.
func (e *Engine) SimilarityThreshold() float64 {
	return e.threshold
}

// runWrite executes op on the pool under the write lock. The result channel
// is buffered so an abandoned wait never blocks the worker; the operation
// runs to completion either way to keep the backend consistent.
func (e *Engine) runWrite(ctx context.Context, op func() error) error {
	done := make(chan error, 1)
	err := e.pool.submit(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		done <- op()
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runRead executes op on the pool under the read lock.
func (e *Engine) runRead(ctx context.Context, op func() error) error {
	done := make(chan error, 1)
	err := e.pool.submit(ctx, func() {
		e.mu.RLock()
		defer e.mu.RUnlock()
		done <- op()
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) addToIndex(ctx context.Context, vectors [][]float32, externalIDs []string) error {
	return e.runWrite(ctx, func() error {
		return e.backend.Add(vectors, externalIDs)
	})
}

func (e *Engine) searchIndex(ctx context.Context, query []float32, k int) ([]vecindex.Match, error) {
	var matches []vecindex.Match
	err := e.runRead(ctx, func() error {
		var searchErr error
		matches, searchErr = e.backend.Search(query, k)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// RemoveFromIndex unlinks external IDs from the index. The vectors stay on
// disk until a reindex.
func (e *Engine) RemoveFromIndex(ctx context.Context, externalIDs ...string) error {
	return e.runWrite(ctx, func() error {
		return e.backend.Remove(externalIDs...)
	})
}

// DeleteFace removes a face from the index and the store. The index
// mapping goes first so a search can never surface a face the store no
// longer holds.
func (e *Engine) DeleteFace(ctx context.Context, faceID string) error {
	if _, err := e.store.GetFace(ctx, faceID); err != nil {
		return err
	}
	if err := e.RemoveFromIndex(ctx, faceID); err != nil {
		return fmt.Errorf("remove face from index: %w", err)
	}
	return e.store.DeleteFace(ctx, faceID)
}

// SaveIndex persists the backend to the base path. Runs as a writer so no
// add or remove can interleave with the snapshot.
func (e *Engine) SaveIndex(ctx context.Context, path string) error {
	return e.runWrite(ctx, func() error {
		return e.backend.Save(path)
	})
}

// LoadIndex restores the backend from the base path.
func (e *Engine) LoadIndex(ctx context.Context, path string) error {
	return e.runWrite(ctx, func() error {
		return e.backend.Load(path)
	})
}

// ClearIndex resets the backend to empty and untrained.
func (e *Engine) ClearIndex(ctx context.Context) error {
	return e.runWrite(ctx, func() error {
		return e.backend.Clear()
	})
}

// RebuildIndex invokes the backend's own compaction hook.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	return e.runWrite(ctx, func() error {
		return e.backend.Rebuild()
	})
}

// Reindex rebuilds the index from the store: clears the backend and
// re-adds every stored face embedding. This is the space-reclamation path
// for backends that implement removal as mapping invalidation.
func (e *Engine) Reindex(ctx context.Context) (int, error) {
	faces, err := e.store.AllFaces(ctx)
	if err != nil {
		return 0, fmt.Errorf("load faces: %w", err)
	}

	vectors := make([][]float32, 0, len(faces))
	ids := make([]string, 0, len(faces))
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		vectors = append(vectors, f.Embedding)
		ids = append(ids, f.ID)
	}

	err = e.runWrite(ctx, func() error {
		if err := e.backend.Clear(); err != nil {
			return err
		}
		if len(vectors) == 0 {
			return nil
		}
		return e.backend.Add(vectors, ids)
	})
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return len(vectors), nil
}

// IndexStats snapshots the backend under the read lock.
func (e *Engine) IndexStats() vecindex.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend.Stats()
}
