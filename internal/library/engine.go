// Package library owns the published tree snapshot and the rebuild cycle
// that keeps it current against the external listing.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nytimes/library-sub000/internal/cache"
	"github.com/nytimes/library-sub000/internal/docs"
	"github.com/nytimes/library-sub000/internal/logging"
	"github.com/nytimes/library-sub000/internal/metrics"
)

// Fetcher retrieves the complete flat listing from the drive-like source.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]*docs.FileRecord, error)
}

// Purger is invoked for every document whose modification time advanced.
type Purger interface {
	Purge(ctx context.Context, req cache.PurgeRequest) error
}

// RedirectRecorder is notified when a document's routable path moved
// between snapshots.
type RedirectRecorder interface {
	SetRedirect(ctx context.Context, fromPath, toPath string) error
}

// Engine periodically rebuilds the tree snapshot. Requests always read the
// last fully built snapshot; a new generation is swapped in atomically as a
// pair with its metadata. Concurrent refresh triggers are coalesced into
// the one in-flight rebuild.
type Engine struct {
	fetcher   Fetcher
	purger    Purger
	redirects RedirectRecorder
	rootID    string
	interval  time.Duration

	sf singleflight.Group

	mu   sync.RWMutex
	snap *docs.Snapshot

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates an engine. purger and redirects may be nil; interval zero
// selects the 15 second default.
func New(fetcher Fetcher, purger Purger, redirects RedirectRecorder, rootID string, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Engine{
		fetcher:   fetcher,
		purger:    purger,
		redirects: redirects,
		rootID:    rootID,
		interval:  interval,
		ready:     make(chan struct{}),
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
// A failed rebuild keeps the previous snapshot and retries next tick.
func (e *Engine) Run(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil {
		logging.Warn("initial tree build failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Refresh(ctx); err != nil {
				logging.Warn("tree rebuild failed", zap.Error(err))
			}
		}
	}
}

// Refresh rebuilds and publishes a new snapshot. Callers arriving while a
// rebuild is in flight await its result instead of starting another fetch.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.sf.Do("tree", func() (interface{}, error) {
		return nil, e.rebuild(ctx)
	})
	return err
}

func (e *Engine) rebuild(ctx context.Context) error {
	start := time.Now()

	files, err := e.fetcher.FetchAll(ctx)
	if err != nil {
		metrics.RecordSyncRun(time.Since(start), false)
		return fmt.Errorf("fetch listing: %w", err)
	}

	old := e.Current()
	snap := docs.Build(files, e.rootID, old, e.changeSink(ctx))

	e.recordMoves(ctx, old, snap)
	e.publish(snap)

	metrics.RecordSyncRun(time.Since(start), true)
	metrics.SetTreeSize(int64(len(snap.Meta)))
	logging.Debug("tree snapshot published",
		zap.Int("docs", len(snap.Meta)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// changeSink maps detected changes to automatic cache purges. Dedup
// rejections are routine when several replicas react to the same change.
func (e *Engine) changeSink(ctx context.Context) docs.ChangeSink {
	if e.purger == nil {
		return nil
	}
	return func(ch docs.Change) {
		err := e.purger.Purge(ctx, cache.PurgeRequest{ID: ch.ID, Modified: ch.Modified})
		switch {
		case err == nil:
		case errors.Is(err, cache.ErrDuplicatePurge):
			logging.Debug("change already purged elsewhere", zap.String("id", ch.ID))
		case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrUnauthorized):
			logging.Debug("automatic purge rejected",
				zap.String("id", ch.ID), zap.Error(err))
		default:
			logging.Warn("automatic purge failed",
				zap.String("id", ch.ID), zap.Error(err))
		}
	}
}

// recordMoves registers redirects for documents whose path changed between
// generations.
func (e *Engine) recordMoves(ctx context.Context, old, snap *docs.Snapshot) {
	if e.redirects == nil || old == nil {
		return
	}
	for id, m := range snap.Meta {
		om := old.Meta[id]
		if om == nil || om.Path == "" || m.Path == "" || om.Path == m.Path {
			continue
		}
		if err := e.redirects.SetRedirect(ctx, om.Path, m.Path); err != nil {
			logging.Warn("recording path redirect failed",
				zap.String("id", id), zap.Error(err))
			continue
		}
		logging.Info("document path moved",
			zap.String("id", id),
			zap.String("from", om.Path),
			zap.String("to", m.Path))
	}
}

func (e *Engine) publish(snap *docs.Snapshot) {
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
	e.readyOnce.Do(func() { close(e.ready) })
}

// Current returns the published snapshot, or nil before the first build.
func (e *Engine) Current() *docs.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Tree returns the current root node, waiting for the first snapshot if
// none has been published yet.
func (e *Engine) Tree(ctx context.Context) (*docs.TreeNode, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.Current().Tree, nil
}

// Meta returns the metadata for a document id in the current snapshot.
func (e *Engine) Meta(id string) (*docs.DocMeta, bool) {
	snap := e.Current()
	if snap == nil {
		return nil, false
	}
	m, ok := snap.Meta[id]
	return m, ok
}

// Filenames returns the typeahead name list of the current snapshot.
func (e *Engine) Filenames() []string {
	snap := e.Current()
	if snap == nil {
		return nil
	}
	return snap.Filenames
}

// Tagged returns the document ids carrying a tag.
func (e *Engine) Tagged(tag string) []string {
	snap := e.Current()
	if snap == nil {
		return nil
	}
	return snap.Tags[tag]
}

// Children returns the direct child ids of a folder, home pointer included.
func (e *Engine) Children(id string) []string {
	snap := e.Current()
	if snap == nil {
		return nil
	}
	return snap.Children[id]
}
