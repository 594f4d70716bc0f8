// Package cache holds rendered document content keyed by document id and
// enforces the purge policy that keeps multiple replicas from trampling
// each other's invalidations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nytimes/library-sub000/internal/cache/store"
	"github.com/nytimes/library-sub000/internal/logging"
	"github.com/nytimes/library-sub000/internal/metrics"
)

// Purge policy rejections. The web layer maps these to HTTP status codes.
var (
	ErrMissingID      = errors.New("can't purge cache without a document id")
	ErrNoModified     = errors.New("refusing to store new item without modified time")
	ErrDuplicatePurge = errors.New("same purge id as previous request")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Entry is one cached document. At most one entry exists per key.
type Entry struct {
	ID       string          `json:"id"`
	Content  json.RawMessage `json:"content,omitempty"`
	Modified time.Time       `json:"modified"`
	NoCache  bool            `json:"noCache,omitempty"`
	PurgeID  string          `json:"purgeId,omitempty"`
}

// PurgeRequest describes one purge attempt, automatic or manual.
type PurgeRequest struct {
	ID        string
	Modified  time.Time // defaults to an hour ago when zero
	EditEmail string    // plausible email turns the purge into an edit lock
	Ignore    []string  // guard overrides: "all", "missing", "editing" ("1" means "all")
}

// Cache is the content cache over a pluggable key-value store.
type Cache struct {
	store     store.Store
	editDelay time.Duration
}

// New creates a cache. editDelay guards entries locked for editing; zero
// selects the default of one hour.
func New(s store.Store, editDelay time.Duration) *Cache {
	if editDelay <= 0 {
		editDelay = time.Hour
	}
	return &Cache{store: s, editDelay: editDelay}
}

// Get returns the cached entry for a document id.
func (c *Cache) Get(ctx context.Context, id string) (*Entry, bool, error) {
	raw, ok, err := c.store.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", id, err)
	}
	return &e, true, nil
}

func (c *Cache) put(ctx context.Context, id string, e *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", id, err)
	}
	return c.store.Set(ctx, id, raw, ttl)
}

// Add stores freshly rendered content. It is idempotent against duplicate
// writes and monotonic in the modified time: an existing entry that is not
// older is kept, and an entry locked for editing is never overwritten.
func (c *Cache) Add(ctx context.Context, id string, modified time.Time, content json.RawMessage) error {
	if modified.IsZero() {
		return ErrNoModified
	}

	existing, ok, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		if existing.NoCache {
			logging.Debug("not caching, entry is locked for edit", zap.String("id", id))
			return nil
		}
		if !existing.Modified.Before(modified) {
			return nil
		}
	}

	return c.put(ctx, id, &Entry{ID: id, Content: content, Modified: modified}, 0)
}

// Purge applies the invalidation policy for one document. Automatic purges
// come from the change detector; manual ones from the purge/edit query
// parameters. Dedup rejections are expected under multiple replicas and are
// logged quietly.
func (c *Cache) Purge(ctx context.Context, req PurgeRequest) error {
	if req.ID == "" {
		metrics.RecordPurge("rejected")
		logging.Error("purge without document id")
		return ErrMissingID
	}

	modified := req.Modified
	if modified.IsZero() {
		modified = time.Now().Add(-time.Hour)
	}
	ignore := normalizeIgnore(req.Ignore)

	entry, ok, err := c.Get(ctx, req.ID)
	if err != nil {
		metrics.RecordPurge("error")
		return err
	}
	if !ok {
		metrics.RecordPurge("noop")
		return nil
	}

	// An edit-completion request locks the entry against automatic
	// re-caching for the edit delay window instead of clearing it.
	if strings.Contains(req.EditEmail, "@") {
		entry.NoCache = true
		logging.Info("locking entry for edit",
			zap.String("id", req.ID),
			zap.String("email", req.EditEmail),
			zap.Duration("delay", c.editDelay))
		if err := c.put(ctx, req.ID, entry, c.editDelay); err != nil {
			metrics.RecordPurge("error")
			return err
		}
		metrics.RecordPurge("locked")
		return nil
	}

	purgeID := fmt.Sprintf("%s-%s-%s",
		modified.UTC().Format(time.RFC3339), req.EditEmail, strings.Join(ignore, ","))
	all := hasFlag(ignore, "all")

	if purgeID == entry.PurgeID && !all {
		metrics.RecordPurge("duplicate")
		logging.Debug("duplicate purge suppressed",
			zap.String("id", req.ID),
			zap.String("purge_id", purgeID))
		return ErrDuplicatePurge
	}
	if len(entry.Content) == 0 && !all && !hasFlag(ignore, "missing") {
		metrics.RecordPurge("rejected")
		logging.Warn("purge of entry without content", zap.String("id", req.ID))
		return ErrNotFound
	}
	if entry.NoCache && !all && !hasFlag(ignore, "editing") {
		metrics.RecordPurge("rejected")
		logging.Warn("purge of entry locked for edit", zap.String("id", req.ID))
		return ErrUnauthorized
	}

	if err := c.put(ctx, req.ID, &Entry{ID: req.ID, Modified: modified, PurgeID: purgeID}, 0); err != nil {
		metrics.RecordPurge("error")
		return err
	}
	metrics.RecordPurge("purged")
	return nil
}

type redirect struct {
	Target string `json:"target"`
}

// SetRedirect records that a document's path moved, so requests for the old
// path can be forwarded.
func (c *Cache) SetRedirect(ctx context.Context, fromPath, toPath string) error {
	raw, err := json.Marshal(redirect{Target: toPath})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, "redirect:"+fromPath, raw, 0)
}

// GetRedirect returns the recorded destination for a moved path.
func (c *Cache) GetRedirect(ctx context.Context, fromPath string) (string, bool, error) {
	raw, ok, err := c.store.Get(ctx, "redirect:"+fromPath)
	if err != nil || !ok {
		return "", false, err
	}
	var r redirect
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", false, err
	}
	return r.Target, true, nil
}

func normalizeIgnore(flags []string) []string {
	var out []string
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "":
			continue
		case "1":
			out = append(out, "all")
		default:
			out = append(out, f)
		}
	}
	return out
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
