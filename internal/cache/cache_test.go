package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nytimes/library-sub000/internal/cache/store"
)

var (
	t1 = time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
)

func newTestCache() *Cache {
	return New(store.NewMemory(), time.Hour)
}

func mustAdd(t *testing.T, c *Cache, id string, modified time.Time, content string) {
	t.Helper()
	if err := c.Add(context.Background(), id, modified, json.RawMessage(content)); err != nil {
		t.Fatalf("Add(%s): %v", id, err)
	}
}

func getEntry(t *testing.T, c *Cache, id string) *Entry {
	t.Helper()
	e, ok, err := c.Get(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("Get(%s) = %v, %v; want entry", id, ok, err)
	}
	return e
}

func TestAdd_Idempotent(t *testing.T) {
	c := newTestCache()
	mustAdd(t, c, "doc", t1, `"first"`)
	mustAdd(t, c, "doc", t1, `"second"`)

	if got := string(getEntry(t, c, "doc").Content); got != `"first"` {
		t.Errorf("content = %s, want the original write kept", got)
	}
}

func TestAdd_Monotonic(t *testing.T) {
	c := newTestCache()
	mustAdd(t, c, "doc", t2, `"newer"`)
	mustAdd(t, c, "doc", t1, `"older"`)

	e := getEntry(t, c, "doc")
	if string(e.Content) != `"newer"` || !e.Modified.Equal(t2) {
		t.Errorf("entry = {%s %v}, want the newer write kept", e.Content, e.Modified)
	}

	mustAdd(t, c, "doc", t2.Add(time.Minute), `"newest"`)
	if got := string(getEntry(t, c, "doc").Content); got != `"newest"` {
		t.Errorf("content = %s, want strictly newer write to replace", got)
	}
}

func TestAdd_RequiresModified(t *testing.T) {
	c := newTestCache()
	err := c.Add(context.Background(), "doc", time.Time{}, json.RawMessage(`"x"`))
	if !errors.Is(err, ErrNoModified) {
		t.Errorf("Add with zero modified = %v, want ErrNoModified", err)
	}
}

func TestAdd_SkipsEditLocked(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)
	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t1, EditEmail: "writer@example.com"}); err != nil {
		t.Fatalf("edit purge: %v", err)
	}

	mustAdd(t, c, "doc", t2, `"rewrite"`)
	e := getEntry(t, c, "doc")
	if !e.NoCache {
		t.Error("edit lock should survive a subsequent add")
	}
	if string(e.Content) == `"rewrite"` {
		t.Error("add overwrote an edit-locked entry")
	}
}

func TestPurge_RequiresID(t *testing.T) {
	c := newTestCache()
	if err := c.Purge(context.Background(), PurgeRequest{}); !errors.Is(err, ErrMissingID) {
		t.Errorf("purge without id = %v, want ErrMissingID", err)
	}
}

func TestPurge_AbsentEntryIsNoop(t *testing.T) {
	c := newTestCache()
	if err := c.Purge(context.Background(), PurgeRequest{ID: "never-cached"}); err != nil {
		t.Errorf("purge of uncached doc = %v, want nil", err)
	}
}

func TestPurge_ClearsContent(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	e := getEntry(t, c, "doc")
	if len(e.Content) != 0 {
		t.Errorf("content = %s, want cleared", e.Content)
	}
	if !e.Modified.Equal(t2) {
		t.Errorf("modified = %v, want advanced to %v", e.Modified, t2)
	}
}

func TestPurge_Dedup(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	req := PurgeRequest{ID: "doc", Modified: t2}
	if err := c.Purge(ctx, req); err != nil {
		t.Fatalf("first purge: %v", err)
	}
	if err := c.Purge(ctx, req); !errors.Is(err, ErrDuplicatePurge) {
		t.Errorf("repeated purge = %v, want ErrDuplicatePurge", err)
	}
}

func TestPurge_IgnoreAllBypassesDedup(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	req := PurgeRequest{ID: "doc", Modified: t2, Ignore: []string{"all"}}
	if err := c.Purge(ctx, req); err != nil {
		t.Fatalf("first purge: %v", err)
	}
	if err := c.Purge(ctx, req); err != nil {
		t.Errorf("repeated purge with ignore=all = %v, want nil", err)
	}
}

func TestPurge_MissingContentGuard(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2}); err != nil {
		t.Fatalf("first purge: %v", err)
	}
	// The entry now has no content; only ignore=missing lets another
	// distinct purge through.
	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2.Add(time.Minute)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("purge of contentless entry = %v, want ErrNotFound", err)
	}
	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2.Add(time.Minute), Ignore: []string{"missing"}}); err != nil {
		t.Errorf("purge with ignore=missing = %v, want nil", err)
	}
}

func TestPurge_EditLockGuard(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t1, EditEmail: "writer@example.com"}); err != nil {
		t.Fatalf("edit purge: %v", err)
	}
	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("automatic purge of locked entry = %v, want ErrUnauthorized", err)
	}
	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2, Ignore: []string{"editing"}}); err != nil {
		t.Errorf("purge with ignore=editing = %v, want nil", err)
	}
	if e := getEntry(t, c, "doc"); e.NoCache {
		t.Error("successful purge should clear the edit lock")
	}
}

func TestPurge_NonEmailEditParamIsPlainPurge(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2, EditEmail: "not-an-email"}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if e := getEntry(t, c, "doc"); e.NoCache {
		t.Error("edit value without @ must not lock the entry")
	}
}

func TestPurge_OneMeansAll(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	mustAdd(t, c, "doc", t1, `"body"`)

	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t1, EditEmail: "writer@example.com"}); err != nil {
		t.Fatalf("edit purge: %v", err)
	}
	if err := c.Purge(ctx, PurgeRequest{ID: "doc", Modified: t2, Ignore: []string{"1"}}); err != nil {
		t.Errorf("purge with ignore=1 = %v, want it to behave as ignore=all", err)
	}
}

func TestRedirects(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	if _, ok, err := c.GetRedirect(ctx, "/old"); ok || err != nil {
		t.Fatalf("GetRedirect before set = %v, %v", ok, err)
	}
	if err := c.SetRedirect(ctx, "/old", "/new"); err != nil {
		t.Fatalf("SetRedirect: %v", err)
	}
	target, ok, err := c.GetRedirect(ctx, "/old")
	if err != nil || !ok || target != "/new" {
		t.Errorf("GetRedirect = %q, %v, %v; want /new", target, ok, err)
	}
}
