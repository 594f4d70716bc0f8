package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nytimes/library-sub000/internal/docs"
)

func listHandler(t *testing.T, pages func(r *http.Request) ListPage) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewEncoder(w).Encode(pages(r)); err != nil {
			t.Errorf("encode page: %v", err)
		}
	}
}

func TestFetchAll_SharedDrivePagination(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(listHandler(t, func(r *http.Request) ListPage {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Query().Get("pageToken") == "" {
			return ListPage{
				NextPageToken: "page-2",
				Files: []listFile{
					{ID: "a", Name: "Alpha", MimeType: docs.MimeDocument},
				},
			}
		}
		return ListPage{
			Files: []listFile{
				{ID: "b", Name: "Beta", MimeType: docs.MimeDocument},
			},
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "drive-id", KindShared)
	records, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if len(records) != 2 || records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("records = %v, want [a b] across both pages", records)
	}
	if len(queries) != 2 {
		t.Fatalf("requests = %d, want 2", len(queries))
	}
	if !strings.Contains(queries[0], "driveId=drive-id") ||
		!strings.Contains(queries[0], "corpora=drive") {
		t.Errorf("first query missing shared-drive params: %s", queries[0])
	}
	if !strings.Contains(queries[1], "pageToken=page-2") {
		t.Errorf("second query missing continuation token: %s", queries[1])
	}
}

func TestFetchAll_FolderRecursion(t *testing.T) {
	srv := httptest.NewServer(listHandler(t, func(r *http.Request) ListPage {
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "'root' in parents"):
			return ListPage{Files: []listFile{
				{ID: "sub", Name: "Guides", MimeType: docs.MimeFolder},
				{ID: "f1", Name: "Readme", MimeType: docs.MimeDocument},
			}}
		case strings.Contains(q, "'sub' in parents"):
			return ListPage{Files: []listFile{
				{ID: "f2", Name: "Install", MimeType: docs.MimeDocument},
			}}
		default:
			t.Errorf("unexpected children query: %s", q)
			return ListPage{}
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "root", KindFolder)
	records, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	ids := make(map[string]bool)
	for _, rec := range records {
		ids[rec.ID] = true
	}
	for _, want := range []string{"sub", "f1", "f2"} {
		if !ids[want] {
			t.Errorf("records missing %s: %v", want, records)
		}
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3 without duplicates", len(records))
	}
}

func TestFetchAll_EmptyListing(t *testing.T) {
	srv := httptest.NewServer(listHandler(t, func(r *http.Request) ListPage {
		return ListPage{}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "drive-id", KindShared)
	records, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
}

func TestFetchAll_ErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limit"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "drive-id", KindShared)
	if _, err := c.FetchAll(context.Background()); err == nil {
		t.Fatal("FetchAll should surface the API error")
	}
}

func TestToRecord_PrefersEmail(t *testing.T) {
	f := listFile{ID: "x", Name: "Doc", ModifiedTime: "2024-03-01T12:00:00Z"}
	f.LastModifyingUser.DisplayName = "Pat Writer"
	f.LastModifyingUser.EmailAddress = "pat@example.com"

	rec := f.toRecord()
	if rec.LastModifyingUser != "pat@example.com" {
		t.Errorf("LastModifyingUser = %q, want the email address", rec.LastModifyingUser)
	}
	if rec.ModifiedTime.IsZero() {
		t.Error("modified time not parsed")
	}

	f.LastModifyingUser.EmailAddress = ""
	if got := f.toRecord().LastModifyingUser; got != "Pat Writer" {
		t.Errorf("LastModifyingUser = %q, want display name fallback", got)
	}
}

func TestExportHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/native/export":
			if got := r.URL.Query().Get("mimeType"); got != "text/html" {
				t.Errorf("export mimeType = %q, want text/html", got)
			}
			w.Write([]byte("<p>exported</p>"))
		case "/files/plain":
			if got := r.URL.Query().Get("alt"); got != "media" {
				t.Errorf("media alt = %q, want media", got)
			}
			w.Write([]byte("raw bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "root", KindShared)
	ctx := context.Background()

	html, err := c.ExportHTML(ctx, "native", docs.MimeDocument)
	if err != nil || string(html) != "<p>exported</p>" {
		t.Errorf("ExportHTML(native) = %q, %v", html, err)
	}
	raw, err := c.ExportHTML(ctx, "plain", "text/markdown")
	if err != nil || string(raw) != "raw bytes" {
		t.Errorf("ExportHTML(plain) = %q, %v", raw, err)
	}
}
