// Package drive is a minimal Drive v3 REST client: listing the file graph
// and exporting document content. Network and auth errors propagate to the
// caller unmodified; retrying is the rebuild scheduler's concern.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/nytimes/library-sub000/internal/docs"
	"github.com/nytimes/library-sub000/internal/logging"
	"github.com/nytimes/library-sub000/internal/metrics"
)

// Kind selects the listing strategy for the configured root.
type Kind string

const (
	// KindShared pages through a whole shared drive by continuation token.
	KindShared Kind = "shared"
	// KindFolder expands a plain folder recursively, since the API only
	// returns direct children per folder.
	KindFolder Kind = "folder"
)

const listFields = "nextPageToken,files(id,name,mimeType,parents,modifiedTime,lastModifyingUser,webViewLink)"

// folder-kind parent batches are OR-ed into one query to keep request
// counts down on wide trees.
const parentBatchSize = 50

// Client talks to the Drive v3 API.
type Client struct {
	http    *http.Client
	baseURL string
	rootID  string
	kind    Kind
}

// NewClient creates a client for the given root. ts supplies bearer tokens;
// a nil ts sends unauthenticated requests. An empty baseURL selects the
// production API.
func NewClient(baseURL string, ts oauth2.TokenSource, rootID string, kind Kind) *Client {
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/drive/v3"
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if ts != nil {
		httpClient.Transport = &oauth2.Transport{Source: ts}
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		rootID:  rootID,
		kind:    kind,
	}
}

// List fetches one page of the files listing.
func (c *Client) List(ctx context.Context, params url.Values) (*ListPage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/files?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list failed (%d): %s", resp.StatusCode, string(data))
	}

	var page ListPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("parse list response: %w", err)
	}
	metrics.RecordListingPage()
	return &page, nil
}

// FetchAll retrieves every file and folder reachable from the configured
// root. Empty pages are tolerated; pagination continues until the API stops
// returning a continuation token.
func (c *Client) FetchAll(ctx context.Context) ([]*docs.FileRecord, error) {
	switch c.kind {
	case KindFolder:
		return c.fetchFolderTree(ctx)
	default:
		return c.fetchSharedDrive(ctx)
	}
}

func (c *Client) fetchSharedDrive(ctx context.Context) ([]*docs.FileRecord, error) {
	params := url.Values{}
	params.Set("corpora", "drive")
	params.Set("driveId", c.rootID)
	params.Set("includeItemsFromAllDrives", "true")
	params.Set("supportsAllDrives", "true")
	params.Set("q", "trashed = false")
	params.Set("fields", listFields)
	params.Set("pageSize", "1000")

	var records []*docs.FileRecord
	pageToken := ""
	for {
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		} else {
			params.Del("pageToken")
		}

		page, err := c.List(ctx, params)
		if err != nil {
			return nil, err
		}
		for i := range page.Files {
			records = append(records, page.Files[i].toRecord())
		}
		if page.NextPageToken == "" {
			return records, nil
		}
		pageToken = page.NextPageToken
	}
}

// fetchFolderTree expands a plain folder to a fixed point: list the direct
// children of the known parent set, add any newly discovered folders to the
// set, and repeat until no new folders appear.
func (c *Client) fetchFolderTree(ctx context.Context) ([]*docs.FileRecord, error) {
	seen := make(map[string]bool)
	parents := []string{c.rootID}

	var records []*docs.FileRecord
	recorded := make(map[string]bool)

	for len(parents) > 0 {
		var next []string
		for start := 0; start < len(parents); start += parentBatchSize {
			end := start + parentBatchSize
			if end > len(parents) {
				end = len(parents)
			}

			files, err := c.listChildren(ctx, parents[start:end])
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				if !recorded[f.ID] {
					recorded[f.ID] = true
					records = append(records, f)
				}
				if f.MimeType == docs.MimeFolder && !seen[f.ID] {
					seen[f.ID] = true
					next = append(next, f.ID)
				}
			}
		}
		parents = next
	}

	logging.Debug("folder tree fetched",
		zap.Int("files", len(records)),
		zap.Int("folders", len(seen)))
	return records, nil
}

func (c *Client) listChildren(ctx context.Context, parentIDs []string) ([]*docs.FileRecord, error) {
	clauses := make([]string, len(parentIDs))
	for i, id := range parentIDs {
		clauses[i] = fmt.Sprintf("'%s' in parents", id)
	}

	params := url.Values{}
	params.Set("q", "("+strings.Join(clauses, " or ")+") and trashed = false")
	params.Set("fields", listFields)
	params.Set("pageSize", "1000")

	var records []*docs.FileRecord
	pageToken := ""
	for {
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		} else {
			params.Del("pageToken")
		}

		page, err := c.List(ctx, params)
		if err != nil {
			return nil, err
		}
		for i := range page.Files {
			records = append(records, page.Files[i].toRecord())
		}
		if page.NextPageToken == "" {
			return records, nil
		}
		pageToken = page.NextPageToken
	}
}

// ExportHTML fetches a document's HTML rendition: the export endpoint for
// native drive types, the raw media for anything else.
func (c *Client) ExportHTML(ctx context.Context, id, mimeType string) ([]byte, error) {
	var endpoint string
	if strings.HasPrefix(mimeType, "application/vnd.google-apps.") {
		endpoint = fmt.Sprintf("%s/files/%s/export?mimeType=%s",
			c.baseURL, id, url.QueryEscape("text/html"))
	} else {
		endpoint = fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, id)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("export failed (%d): %s", resp.StatusCode, string(data))
	}
	return io.ReadAll(resp.Body)
}
