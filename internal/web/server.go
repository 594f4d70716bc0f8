// Package web serves the document site: pages resolved through the current
// tree snapshot, read through the content cache, with purge/edit query
// parameters recognized on any path.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nytimes/library-sub000/internal/auth"
	"github.com/nytimes/library-sub000/internal/cache"
	"github.com/nytimes/library-sub000/internal/docs"
	"github.com/nytimes/library-sub000/internal/library"
	"github.com/nytimes/library-sub000/internal/logging"
	"github.com/nytimes/library-sub000/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// Exporter fetches a document's HTML rendition on a cache miss.
type Exporter interface {
	ExportHTML(ctx context.Context, id, mimeType string) ([]byte, error)
}

// Server is the HTTP front-end.
type Server struct {
	lib      *library.Engine
	cache    *cache.Cache
	exporter Exporter
	auth     *auth.Auth
	tmpl     *template.Template
}

// NewServer creates the web server.
func NewServer(lib *library.Engine, c *cache.Cache, exporter Exporter, a *auth.Auth) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Server{lib: lib, cache: c, exporter: exporter, auth: a, tmpl: tmpl}, nil
}

// Handler returns the HTTP handler with auth, purge, logging and metrics
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /filenames", s.handleFilenames)
	mux.HandleFunc("GET /tagged/{tag}", s.handleTagged)

	if s.auth != nil {
		mux.HandleFunc("GET /auth/login", s.auth.HandleLogin)
		mux.HandleFunc("GET /auth/callback", s.auth.HandleCallback)
		mux.HandleFunc("POST /auth/admin", s.auth.HandleAdminLogin)
		mux.HandleFunc("GET /auth/logout", s.auth.HandleLogout)
	}

	mux.HandleFunc("GET /", s.handlePage)

	handler := s.purgeMiddleware(mux)
	if s.auth != nil {
		handler = s.auth.Middleware(handler)
	}
	return metrics.Middleware(logging.Middleware(handler))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleFilenames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.lib.Filenames())
}

func (s *Server) handleTagged(w http.ResponseWriter, r *http.Request) {
	type taggedDoc struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Path string `json:"path"`
	}
	var out []taggedDoc
	for _, id := range s.lib.Tagged(r.PathValue("tag")) {
		if m, ok := s.lib.Meta(id); ok {
			out = append(out, taggedDoc{ID: id, Name: m.PrettyName, Path: m.Path})
		}
	}
	writeJSON(w, out)
}

// purgeMiddleware recognizes the purge/edit/ignore query parameters on any
// request path and applies the purge policy inline before normal routing.
func (s *Server) purgeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("purge") == "" && q.Get("edit") == "" {
			next.ServeHTTP(w, r)
			return
		}

		meta := s.resolveMeta(r.Context(), r.URL.Path)
		if meta == nil {
			s.renderError(w, http.StatusNotFound, "document not found")
			return
		}

		req := cache.PurgeRequest{ID: meta.ID, Ignore: ignoreFlags(q)}
		if q.Get("edit") != "" {
			email := auth.UserEmail(r.Context())
			if email == "" {
				s.renderError(w, http.StatusForbidden, "edit purge requires login")
				return
			}
			req.EditEmail = email
			req.Modified = time.Now()
		}

		if err := s.cache.Purge(r.Context(), req); err != nil {
			s.renderError(w, purgeStatus(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
}

func purgeStatus(err error) int {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, cache.ErrMissingID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func ignoreFlags(q map[string][]string) []string {
	var flags []string
	for _, v := range q["ignore"] {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				flags = append(flags, f)
			}
		}
	}
	return flags
}

// resolveMeta walks the current tree by slug path and returns the metadata
// of the resolved node (the branch's home document when one is set).
func (s *Server) resolveMeta(ctx context.Context, path string) *docs.DocMeta {
	node := s.resolveNode(ctx, path)
	if node == nil {
		return nil
	}
	id := node.ID
	if node.NodeType == docs.Branch && node.Home != "" {
		id = node.Home
	}
	if m, ok := s.lib.Meta(id); ok {
		return m
	}
	return nil
}

func (s *Server) resolveNode(ctx context.Context, path string) *docs.TreeNode {
	root, err := s.lib.Tree(ctx)
	if err != nil {
		return nil
	}
	cur := root
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if cur.NodeType != docs.Branch {
			return nil
		}
		child, ok := cur.Children[seg]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

type crumb struct {
	Name string
	Path string
}

type childLink struct {
	Name   string
	Path   string
	Sort   string
	Folder bool
}

type pageData struct {
	Title      string
	HTML       template.HTML
	Byline     string
	Breadcrumb []crumb
	Children   []childLink
	User       string
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	node := s.resolveNode(r.Context(), r.URL.Path)
	if node == nil {
		if target, ok, _ := s.cache.GetRedirect(r.Context(), strings.TrimSuffix(r.URL.Path, "/")); ok {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		s.renderError(w, http.StatusNotFound, "document not found")
		return
	}

	data := pageData{User: auth.UserEmail(r.Context())}
	for _, id := range node.Breadcrumb {
		if m, ok := s.lib.Meta(id); ok {
			data.Breadcrumb = append(data.Breadcrumb, crumb{Name: m.PrettyName, Path: m.Path})
		}
	}

	contentID := node.ID
	if node.NodeType == docs.Branch {
		contentID = node.Home
		data.Children = s.childLinks(node)
	}

	meta, ok := s.lib.Meta(contentID)
	if node.NodeType == docs.Branch && !ok {
		// Folder without a home document: listing only.
		m, _ := s.lib.Meta(node.ID)
		data.Title = node.PrettyName
		if m != nil {
			data.Title = m.PrettyName
		}
		s.render(w, "folder.html", data)
		return
	}
	if !ok {
		s.renderError(w, http.StatusNotFound, "document not found")
		return
	}

	if !meta.Renderable() {
		http.Redirect(w, r, meta.WebViewLink, http.StatusFound)
		return
	}

	payload, err := s.content(r.Context(), meta)
	if err != nil {
		logging.Error("content fetch failed",
			zap.String("id", meta.ID), zap.Error(err))
		s.renderError(w, http.StatusBadGateway, "could not fetch document")
		return
	}

	data.Title = meta.PrettyName
	if node.NodeType == docs.Branch {
		data.Title = node.PrettyName
	}
	data.HTML = template.HTML(payload.HTML)
	data.Byline = payload.Byline

	name := "doc.html"
	if node.NodeType == docs.Branch {
		name = "folder.html"
	}
	s.render(w, name, data)
}

func (s *Server) childLinks(node *docs.TreeNode) []childLink {
	links := make([]childLink, 0, len(node.Children))
	for _, child := range node.Children {
		m, ok := s.lib.Meta(child.ID)
		if !ok || m.HasTag("hidden") {
			continue
		}
		links = append(links, childLink{
			Name:   m.PrettyName,
			Path:   m.Path,
			Sort:   m.Sort,
			Folder: child.NodeType == docs.Branch,
		})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Sort < links[j].Sort })
	return links
}

// contentPayload is the cached rendering of one document.
type contentPayload struct {
	HTML      string    `json:"html"`
	Byline    string    `json:"byline,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// content reads a document through the cache, exporting and storing it on a
// miss. Store failures degrade to serving the fresh copy.
func (s *Server) content(ctx context.Context, meta *docs.DocMeta) (*contentPayload, error) {
	entry, ok, err := s.cache.Get(ctx, meta.ID)
	if err != nil {
		logging.Warn("cache read failed", zap.String("id", meta.ID), zap.Error(err))
	}
	if ok && len(entry.Content) > 0 {
		var payload contentPayload
		if err := json.Unmarshal(entry.Content, &payload); err == nil {
			metrics.RecordCacheHit()
			return &payload, nil
		}
		logging.Warn("corrupt cache entry", zap.String("id", meta.ID))
	}
	metrics.RecordCacheMiss()

	html, err := s.exporter.ExportHTML(ctx, meta.ID, mimeFor(meta))
	if err != nil {
		return nil, err
	}
	payload := &contentPayload{
		HTML:      string(html),
		Byline:    meta.LastModifyingUser,
		FetchedAt: time.Now(),
	}

	raw, _ := json.Marshal(payload)
	if err := s.cache.Add(ctx, meta.ID, meta.ModifiedTime, raw); err != nil {
		logging.Warn("cache store failed", zap.String("id", meta.ID), zap.Error(err))
	}
	return payload, nil
}

func mimeFor(meta *docs.DocMeta) string {
	switch meta.ResourceType {
	case "document":
		return docs.MimeDocument
	case "folder":
		return docs.MimeFolder
	default:
		return meta.ResourceType
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		logging.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	s.tmpl.ExecuteTemplate(w, "error.html", struct {
		Status  int
		Message string
	}{status, message})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
