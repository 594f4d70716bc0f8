// Package docs derives routable document metadata and trees from a flat
// drive listing.
package docs

import "time"

// Drive mime types the library renders natively.
const (
	MimeFolder   = "application/vnd.google-apps.folder"
	MimeDocument = "application/vnd.google-apps.document"
	MimeHTML     = "text/html"
)

// FileRecord is one node from the external listing. Records are immutable
// once fetched and superseded wholesale on the next sync.
type FileRecord struct {
	ID                string
	Name              string
	MimeType          string
	Parents           []string
	ModifiedTime      time.Time
	LastModifyingUser string
	WebViewLink       string
}

// DocMeta is the derived metadata for one FileRecord. A full generation is
// rebuilt on every sync cycle; the previous one is kept only for diffing.
type DocMeta struct {
	ID                string
	PrettyName        string
	Slug              string
	Tags              []string
	ResourceType      string
	Sort              string
	IsHome            bool
	IsTrashCan        bool
	Path              string
	FolderID          string
	TopLevelFolderID  string
	ModifiedTime      time.Time
	LastModifyingUser string
	WebViewLink       string
}

// HasTag reports whether the doc carries the given (lowercase) tag.
func (m *DocMeta) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Renderable reports whether the library renders this doc itself rather
// than linking out to the source viewer.
func (m *DocMeta) Renderable() bool {
	switch m.ResourceType {
	case "folder", "document", MimeHTML:
		return true
	}
	return m.HasTag("playlist")
}

// NodeType discriminates tree nodes.
type NodeType string

const (
	Branch NodeType = "branch"
	Leaf   NodeType = "leaf"
)

// TreeNode is one node of the routable tree. Children are keyed by slug;
// sibling slug collisions keep the first-built node and record the other
// raw names in Duplicates.
type TreeNode struct {
	NodeType   NodeType
	ID         string
	PrettyName string
	Home       string // child id acting as this branch's index, if any
	Breadcrumb []string
	Children   map[string]*TreeNode
	Duplicates []string
}

// Snapshot is one complete generation of tree plus metadata, published
// atomically as a pair.
type Snapshot struct {
	Tree      *TreeNode
	Meta      map[string]*DocMeta
	Filenames []string
	Tags      map[string][]string
	Children  map[string][]string // parent id -> direct child ids (home included)
}

// Change is one document whose modification time advanced between two
// snapshots.
type Change struct {
	ID       string
	Modified time.Time
}

// ChangeSink receives changes as they are detected during tree
// reconstruction, before the snapshot is published.
type ChangeSink func(Change)
