package docs

import (
	"time"

	"go.uber.org/zap"

	"github.com/nytimes/library-sub000/internal/logging"
)

// Build derives a complete Snapshot from a flat listing. The pipeline is
// one-directional: derive metadata, resolve paths, then materialize the tree
// from the root. When old is non-nil, every branch is diffed against the
// previous generation as it is rebuilt and changes are emitted to sink
// immediately, so invalidation starts while the rest of the tree is still
// under construction.
func Build(files []*FileRecord, rootID string, old *Snapshot, sink ChangeSink) *Snapshot {
	b := &builder{
		rootID: rootID,
		byID:   make(map[string]*FileRecord, len(files)),
		index:  make(map[string][]string),
		old:    old,
		sink:   sink,
		snap: &Snapshot{
			Meta:     make(map[string]*DocMeta, len(files)),
			Tags:     make(map[string][]string),
			Children: make(map[string][]string),
		},
	}

	for _, f := range files {
		if f.ID == "" || b.byID[f.ID] != nil {
			continue
		}
		b.byID[f.ID] = f
		b.order = append(b.order, f.ID)
		m := deriveMeta(f)
		if m.Slug == "trash" && hasParent(f, rootID) {
			m.IsTrashCan = true
		}
		b.snap.Meta[f.ID] = m
		for _, p := range f.Parents {
			b.index[p] = append(b.index[p], f.ID)
		}
	}

	for _, id := range b.order {
		b.resolvePath(id, b.snap.Meta[id])
	}

	for _, id := range b.order {
		m := b.snap.Meta[id]
		for _, t := range m.Tags {
			b.snap.Tags[t] = append(b.snap.Tags[t], id)
		}
		if m.ResourceType != "folder" && !m.HasTag("hidden") {
			b.snap.Filenames = append(b.snap.Filenames, m.PrettyName)
		}
	}

	root := &TreeNode{
		NodeType:   Branch,
		ID:         rootID,
		PrettyName: "Home",
		Children:   make(map[string]*TreeNode),
	}
	visited := map[string]bool{rootID: true}
	b.fillBranch(root, nil, visited)
	b.snap.Tree = root

	return b.snap
}

type builder struct {
	rootID string
	byID   map[string]*FileRecord
	order  []string
	index  map[string][]string
	old    *Snapshot
	sink   ChangeSink
	snap   *Snapshot
}

func deriveMeta(f *FileRecord) *DocMeta {
	pretty := CleanName(f.Name)
	tags := ParseTags(f.Name)
	m := &DocMeta{
		ID:                f.ID,
		PrettyName:        pretty,
		Slug:              Slugify(pretty),
		Tags:              tags,
		ResourceType:      ResourceType(f.MimeType),
		Sort:              SortKey(f.Name, pretty),
		ModifiedTime:      f.ModifiedTime,
		LastModifyingUser: f.LastModifyingUser,
		WebViewLink:       f.WebViewLink,
	}
	m.IsHome = m.HasTag("home")
	return m
}

func hasParent(f *FileRecord, id string) bool {
	for _, p := range f.Parents {
		if p == id {
			return true
		}
	}
	return false
}

// resolvePath walks the first-parent chain up to the root, concatenating
// slugs. Docs the library does not render itself fall back to their external
// view link. An unknown parent or a parent cycle degrades to empty derived
// fields instead of failing the rebuild.
func (b *builder) resolvePath(id string, m *DocMeta) {
	f := b.byID[id]
	if len(f.Parents) == 0 {
		return
	}
	m.FolderID = f.Parents[0]

	var segs []string
	visited := map[string]bool{id: true}
	cur := f
	for {
		parent := cur.Parents[0]
		if parent == b.rootID {
			m.TopLevelFolderID = cur.ID
			break
		}
		pf, ok := b.byID[parent]
		if !ok {
			logging.Warn("file references unknown parent",
				zap.String("id", id),
				zap.String("parent", parent))
			m.Path, m.FolderID, m.TopLevelFolderID = "", "", ""
			return
		}
		if visited[parent] {
			logging.Warn("cycle in parent chain",
				zap.String("id", id),
				zap.String("parent", parent))
			m.Path, m.FolderID, m.TopLevelFolderID = "", "", ""
			return
		}
		visited[parent] = true
		segs = append(segs, b.snap.Meta[parent].Slug)
		if len(pf.Parents) == 0 {
			m.Path, m.FolderID, m.TopLevelFolderID = "", "", ""
			return
		}
		cur = pf
	}

	if !m.Renderable() {
		m.Path = m.WebViewLink
		return
	}

	path := "/"
	for i := len(segs) - 1; i >= 0; i-- {
		path += segs[i] + "/"
	}
	m.Path = path + m.Slug
}

// fillBranch materializes one branch's children, promoting the first
// home-tagged child to the branch's Home pointer and preserving sibling slug
// collisions on the first-built node. The branch is diffed against the
// previous snapshot before its subtrees are descended into.
func (b *builder) fillBranch(node *TreeNode, breadcrumb []string, visited map[string]bool) {
	ids := b.index[node.ID]
	b.snap.Children[node.ID] = ids
	b.detectChanges(node.ID, ids)

	childCrumb := make([]string, len(breadcrumb)+1)
	copy(childCrumb, breadcrumb)
	childCrumb[len(breadcrumb)] = node.ID

	for _, cid := range ids {
		m := b.snap.Meta[cid]
		if m == nil {
			continue
		}
		if m.IsHome && node.Home == "" {
			node.Home = cid
			continue
		}
		if existing, ok := node.Children[m.Slug]; ok {
			existing.Duplicates = append(existing.Duplicates, b.byID[cid].Name)
			logging.Warn("duplicate slug among siblings",
				zap.String("slug", m.Slug),
				zap.String("parent", node.ID),
				zap.String("kept", existing.ID),
				zap.String("dropped", cid))
			continue
		}

		child := &TreeNode{
			NodeType:   Leaf,
			ID:         cid,
			PrettyName: m.PrettyName,
			Breadcrumb: childCrumb,
		}
		if len(b.index[cid]) > 0 {
			if visited[cid] {
				logging.Warn("cycle in folder graph, treating as leaf",
					zap.String("id", cid),
					zap.String("parent", node.ID))
			} else {
				child.NodeType = Branch
				child.Children = make(map[string]*TreeNode)
				visited[cid] = true
				b.fillBranch(child, childCrumb, visited)
				delete(visited, cid)
			}
		}
		node.Children[m.Slug] = child
	}
}

// detectChanges compares the union of this branch's current and previous
// child ids (home pointers included) and emits every doc whose modification
// time advanced. The designated trash container never triggers a purge.
func (b *builder) detectChanges(parentID string, ids []string) {
	if b.sink == nil || b.old == nil {
		return
	}

	union := make(map[string]bool, len(ids))
	for _, id := range ids {
		union[id] = true
	}
	for _, id := range b.old.Children[parentID] {
		union[id] = true
	}

	for id := range union {
		m := b.snap.Meta[id]
		if m != nil && m.IsTrashCan {
			continue
		}
		var newT, oldT time.Time
		if m != nil {
			newT = m.ModifiedTime
		}
		if om := b.old.Meta[id]; om != nil {
			oldT = om.ModifiedTime
		}
		if newT.After(oldT) {
			b.sink(Change{ID: id, Modified: newT})
		}
	}
}
