// Package tree projects the directory-shaped part of the object graph (roots,
// directories and assets) into a navigable tree and tracks which objects
// changed since they were last persisted.
//
// The tree is a cache. Every structural edit marks it dirty and the next
// query rebuilds it from the graph. Nodes live in an arena that is discarded
// on every rebuild, so nothing returned by one generation refers into the
// next.
package tree

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
)

// Kind is the role of a node in the tree.
type Kind int

const (
	KindRoot Kind = iota
	KindDirectory
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindDirectory:
		return "directory"
	case KindAsset:
		return "asset"
	}
	return "unknown"
}

// State is the cache state of an Index.
type State int

const (
	Clean State = iota
	Dirty
)

// Options configures an Index.
type Options struct {
	// SortDescending sorts children Z to A. The default is A to Z.
	SortDescending bool

	// Logger receives rebuild and edit records. Nil means slog.Default().
	Logger *slog.Logger
}

// Node is the cached projection of one graph object.
type Node struct {
	ID   graph.ID
	Root graph.ID
	Kind Kind

	// Type is the declared type name of the object.
	Type string

	// Name is the display name. Assets include their extension.
	Name string

	// Path is the root-qualified, slash-separated location of the node.
	Path string

	Active  bool
	Updated bool

	// AssetType is the payload type name of an asset.
	AssetType string

	parent   int
	children []int
}

// Index is the tree cache over one store. It is not safe for concurrent use.
type Index struct {
	store *graph.Store
	opts  Options
	log   *slog.Logger

	roots []graph.ID

	nodes  []Node
	byID   map[graph.ID]int
	byPath map[string]int

	loaded map[graph.ID]uint64

	dirty      bool
	generation uint64
}

// New creates an empty index over store.
func New(store *graph.Store, opts Options) *Index {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Index{
		store:  store,
		opts:   opts,
		log:    log,
		byID:   make(map[graph.ID]int),
		byPath: make(map[string]int),
		loaded: make(map[graph.ID]uint64),
		dirty:  true,
	}
}

// Store returns the graph the index projects.
func (ix *Index) Store() *graph.Store { return ix.store }

// State reports whether the cache must be rebuilt before use.
func (ix *Index) State() State {
	if ix.dirty {
		return Dirty
	}
	return Clean
}

// IsDirty reports whether the next query will rebuild.
func (ix *Index) IsDirty() bool { return ix.dirty }

// Generation counts completed rebuilds.
func (ix *Index) Generation() uint64 { return ix.generation }

// Invalidate marks the cache dirty. Callers that mutate the graph directly
// (for example by re-parsing a file) use it to have the change picked up.
func (ix *Index) Invalidate() { ix.dirty = true }

// AddRoot registers a root object.
func (ix *Index) AddRoot(root graph.ID) {
	for _, r := range ix.roots {
		if r == root {
			return
		}
	}
	ix.roots = append(ix.roots, root)
	ix.dirty = true
}

// RootIDs returns the registered roots in registration order.
func (ix *Index) RootIDs() []graph.ID {
	return append([]graph.ID(nil), ix.roots...)
}

func (ix *Index) removeRoot(root graph.ID) {
	out := ix.roots[:0]
	for _, r := range ix.roots {
		if r != root {
			out = append(out, r)
		}
	}
	ix.roots = out
}

// Rebuild reconstructs every node from the graph. It does nothing and
// returns false when the cache is clean.
func (ix *Index) Rebuild() bool {
	if !ix.dirty {
		return false
	}

	ix.nodes = ix.nodes[:0:0]
	ix.byID = make(map[graph.ID]int)
	ix.byPath = make(map[string]int)

	for _, root := range ix.roots {
		rv := ix.store.Read(root)
		if rv == nil {
			continue
		}
		ri := ix.addNode(root, root, KindRoot, -1)
		if ri < 0 {
			continue
		}
		dirs, assets := ix.collection(rv, schema.FieldDirectories), ix.collection(rv, schema.FieldAssets)
		first := len(ix.nodes)
		for _, id := range dirs {
			ix.addNode(id, root, KindDirectory, ri)
		}
		for _, id := range assets {
			ix.addNode(id, root, KindAsset, ri)
		}
		ix.resolveParents(ri, first)
	}

	for i := range ix.nodes {
		ix.sortChildren(i)
	}
	for i := range ix.nodes {
		if ix.nodes[i].Kind == KindRoot {
			ix.assignPaths(i, "")
		}
	}

	ix.dirty = false
	ix.generation++
	ix.log.Debug("tree rebuilt", "nodes", len(ix.nodes), "generation", ix.generation)
	return true
}

func (ix *Index) collection(rv *graph.View, name string) []graph.ID {
	i, ok := rv.Field(name)
	if !ok {
		return nil
	}
	return graph.IDs(rv.Value(i))
}

func (ix *Index) addNode(id, root graph.ID, kind Kind, parent int) int {
	if _, dup := ix.byID[id]; dup {
		return -1
	}
	v := ix.store.Read(id)
	if v == nil || !ix.holds(id, kind) {
		return -1
	}
	n := Node{
		ID:      id,
		Root:    root,
		Kind:    kind,
		Active:  ix.store.IsActive(id),
		Updated: ix.store.Version(id) > ix.loaded[id],
		parent:  parent,
	}
	if t := v.Type(); t != nil {
		n.Type = t.Name
	}
	n.Name = stringField(v, schema.FieldName)
	if kind == KindAsset {
		if ext := stringField(v, schema.FieldExtension); ext != "" {
			n.Name += "." + ext
		}
		if i, ok := v.Field(schema.FieldObject); ok {
			if t := ix.store.Type(v.SubObject(i)); t != nil {
				n.AssetType = t.Name
			}
		}
	}
	ix.nodes = append(ix.nodes, n)
	ix.byID[id] = len(ix.nodes) - 1
	return len(ix.nodes) - 1
}

// holds reports whether id is a materialized object of the type kind
// stores. Placeholders left by members whose file never loaded fail.
func (ix *Index) holds(id graph.ID, kind Kind) bool {
	if ix.store.IsPlaceholder(id) {
		return false
	}
	t := ix.store.Type(id)
	return t != nil && t.Name == kindType(kind)
}

func kindType(k Kind) string {
	switch k {
	case KindRoot:
		return schema.TypeRoot
	case KindDirectory:
		return schema.TypeDirectory
	default:
		return schema.TypeAsset
	}
}

func stringField(v *graph.View, name string) string {
	i, ok := v.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.Value(i).(string)
	return s
}

// parentOf returns the object named by the directory field, or graph.Nil.
func (ix *Index) parentOf(id graph.ID) graph.ID {
	v := ix.store.Read(id)
	if v == nil {
		return graph.Nil
	}
	i, ok := v.Field(schema.FieldDirectory)
	if !ok {
		return graph.Nil
	}
	p, _ := v.Value(i).(graph.ID)
	return p
}

// resolveParents links the nodes of one root, starting at index first, to
// the directories their directory field names. Nodes whose parent is
// missing, outside the root, not a directory, or part of a cycle hang off
// the root.
func (ix *Index) resolveParents(ri, first int) {
	for i := first; i < len(ix.nodes); i++ {
		p := ix.parentOf(ix.nodes[i].ID)
		if pi, ok := ix.byID[p]; ok && pi >= first && ix.nodes[pi].Kind == KindDirectory {
			ix.nodes[i].parent = pi
		}
	}
	for i := first; i < len(ix.nodes); i++ {
		cur, steps := ix.nodes[i].parent, 0
		for cur != ri && cur >= 0 && steps <= len(ix.nodes) {
			cur = ix.nodes[cur].parent
			steps++
		}
		if cur != ri {
			ix.log.Debug("breaking directory cycle", "id", ix.nodes[i].ID)
			ix.nodes[i].parent = ri
		}
	}
	for i := first; i < len(ix.nodes); i++ {
		p := ix.nodes[i].parent
		ix.nodes[p].children = append(ix.nodes[p].children, i)
	}
}

func (ix *Index) sortChildren(i int) {
	children := ix.nodes[i].children
	desc := ix.opts.SortDescending
	sort.SliceStable(children, func(a, b int) bool {
		na := strings.ToLower(ix.nodes[children[a]].Name)
		nb := strings.ToLower(ix.nodes[children[b]].Name)
		if desc {
			return na > nb
		}
		return na < nb
	})
}

func (ix *Index) assignPaths(i int, prefix string) {
	n := &ix.nodes[i]
	if prefix == "" {
		n.Path = n.Name
	} else {
		n.Path = prefix + "/" + n.Name
	}
	if n.Active {
		if _, taken := ix.byPath[n.Path]; !taken {
			ix.byPath[n.Path] = i
		}
	}
	for _, c := range n.children {
		ix.assignPaths(c, ix.nodes[i].Path)
	}
}

func (ix *Index) node(id graph.ID) (int, bool) {
	ix.Rebuild()
	i, ok := ix.byID[id]
	return i, ok
}

func (ix *Index) export(i int) Node {
	n := ix.nodes[i]
	n.children = append([]int(nil), n.children...)
	return n
}

// Node returns the node for id.
func (ix *Index) Node(id graph.ID) (Node, bool) {
	i, ok := ix.node(id)
	if !ok {
		return Node{}, false
	}
	return ix.export(i), true
}

// Parent returns the parent node of id. Roots have no parent.
func (ix *Index) Parent(id graph.ID) (Node, bool) {
	i, ok := ix.node(id)
	if !ok || ix.nodes[i].parent < 0 {
		return Node{}, false
	}
	return ix.export(ix.nodes[i].parent), true
}

// Children returns the sorted children of id.
func (ix *Index) Children(id graph.ID) []Node {
	i, ok := ix.node(id)
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(ix.nodes[i].children))
	for _, c := range ix.nodes[i].children {
		out = append(out, ix.export(c))
	}
	return out
}

// Roots returns the root nodes in registration order.
func (ix *Index) Roots() []Node {
	ix.Rebuild()
	var out []Node
	for i := range ix.nodes {
		if ix.nodes[i].Kind == KindRoot {
			out = append(out, ix.export(i))
		}
	}
	return out
}

// Find returns the active node at path.
func (ix *Index) Find(path string) (Node, bool) {
	ix.Rebuild()
	i, ok := ix.byPath[strings.Trim(path, "/")]
	if !ok {
		return Node{}, false
	}
	return ix.export(i), true
}

// Walk visits every node depth-first, parents before children. Returning
// false from fn skips the node's children.
func (ix *Index) Walk(fn func(n Node, depth int) bool) {
	ix.Rebuild()
	var visit func(i, depth int)
	visit = func(i, depth int) {
		if !fn(ix.export(i), depth) {
			return
		}
		for _, c := range ix.nodes[i].children {
			visit(c, depth+1)
		}
	}
	for i := range ix.nodes {
		if ix.nodes[i].Kind == KindRoot {
			visit(i, 0)
		}
	}
}

// Len returns the number of nodes.
func (ix *Index) Len() int {
	ix.Rebuild()
	return len(ix.nodes)
}

// IsAncestor reports whether ancestor is a strict ancestor of id. It is
// false when either is unknown.
func (ix *Index) IsAncestor(id, ancestor graph.ID) bool {
	i, ok := ix.node(id)
	if !ok {
		return false
	}
	a, ok := ix.byID[ancestor]
	if !ok {
		return false
	}
	for p := ix.nodes[i].parent; p >= 0; p = ix.nodes[p].parent {
		if p == a {
			return true
		}
	}
	return false
}

// CollectStale returns every node that changed since it was last persisted
// or has been deactivated, depth-first from each root, parents first.
func (ix *Index) CollectStale() []graph.ID {
	ix.Rebuild()
	var out []graph.ID
	ix.Walk(func(n Node, _ int) bool {
		if n.Updated || !n.Active {
			out = append(out, n.ID)
		}
		return true
	})
	return out
}

// MarkPersisted records the current version of id as persisted.
func (ix *Index) MarkPersisted(id graph.ID) {
	ix.SetLoadedVersion(id, ix.store.Version(id))
}

// SetLoadedVersion records v as the persisted version of id.
func (ix *Index) SetLoadedVersion(id graph.ID, v uint64) {
	ix.loaded[id] = v
	if i, ok := ix.byID[id]; ok && !ix.dirty {
		ix.nodes[i].Updated = ix.store.Version(id) > v
	}
}

// LoadedVersion returns the persisted version of id, or 0 if it was never
// persisted.
func (ix *Index) LoadedVersion(id graph.ID) uint64 {
	return ix.loaded[id]
}

// Forget drops the persisted version of id.
func (ix *Index) Forget(id graph.ID) {
	delete(ix.loaded, id)
	ix.dirty = true
}
