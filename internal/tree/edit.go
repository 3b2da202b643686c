package tree

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
	"github.com/aidanlsb/kiln/internal/slugs"
)

// DefaultDirectoryName is used when NewDirectory is given an empty name.
const DefaultDirectoryName = "New Directory"

// DefaultAssetName is used when NewAsset is given an empty name.
const DefaultAssetName = "New Asset"

// uniqueName returns base, or base with the smallest " (N)" suffix, such that
// the display name (plus ext for assets) collides with no active child of
// parent other than self. Comparison is case-sensitive.
func (ix *Index) uniqueName(parent int, base, ext string, self graph.ID) string {
	taken := make(map[string]bool)
	for _, c := range ix.nodes[parent].children {
		n := ix.nodes[c]
		if n.ID == self || !n.Active {
			continue
		}
		taken[n.Name] = true
	}
	display := func(name string) string {
		if ext == "" {
			return name
		}
		return name + "." + ext
	}
	if !taken[display(base)] {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", base, i)
		if !taken[display(candidate)] {
			return candidate
		}
	}
}

// container returns the node index of a root or directory.
func (ix *Index) container(id graph.ID) (int, bool) {
	i, ok := ix.node(id)
	if !ok || ix.nodes[i].Kind == KindAsset || !ix.nodes[i].Active {
		return 0, false
	}
	return i, true
}

func (ix *Index) mustType(name string) *schema.Type {
	t := ix.store.Registry().Type(name)
	if t == nil {
		panic("tree: registry has no built-in type " + name)
	}
	return t
}

// CreateRoot creates and registers a root with a name unique among roots.
func (ix *Index) CreateRoot(name string) graph.ID {
	ix.Rebuild()
	name = slugs.SafeName(name)
	if name == "" {
		name = "root"
	}
	taken := make(map[string]bool)
	for _, r := range ix.Roots() {
		taken[r.Name] = true
	}
	base := name
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s (%d)", base, i)
	}

	id := ix.store.CreateObject(ix.mustType(schema.TypeRoot))
	w, _ := ix.store.Write(id)
	_ = w.SetValueByName(schema.FieldName, name)
	_ = w.SetValueByName(schema.FieldDirectories, []any{})
	_ = w.SetValueByName(schema.FieldAssets, []any{})
	w.Commit()
	ix.AddRoot(id)
	ix.log.Debug("root created", "id", id, "name", name)
	return id
}

// NewDirectory creates a directory under parent, which may be a root or a
// directory. It returns graph.Nil if parent is unknown.
func (ix *Index) NewDirectory(parent graph.ID, name string) graph.ID {
	pi, ok := ix.container(parent)
	if !ok {
		return graph.Nil
	}
	name = slugs.SafeName(name)
	if name == "" {
		name = DefaultDirectoryName
	}
	name = ix.uniqueName(pi, name, "", graph.Nil)
	root := ix.nodes[pi].Root
	parentIsDir := ix.nodes[pi].Kind == KindDirectory

	id := ix.store.CreateObject(ix.mustType(schema.TypeDirectory))
	w, _ := ix.store.Write(id)
	_ = w.SetValueByName(schema.FieldName, name)
	if parentIsDir {
		_ = w.SetValueByName(schema.FieldDirectory, parent)
	}
	w.Commit()

	ix.addMember(root, schema.FieldDirectories, id)
	ix.dirty = true
	ix.log.Debug("directory created", "id", id, "name", name, "parent", parent)
	return id
}

// NewAsset wraps payload in a new asset under parent. The asset owns the
// payload, takes its extension from the payload type, and the payload gets a
// stable id. It returns graph.Nil if parent or payload is unknown.
func (ix *Index) NewAsset(parent, payload graph.ID, name string) graph.ID {
	pi, ok := ix.container(parent)
	if !ok {
		return graph.Nil
	}
	pt := ix.store.Type(payload)
	if pt == nil {
		return graph.Nil
	}
	ext := pt.Extension
	if ext == "" {
		ext = slugs.Extension(pt.Name)
	}
	name = slugs.SafeName(name)
	if name == "" {
		name = DefaultAssetName
	}
	name = ix.uniqueName(pi, name, ext, graph.Nil)
	root := ix.nodes[pi].Root
	parentIsDir := ix.nodes[pi].Kind == KindDirectory

	ix.store.StableID(payload)

	id := ix.store.CreateObject(ix.mustType(schema.TypeAsset))
	w, _ := ix.store.Write(id)
	_ = w.SetValueByName(schema.FieldName, name)
	if parentIsDir {
		_ = w.SetValueByName(schema.FieldDirectory, parent)
	}
	_ = w.SetValueByName(schema.FieldExtension, ext)
	if i, ok := w.Field(schema.FieldObject); ok {
		_ = w.SetSubObject(i, payload)
	}
	w.Commit()

	ix.addMember(root, schema.FieldAssets, id)
	ix.dirty = true
	ix.log.Debug("asset created", "id", id, "name", name, "type", pt.Name, "parent", parent)
	return id
}

// Move reparents a directory or asset under target with a fresh unique name.
// Moving across roots moves the root membership of the whole subtree. Every
// descendant is touched because its path changes. It reports whether
// anything moved.
func (ix *Index) Move(target, id graph.ID) bool {
	ni, ok := ix.node(id)
	if !ok || ix.nodes[ni].Kind == KindRoot {
		return false
	}
	ti, ok := ix.container(target)
	if !ok {
		return false
	}
	if target == id || ix.IsAncestor(target, id) || ix.nodes[ni].parent == ti {
		return false
	}

	n := ix.nodes[ni]
	base, ext := ix.baseName(n)
	name := ix.uniqueName(ti, base, ext, id)
	toRoot := ix.nodes[ti].Root
	targetIsDir := ix.nodes[ti].Kind == KindDirectory
	subtree := ix.subtree(ni)

	w, err := ix.store.Write(id)
	if err != nil {
		return false
	}
	_ = w.SetValueByName(schema.FieldName, name)
	if i, ok := w.Field(schema.FieldDirectory); ok {
		if targetIsDir {
			_ = w.SetValue(i, target)
		} else {
			_ = w.ClearValue(i)
		}
	}
	w.Commit()

	if toRoot != n.Root {
		for _, si := range subtree {
			s := ix.nodes[si]
			field := memberField(s.Kind)
			ix.removeMember(n.Root, field, s.ID)
			ix.addMember(toRoot, field, s.ID)
		}
	}
	for _, si := range subtree[1:] {
		ix.store.Touch(ix.nodes[si].ID)
	}

	ix.dirty = true
	ix.log.Debug("moved", "id", id, "target", target, "name", name, "cross_root", toRoot != n.Root)
	return true
}

// Rename gives id a new name, unique among its siblings, and touches every
// descendant. Unknown nodes, empty names and unchanged names are ignored.
func (ix *Index) Rename(id graph.ID, name string) bool {
	ni, ok := ix.node(id)
	if !ok {
		return false
	}
	name = slugs.SafeName(name)
	if name == "" {
		return false
	}
	n := ix.nodes[ni]
	base, ext := ix.baseName(n)
	if name == base {
		return false
	}

	if n.Kind == KindRoot {
		for _, r := range ix.roots {
			if r != id && ix.rootName(r) == name {
				return false
			}
		}
	} else {
		name = ix.uniqueName(n.parent, name, ext, id)
	}
	subtree := ix.subtree(ni)

	w, err := ix.store.Write(id)
	if err != nil {
		return false
	}
	_ = w.SetValueByName(schema.FieldName, name)
	w.Commit()
	for _, si := range subtree[1:] {
		ix.store.Touch(ix.nodes[si].ID)
	}

	ix.dirty = true
	ix.log.Debug("renamed", "id", id, "from", base, "to", name)
	return true
}

// Delete removes id and everything below it, children before parents.
// Objects that were ever persisted are deactivated so the deletion can be
// persisted too; the rest are destroyed and dropped from their root. It
// returns the removed handles in removal order.
func (ix *Index) Delete(id graph.ID) []graph.ID {
	ni, ok := ix.node(id)
	if !ok {
		return nil
	}

	order := ix.postOrder(ni)
	removed := make([]graph.ID, 0, len(order))
	for _, i := range order {
		n := ix.nodes[i]
		if ix.loaded[n.ID] > 0 {
			ix.store.Deactivate(n.ID)
		} else {
			ix.Purge(n.ID)
		}
		ix.store.RemovePath(n.ID)
		removed = append(removed, n.ID)
	}

	ix.dirty = true
	ix.log.Debug("deleted", "id", id, "count", len(removed))
	return removed
}

// Purge destroys id and drops it from its root's collections, or from the
// registered roots if it is a root. It does not recurse through the tree.
func (ix *Index) Purge(id graph.ID) {
	switch t := ix.store.Type(id); {
	case t == nil:
	case t.Name == schema.TypeRoot:
		ix.removeRoot(id)
	default:
		for _, r := range ix.roots {
			ix.removeMember(r, schema.FieldDirectories, id)
			ix.removeMember(r, schema.FieldAssets, id)
		}
	}
	ix.store.Destroy(id)
	delete(ix.loaded, id)
	ix.dirty = true
}

func memberField(k Kind) string {
	if k == KindAsset {
		return schema.FieldAssets
	}
	return schema.FieldDirectories
}

// baseName splits a node's display name into the stored name and extension.
func (ix *Index) baseName(n Node) (string, string) {
	v := ix.store.Read(n.ID)
	if v == nil {
		return n.Name, ""
	}
	name := stringField(v, schema.FieldName)
	if n.Kind != KindAsset {
		return name, ""
	}
	return name, stringField(v, schema.FieldExtension)
}

func (ix *Index) rootName(root graph.ID) string {
	v := ix.store.Read(root)
	if v == nil {
		return ""
	}
	return stringField(v, schema.FieldName)
}

// subtree returns node i followed by all of its descendants, pre-order.
func (ix *Index) subtree(i int) []int {
	out := []int{i}
	for _, c := range ix.nodes[i].children {
		out = append(out, ix.subtree(c)...)
	}
	return out
}

func (ix *Index) postOrder(i int) []int {
	var out []int
	for _, c := range ix.nodes[i].children {
		out = append(out, ix.postOrder(c)...)
	}
	return append(out, i)
}

func (ix *Index) addMember(root graph.ID, field string, id graph.ID) {
	w, err := ix.store.Write(root)
	if err != nil {
		return
	}
	i, ok := w.Field(field)
	if !ok {
		return
	}
	ids := graph.IDs(ix.store.Read(root).Value(i))
	for _, x := range ids {
		if x == id {
			return
		}
	}
	_ = w.SetValue(i, graph.Values(append(ids, id)))
	w.Commit()
}

func (ix *Index) removeMember(root graph.ID, field string, id graph.ID) {
	v := ix.store.Read(root)
	if v == nil {
		return
	}
	i, ok := v.Field(field)
	if !ok {
		return
	}
	ids := graph.IDs(v.Value(i))
	kept := ids[:0]
	for _, x := range ids {
		if x != id {
			kept = append(kept, x)
		}
	}
	if len(kept) == len(ids) {
		return
	}
	w, err := ix.store.Write(root)
	if err != nil {
		return
	}
	_ = w.SetValue(i, graph.Values(kept))
	w.Commit()
}

// Adopt lists an existing directory or asset in root's collections when no
// registered root lists it yet. It reports whether root changed.
func (ix *Index) Adopt(root, id graph.ID) bool {
	ri, ok := ix.node(root)
	if !ok || ix.nodes[ri].Kind != KindRoot {
		return false
	}
	if _, listed := ix.byID[id]; listed {
		return false
	}
	t := ix.store.Type(id)
	if t == nil {
		return false
	}
	var field string
	switch t.Name {
	case schema.TypeDirectory:
		field = schema.FieldDirectories
	case schema.TypeAsset:
		field = schema.FieldAssets
	default:
		return false
	}
	ix.addMember(root, field, id)
	ix.dirty = true
	ix.log.Debug("adopted", "id", id, "root", root)
	return true
}

// Unresolved returns the members root lists that cannot be nodes: objects
// never materialized from a file, or of the wrong type for their
// collection. Rebuild skips them.
func (ix *Index) Unresolved(root graph.ID) []graph.ID {
	v := ix.store.Read(root)
	if v == nil {
		return nil
	}
	var out []graph.ID
	for _, k := range []Kind{KindDirectory, KindAsset} {
		for _, id := range ix.collection(v, memberField(k)) {
			if !ix.holds(id, k) {
				out = append(out, id)
			}
		}
	}
	return out
}

// Unlist drops id from root's collections without touching id itself.
func (ix *Index) Unlist(root, id graph.ID) {
	ix.removeMember(root, schema.FieldDirectories, id)
	ix.removeMember(root, schema.FieldAssets, id)
	ix.dirty = true
}

// SplitPath splits a tree path into its root name and the rest.
func SplitPath(path string) (root, rest string) {
	path = strings.Trim(path, "/")
	root, rest, _ = strings.Cut(path, "/")
	return root, rest
}
