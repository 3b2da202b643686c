package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/atomicfile"
	"github.com/aidanlsb/kiln/internal/catalog"
	"github.com/aidanlsb/kiln/internal/codec"
	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
	"github.com/aidanlsb/kiln/internal/tree"
)

// SaveResult lists what Save did, as vault-relative paths.
type SaveResult struct {
	Written []string `json:"written"`
	Removed []string `json:"removed,omitempty"`
	Deleted int      `json:"deleted"`
}

type pending struct {
	node   tree.Node
	stable uuid.UUID
	old    string // catalog path, "" if never saved
}

func (v *Vault) pending() ([]pending, error) {
	var out []pending
	var stable []uuid.UUID
	for _, id := range v.tree.CollectStale() {
		n, ok := v.tree.Node(id)
		if !ok {
			continue
		}
		p := pending{node: n, stable: v.store.StableID(id)}
		out = append(out, p)
		stable = append(stable, p.stable)
	}
	if len(out) == 0 {
		return nil, nil
	}
	saved, err := v.cat.LookupMany(stable)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if e, ok := saved[out[i].stable]; ok && !e.Deleted() {
			out[i].old = e.Path
		}
	}
	return out, nil
}

// Save persists every unsaved change. Deleted objects lose their files and
// are purged from the graph, leaving a catalog tombstone. Updated objects are
// written atomically at their current path, and files left at old paths by
// moves and renames are removed.
func (v *Vault) Save() (*SaveResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	res := &SaveResult{}

	// Purging edits root collections, so deletions go first and the roots
	// they touch are picked up by the write pass.
	deletes, err := v.pending()
	if err != nil {
		return res, err
	}
	for i := len(deletes) - 1; i >= 0; i-- {
		p := deletes[i]
		if p.node.Active {
			continue
		}
		if p.old != "" {
			if err := atomicfile.RemoveAndPrune(v.abs(p.old), v.path); err != nil {
				return res, err
			}
			res.Removed = append(res.Removed, p.old)
			if err := v.cat.Tombstone(p.stable); err != nil && !errors.Is(err, catalog.ErrNotFound) {
				return res, err
			}
		}
		v.tree.Purge(p.node.ID)
		res.Deleted++
	}

	writes, err := v.pending()
	if err != nil {
		return res, err
	}
	written := make(map[string]bool, len(writes))
	for _, p := range writes {
		rel := FilePath(p.node)
		data, err := codec.Write(v.store, p.node.ID)
		if err != nil {
			return res, fmt.Errorf("encode %s: %w", rel, err)
		}
		full := v.abs(rel)
		if err := atomicfile.WriteFile(full, data, 0o644); err != nil {
			return res, fmt.Errorf("write %s: %w", rel, err)
		}
		st, err := os.Stat(full)
		if err != nil {
			return res, err
		}
		v.store.SetPath(p.node.ID, rel)
		if err := v.record(p.node.ID, rel, st.ModTime().UnixNano()); err != nil {
			return res, err
		}
		v.tree.MarkPersisted(p.node.ID)
		written[rel] = true
		res.Written = append(res.Written, rel)
	}

	for _, p := range writes {
		if p.old == "" || p.old == FilePath(p.node) || written[p.old] {
			continue
		}
		if err := atomicfile.RemoveAndPrune(v.abs(p.old), v.path); err != nil {
			return res, err
		}
		res.Removed = append(res.Removed, p.old)
	}

	v.log.Info("vault saved", "written", len(res.Written), "removed", len(res.Removed), "deleted", res.Deleted)
	return res, nil
}

// Change kinds reported by Status.
const (
	ChangeNew      = "new"
	ChangeModified = "modified"
	ChangeMoved    = "moved"
	ChangeDeleted  = "deleted"
)

// Change is one unsaved change.
type Change struct {
	Path    string `json:"path"`               // current path, or last saved path for deletions
	OldPath string `json:"old_path,omitempty"` // set for moves
	Kind    string `json:"kind"`               // root, directory or asset
	Change  string `json:"change"`
}

// Status summarizes unsaved changes and on-disk drift.
type Status struct {
	Pending []Change

	// Disk lists saved files changed or removed outside kiln since they were
	// saved or loaded.
	Disk *catalog.StalenessInfo

	// MissingBuffers lists stream fields, as "path#field", whose buffer is
	// not in the buffer store.
	MissingBuffers []string

	Warnings []Warning
}

// Clean reports whether there is nothing to save and nothing drifted.
func (s *Status) Clean() bool {
	return len(s.Pending) == 0 && (s.Disk == nil || !s.Disk.IsStale) && len(s.MissingBuffers) == 0
}

// Status reports what Save would do and what changed on disk.
func (v *Vault) Status() (*Status, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := &Status{Warnings: append([]Warning(nil), v.warnings...)}
	pend, err := v.pending()
	if err != nil {
		return nil, err
	}
	for _, p := range pend {
		c := Change{Path: FilePath(p.node), Kind: p.node.Kind.String()}
		switch {
		case !p.node.Active:
			c.Change = ChangeDeleted
			c.Path = p.old
		case v.tree.LoadedVersion(p.node.ID) == 0 || p.old == "":
			c.Change = ChangeNew
		case p.old != c.Path:
			c.Change = ChangeMoved
			c.OldPath = p.old
		default:
			c.Change = ChangeModified
		}
		st.Pending = append(st.Pending, c)
	}

	disk, err := v.cat.CheckStaleness(v.path)
	if err != nil {
		return nil, err
	}
	st.Disk = disk

	missing, err := v.missingBuffers()
	if err != nil {
		return nil, err
	}
	st.MissingBuffers = missing
	return st, nil
}

func (v *Vault) missingBuffers() ([]string, error) {
	var out []string
	var err error
	v.tree.Walk(func(n tree.Node, _ int) bool {
		if n.Kind != tree.KindAsset || !n.Active || err != nil {
			return err == nil
		}
		r := v.store.Read(v.payload(n.ID))
		if r == nil || r.Type() == nil {
			return true
		}
		for i, f := range r.Type().Fields {
			if f.Kind != schema.KindStream || !r.Has(i) {
				continue
			}
			buf := r.Buffer(i)
			if buf == 0 {
				continue
			}
			var has bool
			has, err = v.blobs.Has(buf)
			if err != nil {
				return false
			}
			if !has {
				out = append(out, n.Path+"#"+f.Name)
			}
		}
		return true
	})
	return out, err
}

// Reload re-reads one file after it changed on disk. path may be absolute
// or vault-relative. It reports whether the graph changed: files that hold
// no resource, and files whose mtime matches the catalog (kiln's own
// writes), are ignored. A saved file that disappeared has its object purged.
func (v *Vault) Reload(path string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rel, err := v.relative(path)
	if err != nil {
		return false, err
	}
	kind := Classify(rel)
	if kind == FileNone {
		return false, nil
	}

	full := v.abs(rel)
	st, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return v.removed(rel)
	}
	if err != nil {
		return false, err
	}
	mtime := st.ModTime().UnixNano()
	if e, err := v.cat.LookupPath(rel); err == nil && e.FileMtime == mtime {
		return false, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return false, err
	}
	id, err := v.parse(rel, kind, data)
	if err != nil {
		v.warn(rel, err)
		return false, err
	}
	if kind == FileRoot {
		v.tree.AddRoot(id)
	}
	v.tree.Invalidate()

	f := loadedFile{id: id, rel: rel, kind: kind, mtime: mtime}
	if err := v.settle(f); err != nil {
		return true, err
	}
	v.adopt(f)
	if kind == FileRoot {
		if err := v.unlistMissing(id); err != nil {
			return true, err
		}
	}
	v.log.Info("reloaded", "path", rel)
	return true, nil
}

func (v *Vault) removed(rel string) (bool, error) {
	e, err := v.cat.LookupPath(rel)
	if err != nil {
		return false, nil
	}
	if id, ok := v.store.Lookup(e.UUID); ok && v.store.IsActive(id) {
		v.tree.Purge(id)
	}
	if err := v.cat.Tombstone(e.UUID); err != nil {
		return true, err
	}
	v.log.Info("removed on disk", "path", rel)
	return true, nil
}

func (v *Vault) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(v.path, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the vault", path)
	}
	return filepath.ToSlash(rel), nil
}

// Stats returns catalog statistics plus the number of live graph objects.
func (v *Vault) Stats() (*catalog.Stats, int, error) {
	v.mu.Lock()
	n := v.store.Len()
	v.mu.Unlock()
	s, err := v.cat.Stats()
	return s, n, err
}

// Types lists the user-defined type names.
func (v *Vault) Types() []string {
	var out []string
	for _, name := range v.reg.Types() {
		if !schema.IsBuiltin(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Node returns the tree node for id.
func (v *Vault) Node(id graph.ID) (tree.Node, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tree.Node(id)
}
