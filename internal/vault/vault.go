// Package vault keeps an object graph in sync with a directory of resource
// files.
//
// A vault holds kiln.toml, types.yaml, a private .kiln folder (catalog and
// stream buffers) and one folder per root. Each root, directory and asset
// is stored at its tree path: roots as <root>/.root, directories as
// <path>/.dir and assets as <path> itself.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/blobs"
	"github.com/aidanlsb/kiln/internal/catalog"
	"github.com/aidanlsb/kiln/internal/codec"
	"github.com/aidanlsb/kiln/internal/config"
	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/logging"
	"github.com/aidanlsb/kiln/internal/schema"
	"github.com/aidanlsb/kiln/internal/tree"
)

// BuffersDir is the folder inside .kiln that holds stream buffers.
const BuffersDir = "buffers"

var (
	// ErrNotVault indicates a directory without kiln.toml.
	ErrNotVault = errors.New("not a kiln vault")
	// ErrNotFound indicates a path or id that names nothing in the vault.
	ErrNotFound = errors.New("not found in vault")
	// ErrMissingFile indicates a root member whose file does not exist.
	ErrMissingFile = errors.New("listed file is missing")
)

// Options configures Open and Init.
type Options struct {
	// Logger receives load, save and reload records. Nil means slog.Default().
	Logger *slog.Logger

	// InMemoryBuffers keeps stream buffers in memory regardless of kiln.toml.
	InMemoryBuffers bool
}

// Warning is a file that could not be loaded.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Vault is an open vault. Its methods are safe for concurrent use; the
// graph and tree it wraps are not, so direct access goes through Update
// and View.
type Vault struct {
	mu sync.Mutex

	path  string
	cfg   *config.Config
	reg   *schema.Registry
	store *graph.Store
	tree  *tree.Index
	cat   *catalog.Catalog
	blobs *blobs.Store
	log   *slog.Logger

	warnings []Warning
	closed   bool
}

// Init creates a vault at path with default kiln.toml and types.yaml, then
// opens it. Existing config files are left alone.
func Init(path string, opts Options) (*Vault, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	if _, err := config.CreateDefault(path); err != nil {
		return nil, err
	}
	if err := schema.CreateDefault(path); err != nil {
		return nil, err
	}
	return Open(path, opts)
}

// Open loads the vault at path.
func Open(path string, opts Options) (*Vault, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(abs, config.FileName)); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotVault)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	log := logging.OrDefault(opts.Logger)

	reg, err := schema.Load(abs)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(abs)
	if err != nil {
		return nil, err
	}

	bs, err := blobs.Open(blobs.Config{
		Path:     filepath.Join(abs, catalog.Dir, BuffersDir),
		InMemory: cfg.Buffers.InMemory || opts.InMemoryBuffers,
		Level:    cfg.Buffers.CompressionLevel,
		Logger:   log,
	})
	if err != nil {
		cat.Close()
		return nil, err
	}

	store := graph.NewStore(reg)
	v := &Vault{
		path:  abs,
		cfg:   cfg,
		reg:   reg,
		store: store,
		tree:  tree.New(store, tree.Options{SortDescending: cfg.Tree.SortDescending, Logger: log}),
		cat:   cat,
		blobs: bs,
		log:   log,
	}
	if err := v.load(); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// Close releases the catalog and buffer store. Unsaved changes are lost.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return errors.Join(v.blobs.Close(), v.cat.Close())
}

// Path returns the absolute vault directory.
func (v *Vault) Path() string { return v.path }

// Config returns the vault configuration.
func (v *Vault) Config() *config.Config { return v.cfg }

// Registry returns the vault's types.
func (v *Vault) Registry() *schema.Registry { return v.reg }

// Warnings returns the files that failed to load or reload.
func (v *Vault) Warnings() []Warning {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Warning(nil), v.warnings...)
}

// Update runs fn with exclusive access to the tree and its store. fn must
// not call other Vault methods.
func (v *Vault) Update(fn func(ix *tree.Index) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fn(v.tree)
}

// View is Update for callers that only read. Reads may still rebuild the
// tree cache, so it takes the same lock.
func (v *Vault) View(fn func(ix *tree.Index) error) error {
	return v.Update(fn)
}

func (v *Vault) abs(rel string) string {
	return filepath.Join(v.path, filepath.FromSlash(rel))
}

func (v *Vault) warn(path string, err error) {
	v.log.Warn("skipping file", "path", path, "error", err)
	v.warnings = append(v.warnings, Warning{Path: path, Err: err})
}

type loadedFile struct {
	id    graph.ID
	rel   string
	kind  FileKind
	mtime int64
}

func (v *Vault) load() error {
	var files []loadedFile
	err := Walk(v.path, func(r WalkResult) error {
		if r.Error != nil {
			v.warn(r.RelativePath, r.Error)
			return nil
		}
		id, err := v.parse(r.RelativePath, r.Kind, r.Content)
		if err != nil {
			v.warn(r.RelativePath, err)
			return nil
		}
		files = append(files, loadedFile{id: id, rel: r.RelativePath, kind: r.Kind, mtime: r.FileMtime})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk vault: %w", err)
	}

	for _, f := range files {
		if f.kind == FileRoot {
			v.tree.AddRoot(f.id)
		}
	}
	for _, f := range files {
		if err := v.settle(f); err != nil {
			return err
		}
	}
	for _, f := range files {
		v.adopt(f)
	}
	for _, root := range v.tree.RootIDs() {
		if err := v.unlistMissing(root); err != nil {
			return err
		}
	}

	v.log.Info("vault loaded", "path", v.path, "files", len(files), "warnings", len(v.warnings))
	return nil
}

// parse reads one resource file and checks that its type matches where it
// was found.
func (v *Vault) parse(rel string, kind FileKind, data []byte) (graph.ID, error) {
	id, err := codec.ParseWithOptions(v.store, data, codec.Options{Logger: v.log})
	if err != nil {
		return graph.Nil, err
	}
	want := map[FileKind]string{
		FileRoot:      schema.TypeRoot,
		FileDirectory: schema.TypeDirectory,
		FileAsset:     schema.TypeAsset,
	}[kind]
	if t := v.store.Type(id); t == nil || t.Name != want {
		return graph.Nil, fmt.Errorf("file holds a %s, want %s", typeName(v.store.Type(id)), want)
	}
	return id, nil
}

func typeName(t *schema.Type) string {
	if t == nil {
		return "placeholder"
	}
	return t.Name
}

// settle records a freshly read file as the persisted state of its object.
func (v *Vault) settle(f loadedFile) error {
	v.store.SetPath(f.id, f.rel)
	v.tree.MarkPersisted(f.id)
	return v.record(f.id, f.rel, f.mtime)
}

func (v *Vault) record(id graph.ID, rel string, mtime int64) error {
	e := catalog.Entry{
		UUID:      v.store.StableID(id),
		Path:      rel,
		Type:      typeName(v.store.Type(id)),
		Version:   v.store.Version(id),
		FileMtime: mtime,
	}
	if n, ok := v.tree.Node(id); ok {
		e.Name = n.Name
	}
	return v.cat.Record(e)
}

// adopt lists a directory or asset file in the root whose folder it was
// found in, if no root lists it. The root then shows up as unsaved.
func (v *Vault) adopt(f loadedFile) {
	if f.kind != FileDirectory && f.kind != FileAsset {
		return
	}
	folder, _ := tree.SplitPath(f.rel)
	e, err := v.cat.LookupPath(folder + "/" + RootFile)
	if err != nil {
		return
	}
	root, ok := v.store.Lookup(e.UUID)
	if !ok {
		return
	}
	if v.tree.Adopt(root, f.id) {
		v.log.Info("adopted unlisted file", "path", f.rel)
	}
}

// unlistMissing drops the members root lists that no file provides, such as
// files deleted while the vault was closed, and tombstones their catalog
// entries. Members whose file is on disk but failed to load stay listed;
// the load already warned about them.
func (v *Vault) unlistMissing(root graph.ID) error {
	rootPath, _ := v.store.Path(root)
	for _, id := range v.tree.Unresolved(root) {
		u := v.store.StableID(id)
		e, err := v.cat.Lookup(u)
		switch {
		case err == nil && !e.Deleted():
			if _, statErr := os.Stat(v.abs(e.Path)); statErr == nil {
				continue
			}
			if err := v.cat.Tombstone(u); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, catalog.ErrNotFound):
			return err
		}
		v.tree.Unlist(root, id)
		v.warn(rootPath, fmt.Errorf("%s: %w", u, ErrMissingFile))
	}
	return nil
}

// AddRoot creates a root with a name unique among roots.
func (v *Vault) AddRoot(name string) graph.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tree.CreateRoot(name)
}

// Resolve finds a node by tree path or by the stable id of its object.
func (v *Vault) Resolve(ref string) (tree.Node, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolve(ref)
}

func (v *Vault) resolve(ref string) (tree.Node, error) {
	if u, err := uuid.Parse(ref); err == nil {
		if id, ok := v.store.Lookup(u); ok {
			if n, ok := v.tree.Node(id); ok {
				return n, nil
			}
		}
		return tree.Node{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	n, ok := v.tree.Find(ref)
	if !ok {
		return tree.Node{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return n, nil
}

// CreateAsset creates a payload of the named type and wraps it in a new
// asset under parent.
func (v *Vault) CreateAsset(parent graph.ID, typeName, name string) (graph.ID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := v.reg.Type(typeName)
	if t == nil || schema.IsBuiltin(typeName) {
		return graph.Nil, fmt.Errorf("unknown asset type %q", typeName)
	}
	payload := v.store.CreateObject(t)
	id := v.tree.NewAsset(parent, payload, name)
	if id == graph.Nil {
		v.store.Destroy(payload)
		return graph.Nil, fmt.Errorf("parent %d: %w", parent, ErrNotFound)
	}
	return id, nil
}

// Payload returns the object an asset wraps.
func (v *Vault) Payload(asset graph.ID) graph.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.payload(asset)
}

func (v *Vault) payload(asset graph.ID) graph.ID {
	r := v.store.Read(asset)
	if r == nil {
		return graph.Nil
	}
	i, ok := r.Field(schema.FieldObject)
	if !ok {
		return graph.Nil
	}
	return r.SubObject(i)
}

// Encode returns the text form of id as it would be saved.
func (v *Vault) Encode(id graph.ID) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return codec.Write(v.store, id)
}

// Attach stores data in the buffer store and points the named stream field
// of an asset's payload at it.
func (v *Vault) Attach(asset graph.ID, field string, data []byte) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload := v.payload(asset)
	if payload == graph.Nil {
		return 0, fmt.Errorf("asset %d has no payload: %w", asset, ErrNotFound)
	}
	w, err := v.store.Write(payload)
	if err != nil {
		return 0, err
	}
	i, ok := w.Field(field)
	if !ok {
		return 0, fmt.Errorf("type %s has no field %q", typeName(v.store.Type(payload)), field)
	}
	if k := v.store.Type(payload).Fields[i].Kind; k != schema.KindStream {
		return 0, fmt.Errorf("%w: field %s is %s, not stream", graph.ErrTypeMismatch, field, k)
	}
	buf, err := v.blobs.Put(data)
	if err != nil {
		return 0, err
	}
	if err := w.SetBuffer(i, buf); err != nil {
		return 0, err
	}
	w.Commit()
	v.log.Debug("buffer attached", "asset", asset, "field", field, "buffer", fmt.Sprintf("%016x", buf), "bytes", len(data))
	return buf, nil
}

// Buffer returns the contents of a stream buffer.
func (v *Vault) Buffer(id uint64) ([]byte, error) {
	return v.blobs.Get(id)
}
