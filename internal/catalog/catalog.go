// Package catalog records what a vault has persisted: one row per saved
// object with its file path, saved version and file mtime, plus tombstones
// for deleted objects.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aidanlsb/kiln/internal/sqlutil"
)

// Dir is the vault-relative directory holding kiln's private state.
const Dir = ".kiln"

// FileName is the catalog database file inside Dir.
const FileName = "catalog.db"

// CurrentVersion is the catalog schema version.
const CurrentVersion = 1

// ErrNotFound indicates the requested object is not in the catalog.
var ErrNotFound = errors.New("object not found in catalog")

// Catalog is the SQLite catalog handle.
type Catalog struct {
	db *sql.DB
}

// Entry is one persisted object.
type Entry struct {
	UUID      uuid.UUID
	Path      string // vault-relative, slash separated
	Type      string
	Name      string
	Version   uint64
	FileMtime int64 // UnixNano of the file after it was written
	SavedAt   time.Time
	DeletedAt time.Time // zero unless tombstoned
}

// Deleted reports whether the entry is a tombstone.
func (e Entry) Deleted() bool {
	return !e.DeletedAt.IsZero()
}

// Open opens or creates the catalog of the vault at vaultPath.
func Open(vaultPath string) (*Catalog, error) {
	dir := filepath.Join(vaultPath, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// OpenInMemory opens an in-memory catalog (for testing).
func OpenInMemory() (*Catalog, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the catalog.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) initialize() error {
	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS objects (
			uuid TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			file_mtime INTEGER,
			saved_at INTEGER NOT NULL,
			deleted_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_objects_path ON objects(path);
		CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(type);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('version', ?)`,
		fmt.Sprint(CurrentVersion),
	)
	return err
}

// Record inserts or replaces e and clears any tombstone. A zero SavedAt is
// set to now.
func (c *Catalog) Record(e Entry) error {
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO objects (uuid, path, type, name, version, file_mtime, saved_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(uuid) DO UPDATE SET
			path = excluded.path,
			type = excluded.type,
			name = excluded.name,
			version = excluded.version,
			file_mtime = excluded.file_mtime,
			saved_at = excluded.saved_at,
			deleted_at = NULL
	`, e.UUID.String(), e.Path, e.Type, e.Name, int64(e.Version), e.FileMtime, e.SavedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record %s: %w", e.UUID, err)
	}
	return nil
}

// Tombstone marks u deleted. The row keeps its last path.
func (c *Catalog) Tombstone(u uuid.UUID) error {
	res, err := c.db.Exec(
		`UPDATE objects SET deleted_at = ? WHERE uuid = ?`,
		time.Now().UnixNano(), u.String(),
	)
	if err != nil {
		return fmt.Errorf("tombstone %s: %w", u, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tombstone %s: %w", u, ErrNotFound)
	}
	return nil
}

const selectColumns = `SELECT uuid, path, type, name, version, file_mtime, saved_at, deleted_at FROM objects`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		id      string
		version int64
		mtime   sql.NullInt64
		saved   int64
		deleted sql.NullInt64
	)
	if err := row.Scan(&id, &e.Path, &e.Type, &e.Name, &version, &mtime, &saved, &deleted); err != nil {
		return Entry{}, err
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("corrupt catalog uuid %q: %w", id, err)
	}
	e.UUID = u
	e.Version = uint64(version)
	e.FileMtime = mtime.Int64
	e.SavedAt = time.Unix(0, saved)
	if deleted.Valid {
		e.DeletedAt = time.Unix(0, deleted.Int64)
	}
	return e, nil
}

// Lookup returns the entry for u, including tombstones.
func (c *Catalog) Lookup(u uuid.UUID) (Entry, error) {
	e, err := scanEntry(c.db.QueryRow(selectColumns+` WHERE uuid = ?`, u.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", u, ErrNotFound)
	}
	return e, err
}

// LookupPath returns the live entry stored at path.
func (c *Catalog) LookupPath(path string) (Entry, error) {
	e, err := scanEntry(c.db.QueryRow(
		selectColumns+` WHERE path = ? AND deleted_at IS NULL LIMIT 1`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return e, err
}

// All returns every live entry ordered by path.
func (c *Catalog) All() ([]Entry, error) {
	return c.query(selectColumns + ` WHERE deleted_at IS NULL ORDER BY path`)
}

// Tombstones returns every deleted entry ordered by path.
func (c *Catalog) Tombstones() ([]Entry, error) {
	return c.query(selectColumns + ` WHERE deleted_at IS NOT NULL ORDER BY path`)
}

// LookupMany returns the entries for us, including tombstones, keyed by
// uuid. Unknown ids are absent from the map.
func (c *Catalog) LookupMany(us []uuid.UUID) (map[uuid.UUID]Entry, error) {
	in, args := sqlutil.InClauseArgs(us, func(u uuid.UUID) any { return u.String() })
	entries, err := c.query(selectColumns+` WHERE uuid IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Entry, len(entries))
	for _, e := range entries {
		out[e.UUID] = e
	}
	return out, nil
}

func (c *Catalog) query(q string, args ...any) ([]Entry, error) {
	rows, err := c.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (Entry, error) {
		return scanEntry(rows)
	})
}

// Forget deletes the row for u outright.
func (c *Catalog) Forget(u uuid.UUID) error {
	_, err := c.db.Exec(`DELETE FROM objects WHERE uuid = ?`, u.String())
	return err
}

// StalenessInfo contains information about on-disk freshness.
type StalenessInfo struct {
	IsStale      bool     // True if any files are stale
	StaleFiles   []string // Files modified since they were saved
	MissingFiles []string // Files that no longer exist
	TotalFiles   int      // Total number of recorded files
	CheckedFiles int      // Number of files found on disk
}

// CheckStaleness compares recorded file mtimes against current filesystem
// mtimes. vaultPath is needed to stat files.
func (c *Catalog) CheckStaleness(vaultPath string) (*StalenessInfo, error) {
	entries, err := c.All()
	if err != nil {
		return nil, err
	}

	info := &StalenessInfo{}
	for _, e := range entries {
		info.TotalFiles++

		st, err := os.Stat(filepath.Join(vaultPath, filepath.FromSlash(e.Path)))
		if err != nil {
			info.MissingFiles = append(info.MissingFiles, e.Path)
			info.IsStale = true
			continue
		}
		info.CheckedFiles++
		if e.FileMtime == 0 || st.ModTime().UnixNano() != e.FileMtime {
			info.StaleFiles = append(info.StaleFiles, e.Path)
			info.IsStale = true
		}
	}
	return info, nil
}

// Stats contains catalog statistics.
type Stats struct {
	ObjectCount    int
	TombstoneCount int
	TypeCounts     map[string]int
}

// Stats returns statistics about the catalog.
func (c *Catalog) Stats() (*Stats, error) {
	stats := &Stats{TypeCounts: make(map[string]int)}

	if err := c.db.QueryRow("SELECT COUNT(*) FROM objects WHERE deleted_at IS NULL").Scan(&stats.ObjectCount); err != nil {
		return nil, err
	}
	if err := c.db.QueryRow("SELECT COUNT(*) FROM objects WHERE deleted_at IS NOT NULL").Scan(&stats.TombstoneCount); err != nil {
		return nil, err
	}

	rows, err := c.db.Query("SELECT type, COUNT(*) FROM objects WHERE deleted_at IS NULL GROUP BY type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		stats.TypeCounts[typ] = n
	}
	return stats, rows.Err()
}
