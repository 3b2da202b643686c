package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidanlsb/kiln/internal/atomicfile"
	"github.com/aidanlsb/kiln/internal/tree"
)

// RootFile and DirFile hold the resource of a root or directory inside the
// folder named after it.
const (
	RootFile = ".root"
	DirFile  = ".dir"
)

// FileKind classifies a file in a vault.
type FileKind int

const (
	FileNone FileKind = iota
	FileRoot
	FileDirectory
	FileAsset
)

func (k FileKind) String() string {
	switch k {
	case FileRoot:
		return "root"
	case FileDirectory:
		return "directory"
	case FileAsset:
		return "asset"
	}
	return "none"
}

// WalkResult contains the result of reading one resource file.
type WalkResult struct {
	Path         string
	RelativePath string // slash separated
	Kind         FileKind
	Content      []byte
	FileMtime    int64 // UnixNano
	Error        error
}

// Classify reports what a vault-relative, slash-separated path holds.
// Top-level files, hidden folders and temp files hold nothing.
func Classify(rel string) FileKind {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	parts := strings.Split(rel, "/")
	if len(parts) < 2 {
		return FileNone
	}
	for _, p := range parts[:len(parts)-1] {
		if p == "" || strings.HasPrefix(p, ".") {
			return FileNone
		}
	}
	base := parts[len(parts)-1]
	switch {
	case base == RootFile:
		if len(parts) == 2 {
			return FileRoot
		}
		return FileNone
	case base == DirFile:
		if len(parts) > 2 {
			return FileDirectory
		}
		return FileNone
	case strings.HasPrefix(base, ".") || atomicfile.IsTemp(base):
		return FileNone
	}
	return FileAsset
}

// FilePath returns the vault-relative file that stores node n.
func FilePath(n tree.Node) string {
	switch n.Kind {
	case tree.KindRoot:
		return n.Path + "/" + RootFile
	case tree.KindDirectory:
		return n.Path + "/" + DirFile
	}
	return n.Path
}

// Walk reads every resource file in the vault and calls handler for each,
// in lexical order. It skips hidden folders (including .kiln) and files that
// Classify rejects.
func Walk(vaultPath string, handler func(result WalkResult) error) error {
	return filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, err error) error {
		relativePath, _ := filepath.Rel(vaultPath, path)
		relativePath = filepath.ToSlash(relativePath)

		if err != nil {
			return handler(WalkResult{Path: path, RelativePath: relativePath, Error: err})
		}

		if d.IsDir() {
			if path != vaultPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		kind := Classify(relativePath)
		if kind == FileNone {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return handler(WalkResult{Path: path, RelativePath: relativePath, Error: err})
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return handler(WalkResult{Path: path, RelativePath: relativePath, Error: err})
		}

		return handler(WalkResult{
			Path:         path,
			RelativePath: relativePath,
			Kind:         kind,
			Content:      content,
			FileMtime:    info.ModTime().UnixNano(),
		})
	})
}
