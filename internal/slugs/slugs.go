// Package slugs provides the slugification helpers used for on-disk names.
//
// Asset file extensions default to the slug of their payload type name, and
// vault folders created from free-form labels are slugged the same way, so
// both go through ComponentSlug.
package slugs

import (
	"strings"

	goslug "github.com/gosimple/slug"
)

// ComponentSlug converts a string to a URL-safe slug appropriate for a single
// file or path component.
func ComponentSlug(s string) string {
	slugged := goslug.Make(strings.TrimSpace(s))
	if slugged == "" {
		slugged = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
	}
	return slugged
}

// Extension returns the file extension used for assets whose payload has the
// given type name. Dots are not part of the result.
func Extension(typeName string) string {
	ext := ComponentSlug(typeName)
	ext = strings.Trim(ext, ".-")
	if ext == "" {
		return "asset"
	}
	return ext
}

// SafeName replaces path separators in a display name so that it can be used
// as a single path component, and trims surrounding whitespace. Leading dots
// become underscores: "." and ".." would escape the folder, and dot files
// are not loaded back.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	rest := strings.TrimLeft(name, ".")
	return strings.Repeat("_", len(name)-len(rest)) + rest
}
