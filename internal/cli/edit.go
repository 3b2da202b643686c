package cli

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/tree"
	"github.com/aidanlsb/kiln/internal/ui"
	"github.com/aidanlsb/kiln/internal/vault"
)

// Editing commands apply one change to the graph and save the vault, so each
// invocation leaves the files in step with the tree.

var (
	mkdirParentsFlag bool
	newSetFlags      []string
)

type editResult struct {
	Path    string   `json:"path"`
	OldPath string   `json:"old_path,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Written []string `json:"written"`
	Removed []string `json:"removed,omitempty"`
}

// commit saves v and reports the edit.
func commit(v *vault.Vault, res editResult, message string) error {
	saved, err := v.Save()
	if err != nil {
		return handleError(ErrFileWriteError, err, "")
	}
	res.Written = saved.Written
	res.Removed = saved.Removed
	if res.Written == nil {
		res.Written = []string{}
	}
	if isJSONOutput() {
		outputSuccess(res, nil)
		return nil
	}
	fmt.Println(ui.Success(message))
	return nil
}

func resolveNode(v *vault.Vault, ref string) (tree.Node, error) {
	n, err := v.Resolve(ref)
	if err != nil {
		return tree.Node{}, handleError(ErrObjectNotFound, err, "Run 'kiln tree' to see the vault")
	}
	return n, nil
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a root or directory",
	Long: `Creates a directory at path. A path without a slash creates a root.
Names that collide with a sibling get a numeric suffix, e.g. "art (1)".

Examples:
  kiln mkdir main
  kiln mkdir main/art/characters -p`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		var created tree.Node
		var missing string
		_ = v.Update(func(ix *tree.Index) error {
			created, missing = mkdirAll(ix, strings.Trim(args[0], "/"), mkdirParentsFlag)
			return nil
		})
		if missing != "" {
			return handleErrorMsg(ErrObjectNotFound, fmt.Sprintf("no node at %s", missing), "Pass -p to create missing parents")
		}
		return commit(v, editResult{Path: created.Path, Kind: created.Kind.String()},
			fmt.Sprintf("Created %s %s", created.Kind, ui.FilePath(created.Path)))
	},
}

// mkdirAll creates the directory at p. With parents, missing ancestors are
// created too; otherwise the first missing ancestor is returned. A path
// through an asset fails at that asset.
func mkdirAll(ix *tree.Index, p string, parents bool) (tree.Node, string) {
	parts := strings.Split(p, "/")
	var cur tree.Node
	for i, part := range parts {
		at := strings.Join(parts[:i+1], "/")
		if n, ok := ix.Find(at); ok && i < len(parts)-1 {
			cur = n
			continue
		}
		if i < len(parts)-1 && !parents {
			return tree.Node{}, at
		}
		var id graph.ID
		if i == 0 {
			id = ix.CreateRoot(part)
		} else {
			id = ix.NewDirectory(cur.ID, part)
		}
		n, ok := ix.Node(id)
		if !ok {
			return tree.Node{}, at
		}
		cur = n
	}
	return cur, ""
}

var newCmd = &cobra.Command{
	Use:   "new <type> <path>",
	Short: "Create an asset",
	Long: `Creates an asset of the given type at path. The last path component is
the asset name; the type's extension is added to it.

Examples:
  kiln new note main/readme
  kiln new texture main/art/brick --set title="Brick wall" --set size=256`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, p := args[0], strings.Trim(args[1], "/")
		dir, name := path.Split(p)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" {
			return handleErrorMsg(ErrInvalidInput, "assets live under a root: use <root>/<name>", "")
		}
		sets, err := parseSets(newSetFlags)
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}

		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		if v.Registry().Type(typeName) == nil {
			return handleErrorMsg(ErrTypeNotFound, fmt.Sprintf("unknown type %q", typeName), "Run 'kiln types' to list types")
		}
		if t := v.Registry().Type(typeName); t.Extension != "" {
			name = strings.TrimSuffix(name, "."+t.Extension)
		}
		parent, err := resolveNode(v, dir)
		if err != nil {
			return err
		}
		if parent.Kind == tree.KindAsset {
			return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("%s is an asset", parent.Path), "")
		}

		id, err := v.CreateAsset(parent.ID, typeName, name)
		if err != nil {
			return fail(err)
		}
		for _, s := range sets {
			if err := v.SetField(id, s[0], s[1]); err != nil {
				return handleError(errorCodeOr(err, ErrInvalidInput), err, "")
			}
		}
		n, _ := v.Node(id)
		return commit(v, editResult{Path: n.Path, Kind: n.Kind.String()}, fmt.Sprintf("Created %s %s", typeName, ui.FilePath(n.Path)))
	},
}

var setCmd = &cobra.Command{
	Use:   "set <path> <field=value>...",
	Short: "Set payload fields of an asset",
	Long: `Sets value fields of an asset's payload. Values use the resource text
syntax; unquoted strings are taken literally.

Examples:
  kiln set main/art/brick.tex size=512 'tint={r: 1, g: 0.5, b: 0}'
  kiln set main/readme.note 'tags=[draft, todo]'`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, err := parseSets(args[1:])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		n, err := resolveNode(v, args[0])
		if err != nil {
			return err
		}
		if n.Kind != tree.KindAsset {
			return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("%s is a %s, not an asset", n.Path, n.Kind), "")
		}
		for _, s := range sets {
			if err := v.SetField(n.ID, s[0], s[1]); err != nil {
				return handleError(errorCodeOr(err, ErrInvalidInput), err, "")
			}
		}
		return commit(v, editResult{Path: n.Path, Kind: n.Kind.String()}, fmt.Sprintf("Updated %s", ui.FilePath(n.Path)))
	},
}

func parseSets(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, a := range args {
		k, val, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected field=value, got %q", a)
		}
		out = append(out, [2]string{strings.TrimSpace(k), val})
	}
	return out, nil
}

var mvCmd = &cobra.Command{
	Use:   "mv <path> <target>",
	Short: "Move a directory or asset",
	Long: `Moves a directory or asset, with everything below it, into target (a root
or directory). Moving into another root moves the whole subtree's membership.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		n, err := resolveNode(v, args[0])
		if err != nil {
			return err
		}
		target, err := resolveNode(v, args[1])
		if err != nil {
			return err
		}

		var moved tree.Node
		var ok bool
		_ = v.Update(func(ix *tree.Index) error {
			if ok = ix.Move(target.ID, n.ID); ok {
				moved, _ = ix.Node(n.ID)
			}
			return nil
		})
		if !ok {
			return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("cannot move %s into %s", n.Path, target.Path),
				"Roots cannot move, and a node cannot move into itself, its own subtree or its current parent")
		}
		return commit(v, editResult{Path: moved.Path, OldPath: n.Path, Kind: moved.Kind.String()},
			fmt.Sprintf("Moved %s to %s", n.Path, ui.FilePath(moved.Path)))
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <name>",
	Short: "Rename a root, directory or asset",
	Long: `Renames a node. Asset extensions are kept. A name taken by a sibling gets
a numeric suffix; a name taken by another root is refused.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		n, err := resolveNode(v, args[0])
		if err != nil {
			return err
		}
		name := args[1]
		if n.Kind == tree.KindAsset {
			if ext := path.Ext(n.Name); ext != "" {
				name = strings.TrimSuffix(name, ext)
			}
		}

		var renamed tree.Node
		var ok bool
		_ = v.Update(func(ix *tree.Index) error {
			if ok = ix.Rename(n.ID, name); ok {
				renamed, _ = ix.Node(n.ID)
			}
			return nil
		})
		if !ok {
			return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("cannot rename %s to %q", n.Path, args[1]),
				"The name may be empty, unchanged, or taken by another root")
		}
		return commit(v, editResult{Path: renamed.Path, OldPath: n.Path, Kind: renamed.Kind.String()},
			fmt.Sprintf("Renamed %s to %s", n.Path, ui.FilePath(renamed.Path)))
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a node and everything below it",
	Long: `Deletes a root, directory or asset with its whole subtree and removes
their files. The catalog keeps a tombstone for every deleted object.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		n, err := resolveNode(v, args[0])
		if err != nil {
			return err
		}
		var removed []graph.ID
		_ = v.Update(func(ix *tree.Index) error {
			removed = ix.Delete(n.ID)
			return nil
		})
		return commit(v, editResult{Path: n.Path, Kind: n.Kind.String()},
			fmt.Sprintf("Deleted %s %s", n.Path, ui.Count(len(removed), "object")))
	},
}

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParentsFlag, "parents", "p", false, "Create missing parent directories")
	newCmd.Flags().StringArrayVar(&newSetFlags, "set", nil, "Set a payload field (field=value, repeatable)")
	rootCmd.AddCommand(mkdirCmd, newCmd, setCmd, mvCmd, renameCmd, rmCmd)
}
