package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/tree"
	"github.com/aidanlsb/kiln/internal/ui"
)

var (
	treeDepthFlag int
	treeIDsFlag   bool
)

type treeEntry struct {
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	Kind      string      `json:"kind"`
	AssetType string      `json:"asset_type,omitempty"`
	UUID      string      `json:"uuid,omitempty"`
	Unsaved   bool        `json:"unsaved,omitempty"`
	Children  []treeEntry `json:"children,omitempty"`
}

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Show the vault tree",
	Long: `Shows roots, directories and assets as a tree. With a path, only that
subtree is shown. Unsaved nodes are marked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		var entries []treeEntry
		var notFound string
		_ = v.View(func(ix *tree.Index) error {
			var top []tree.Node
			if len(args) == 1 {
				n, ok := ix.Find(args[0])
				if !ok {
					notFound = args[0]
					return nil
				}
				top = []tree.Node{n}
			} else {
				top = ix.Roots()
			}
			for _, n := range top {
				entries = append(entries, buildTreeEntry(ix, n, 0))
			}
			return nil
		})
		if notFound != "" {
			return handleErrorMsg(ErrObjectNotFound, fmt.Sprintf("no node at %s", notFound), "Run 'kiln tree' to see the vault")
		}

		if isJSONOutput() {
			outputSuccessWithWarnings(entries, loadWarnings(v), &Meta{Count: countEntries(entries)})
			return nil
		}
		printWarnings(v)
		if len(entries) == 0 {
			fmt.Println(ui.Hint("Empty vault. Create a root with 'kiln mkdir <name>'."))
			return nil
		}
		fmt.Print(ui.RenderTree(treeItems(entries)))
		return nil
	},
}

func buildTreeEntry(ix *tree.Index, n tree.Node, depth int) treeEntry {
	e := treeEntry{
		Name:      n.Name,
		Path:      n.Path,
		Kind:      n.Kind.String(),
		AssetType: n.AssetType,
		Unsaved:   n.Updated,
	}
	if treeIDsFlag {
		e.UUID = stableID(ix, n.ID)
	}
	if treeDepthFlag > 0 && depth >= treeDepthFlag {
		return e
	}
	for _, c := range ix.Children(n.ID) {
		e.Children = append(e.Children, buildTreeEntry(ix, c, depth+1))
	}
	return e
}

func stableID(ix *tree.Index, id graph.ID) string {
	return ix.Store().StableID(id).String()
}

func treeItems(entries []treeEntry) []ui.TreeItem {
	out := make([]ui.TreeItem, 0, len(entries))
	for _, e := range entries {
		it := ui.TreeItem{Label: e.Name, Detail: strings.TrimSpace(e.AssetType + " " + e.UUID), Children: treeItems(e.Children)}
		if e.Unsaved {
			it.Label += " " + ui.SymbolPending
		}
		out = append(out, it)
	}
	return out
}

func countEntries(entries []treeEntry) int {
	n := len(entries)
	for _, e := range entries {
		n += countEntries(e.Children)
	}
	return n
}

func init() {
	treeCmd.Flags().IntVar(&treeDepthFlag, "depth", 0, "Limit the depth shown (0 = unlimited)")
	treeCmd.Flags().BoolVar(&treeIDsFlag, "ids", false, "Show stable ids")
	rootCmd.AddCommand(treeCmd)
}
