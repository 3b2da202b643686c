package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/ui"
	"github.com/aidanlsb/kiln/internal/vault"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write pending changes to disk",
	Long: `Writes every object that changed since it was loaded. Opening a vault can
leave changes pending, for example when an asset file was added by hand and
its root does not list it yet.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		res, err := v.Save()
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}
		if isJSONOutput() {
			outputSuccessWithWarnings(res, loadWarnings(v), &Meta{Count: len(res.Written)})
			return nil
		}
		printWarnings(v)
		if len(res.Written) == 0 && len(res.Removed) == 0 {
			fmt.Println(ui.Hint("Nothing to save."))
			return nil
		}
		for _, p := range res.Written {
			fmt.Printf("  wrote   %s\n", ui.FilePath(p))
		}
		for _, p := range res.Removed {
			fmt.Printf("  removed %s\n", ui.Hint(p))
		}
		fmt.Println(ui.Successf("Saved %s", ui.Count(len(res.Written), "file")))
		return nil
	},
}

type statusResult struct {
	Pending        []vault.Change `json:"pending"`
	StaleFiles     []string       `json:"stale_files,omitempty"`
	MissingFiles   []string       `json:"missing_files,omitempty"`
	MissingBuffers []string       `json:"missing_buffers,omitempty"`
	Objects        int            `json:"objects"`
	Tombstones     int            `json:"tombstones"`
	Clean          bool           `json:"clean"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unsaved changes and vault health",
	Long: `Shows what 'kiln save' would write, saved files that changed or vanished on
disk, stream fields whose buffer is missing, and files that failed to load.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		st, err := v.Status()
		if err != nil {
			return handleError(ErrDatabaseError, err, "")
		}
		stats, _, err := v.Stats()
		if err != nil {
			return handleError(ErrDatabaseError, err, "")
		}

		res := statusResult{
			Pending:        st.Pending,
			MissingBuffers: st.MissingBuffers,
			Objects:        stats.ObjectCount,
			Tombstones:     stats.TombstoneCount,
			Clean:          st.Clean(),
		}
		if res.Pending == nil {
			res.Pending = []vault.Change{}
		}
		if st.Disk != nil {
			res.StaleFiles = st.Disk.StaleFiles
			res.MissingFiles = st.Disk.MissingFiles
		}

		if isJSONOutput() {
			outputSuccessWithWarnings(res, loadWarnings(v), &Meta{Count: len(res.Pending)})
			return nil
		}
		printWarnings(v)

		fmt.Printf("%s %s\n", ui.Header("Vault"), ui.FilePath(v.Path()))
		fmt.Printf("%d saved objects, %d tombstones\n", res.Objects, res.Tombstones)
		if res.Clean {
			fmt.Println(ui.Success("Everything saved"))
			return nil
		}

		if len(res.Pending) > 0 {
			fmt.Println()
			fmt.Println(ui.Header("Unsaved changes"))
			tbl := ui.NewTable().ColumnStyle(0, ui.Muted)
			for _, c := range res.Pending {
				p := ui.FilePath(c.Path)
				if c.OldPath != "" {
					p = c.OldPath + " → " + p
				}
				tbl.AddRow(c.Change, c.Kind, p)
			}
			fmt.Print(tbl.String())
		}
		printList("Changed on disk", res.StaleFiles)
		printList("Missing on disk", res.MissingFiles)
		printList("Missing buffers", res.MissingBuffers)
		return nil
	},
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(ui.Header(title))
	for _, it := range items {
		fmt.Printf("  %s\n", ui.FilePath(it))
	}
}

func init() {
	rootCmd.AddCommand(saveCmd, statusCmd)
}
