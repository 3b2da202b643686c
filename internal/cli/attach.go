package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/tree"
	"github.com/aidanlsb/kiln/internal/ui"
)

type attachResult struct {
	Path    string   `json:"path"`
	Field   string   `json:"field"`
	Buffer  string   `json:"buffer"`
	Bytes   int      `json:"bytes"`
	Written []string `json:"written"`
}

var attachCmd = &cobra.Command{
	Use:   "attach <asset> <field> <file|->",
	Short: "Store binary data in a stream field",
	Long: `Reads a file (or stdin with "-") into the buffer store and points the
asset's stream field at it. Buffers are content addressed, so attaching the
same data twice stores it once.

Example:
  kiln attach main/art/brick.tex pixels brick.raw`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if args[2] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[2])
		}
		if err != nil {
			return handleError(ErrFileReadError, err, "")
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
		buf, err := v.Attach(n.ID, args[1], data)
		if err != nil {
			return handleError(errorCodeOr(err, ErrFieldNotFound), err, "")
		}
		saved, err := v.Save()
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}

		res := attachResult{
			Path:    n.Path,
			Field:   args[1],
			Buffer:  fmt.Sprintf("%016x", buf),
			Bytes:   len(data),
			Written: saved.Written,
		}
		if isJSONOutput() {
			outputSuccess(res, nil)
			return nil
		}
		fmt.Println(ui.Successf("Attached %d bytes to %s#%s %s", res.Bytes, ui.FilePath(n.Path), res.Field, ui.Hint(res.Buffer)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
