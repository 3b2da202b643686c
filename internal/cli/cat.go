package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/codec"
	"github.com/aidanlsb/kiln/internal/schema"
	"github.com/aidanlsb/kiln/internal/tree"
	"github.com/aidanlsb/kiln/internal/ui"
	"github.com/aidanlsb/kiln/internal/vault"
)

var (
	catRenderFlag bool
	catBufferFlag string
)

type catField struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

type catResult struct {
	Path   string     `json:"path"`
	Text   string     `json:"text,omitempty"`
	Fields []catField `json:"fields,omitempty"`
}

var catCmd = &cobra.Command{
	Use:   "cat <path|uuid>",
	Short: "Print the resource text of a node",
	Long: `Prints a node exactly as it would be saved. With --render, an asset's
payload fields are shown instead, with text fields rendered as markdown.
With --buffer, the raw contents of a stream field are written to stdout.`,
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

		if catBufferFlag != "" {
			return catBuffer(v, n, catBufferFlag)
		}
		if catRenderFlag {
			return catRendered(v, n)
		}

		data, err := v.Encode(n.ID)
		if err != nil {
			return fail(err)
		}
		if isJSONOutput() {
			outputSuccess(catResult{Path: n.Path, Text: string(data)}, nil)
			return nil
		}
		os.Stdout.Write(data)
		return nil
	},
}

func catBuffer(v *vault.Vault, n tree.Node, field string) error {
	if n.Kind != tree.KindAsset {
		return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("%s is not an asset", n.Path), "")
	}
	fields, err := v.Fields(n.ID)
	if err != nil {
		return fail(err)
	}
	for _, f := range fields {
		if f.Name != field {
			continue
		}
		if f.Kind != schema.KindStream {
			return handleErrorMsg(ErrTypeMismatch, fmt.Sprintf("field %s is %s, not stream", field, f.Kind), "")
		}
		buf, _ := f.Value.(uint64)
		if !f.Set || buf == 0 {
			return handleErrorMsg(ErrBufferNotFound, fmt.Sprintf("%s#%s has no buffer", n.Path, field), "Run 'kiln attach' to set one")
		}
		data, err := v.Buffer(buf)
		if err != nil {
			return fail(err)
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	return handleErrorMsg(ErrFieldNotFound, fmt.Sprintf("%s has no field %q", n.Path, field), "Run 'kiln types' to list fields")
}

func catRendered(v *vault.Vault, n tree.Node) error {
	if n.Kind != tree.KindAsset {
		return handleErrorMsg(ErrInvalidInput, fmt.Sprintf("%s is a %s; --render shows asset payloads", n.Path, n.Kind), "")
	}
	fields, err := v.Fields(n.ID)
	if err != nil {
		return fail(err)
	}

	res := catResult{Path: n.Path}
	for _, f := range fields {
		if !f.Set {
			continue
		}
		cf := catField{Name: f.Name, Kind: f.Kind.String()}
		switch f.Kind {
		case schema.KindValue:
			cf.Type = f.Type.String()
			if f.Type.Kind == schema.ValueText {
				cf.Value, _ = f.Value.(string)
				break
			}
			text, err := codec.WriteValue(f.Value, f.Type)
			if err != nil {
				return fail(err)
			}
			cf.Value = string(text)
		case schema.KindStream:
			cf.Value = fmt.Sprintf("%016x", f.Value)
		default:
			continue
		}
		res.Fields = append(res.Fields, cf)
	}

	if isJSONOutput() {
		outputSuccess(res, &Meta{Count: len(res.Fields)})
		return nil
	}

	fmt.Println(ui.Header(n.Path) + " " + ui.Hint(n.AssetType))
	tbl := ui.NewTable().ColumnStyle(0, ui.Muted)
	var texts []catField
	for _, f := range res.Fields {
		if f.Type == schema.Text.String() {
			texts = append(texts, f)
			continue
		}
		tbl.AddRow(f.Name, f.Value)
	}
	fmt.Print(tbl.String())

	width := ui.Stdout().TextWidth()
	for _, f := range texts {
		fmt.Println()
		fmt.Println(ui.Header(f.Name))
		out, err := ui.RenderMarkdown(f.Value, width)
		if err != nil {
			out = f.Value
		}
		fmt.Print(strings.TrimLeft(out, "\n"))
	}
	return nil
}

func init() {
	catCmd.Flags().BoolVar(&catRenderFlag, "render", false, "Show payload fields, rendering text fields as markdown")
	catCmd.Flags().StringVar(&catBufferFlag, "buffer", "", "Write the raw contents of this stream field")
	rootCmd.AddCommand(catCmd)
}
