package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/schema"
	"github.com/aidanlsb/kiln/internal/ui"
)

type typeField struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Type string `json:"type,omitempty"`
	Of   string `json:"of,omitempty"`
}

type typeInfo struct {
	Name      string      `json:"name"`
	Extension string      `json:"extension"`
	Data      bool        `json:"data,omitempty"`
	Fields    []typeField `json:"fields"`
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the asset types defined in types.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}
		defer v.Close()

		var infos []typeInfo
		for _, name := range v.Types() {
			infos = append(infos, describeType(v.Registry().Type(name)))
		}

		if isJSONOutput() {
			outputSuccess(infos, &Meta{Count: len(infos)})
			return nil
		}
		if len(infos) == 0 {
			fmt.Println(ui.Hint("No types defined. Add some to " + schema.FileName + "."))
			return nil
		}
		for i, t := range infos {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s %s\n", ui.Header(t.Name), ui.Hint("."+t.Extension))
			tbl := ui.NewTable().ColumnStyle(1, ui.Muted)
			for _, f := range t.Fields {
				desc := f.Type
				if desc == "" {
					desc = f.Kind
					if f.Of != "" {
						desc += " of " + f.Of
					}
				}
				tbl.AddRow("  "+f.Name, desc)
			}
			fmt.Print(tbl.String())
		}
		return nil
	},
}

func describeType(t *schema.Type) typeInfo {
	info := typeInfo{Name: t.Name, Extension: t.Extension, Data: t.Data, Fields: []typeField{}}
	for _, f := range t.Fields {
		tf := typeField{Name: f.Name, Kind: f.Kind.String(), Of: f.Of}
		if f.Kind == schema.KindValue {
			tf.Type = f.Value.String()
		}
		info.Fields = append(info.Fields, tf)
	}
	return info
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
