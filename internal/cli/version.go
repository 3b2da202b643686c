package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/buildinfo"
	"github.com/aidanlsb/kiln/internal/catalog"
	"github.com/aidanlsb/kiln/internal/ui"
)

// storageModules are the engines whose versions decide what a vault's
// private .kiln folder can be read by.
var storageModules = map[string]string{
	"modernc.org/sqlite":            "catalog",
	"github.com/dgraph-io/badger/v4": "buffers",
}

type versionInfo struct {
	Version  string            `json:"version"`
	Commit   string            `json:"commit,omitempty"`
	Built    string            `json:"built,omitempty"`
	Dirty    bool              `json:"dirty,omitempty"`
	Go       string            `json:"go"`
	Platform string            `json:"platform"`
	Catalog  int               `json:"catalog_schema"`
	Storage  map[string]string `json:"storage,omitempty"`
}

var readBuildInfo = debug.ReadBuildInfo

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show kiln version, catalog schema and storage engines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bi, _ := readBuildInfo()
		info := readVersion(bi)

		if isJSONOutput() {
			outputSuccess(info, nil)
			return nil
		}

		fmt.Printf("%s %s\n", ui.Bold.Render("kiln"), info.Version)
		tbl := ui.NewTable().ColumnStyle(0, ui.Muted)
		if info.Commit != "" {
			commit := shortCommit(info.Commit)
			if info.Dirty {
				commit += " (dirty)"
			}
			tbl.AddRow("commit", commit)
		}
		if info.Built != "" {
			tbl.AddRow("built", info.Built)
		}
		tbl.AddRow("go", info.Go+" "+info.Platform)
		tbl.AddRow("catalog", fmt.Sprintf("schema v%d", info.Catalog))
		for _, role := range []string{"catalog", "buffers"} {
			if v, ok := info.Storage[role]; ok {
				tbl.AddRow(role+" engine", v)
			}
		}
		fmt.Print(tbl.String())
		return nil
	},
}

// readVersion assembles version details from the binary's build info, with
// values stamped into buildinfo filling what the build info lacks. bi may
// be nil.
func readVersion(bi *debug.BuildInfo) versionInfo {
	info := versionInfo{
		Version:  "devel",
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Catalog:  catalog.CurrentVersion,
	}

	if bi != nil {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
		if bi.GoVersion != "" {
			info.Go = bi.GoVersion
		}
		settings := make(map[string]string, len(bi.Settings))
		for _, s := range bi.Settings {
			settings[s.Key] = s.Value
		}
		if goos, goarch := settings["GOOS"], settings["GOARCH"]; goos != "" && goarch != "" {
			info.Platform = goos + "/" + goarch
		}
		info.Commit = settings["vcs.revision"]
		info.Built = settings["vcs.time"]
		info.Dirty = settings["vcs.modified"] == "true"

		for _, dep := range bi.Deps {
			role, ok := storageModules[dep.Path]
			if !ok {
				continue
			}
			if info.Storage == nil {
				info.Storage = make(map[string]string)
			}
			info.Storage[role] = dep.Path + " " + dep.Version
		}
	}

	if info.Version == "devel" && buildinfo.Version != "" {
		info.Version = buildinfo.Version
	}
	if info.Commit == "" {
		info.Commit = buildinfo.Commit
	}
	if info.Built == "" {
		info.Built = buildinfo.Date
	}
	return info
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
