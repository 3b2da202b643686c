package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/catalog"
	"github.com/aidanlsb/kiln/internal/config"
	"github.com/aidanlsb/kiln/internal/schema"
	"github.com/aidanlsb/kiln/internal/ui"
	"github.com/aidanlsb/kiln/internal/vault"
)

var initRootFlag string

type initResult struct {
	Path          string `json:"path"`
	CreatedConfig bool   `json:"created_config"`
	CreatedTypes  bool   `json:"created_types"`
	Gitignore     string `json:"gitignore"`
	Root          string `json:"root,omitempty"`
}

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Initialize a new vault",
	Long: `Creates a new vault at the specified path with default configuration files.

Creates:
  - kiln.toml   (vault configuration)
  - types.yaml  (asset types and structs)
  - .kiln/      (catalog and stream buffers)
  - .gitignore  (ignores the rebuildable catalog)

Existing files are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		res := initResult{Path: path}

		_, statErr := os.Stat(filepath.Join(path, config.FileName))
		res.CreatedConfig = os.IsNotExist(statErr)
		_, statErr = os.Stat(filepath.Join(path, schema.FileName))
		res.CreatedTypes = os.IsNotExist(statErr)

		v, err := vault.Init(path, vault.Options{Logger: commandLogger()})
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}
		defer v.Close()

		res.Gitignore, err = ensureGitignore(path)
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}

		if name := strings.TrimSpace(initRootFlag); name != "" {
			id := v.AddRoot(name)
			if _, err := v.Save(); err != nil {
				return handleError(ErrFileWriteError, err, "")
			}
			if n, ok := v.Node(id); ok {
				res.Root = n.Name
			}
		}

		if isJSONOutput() {
			outputSuccess(res, nil)
			return nil
		}

		fmt.Printf("Initializing vault at: %s\n", ui.FilePath(path))
		report := func(created bool, name, what string) {
			if created {
				fmt.Println(ui.Successf("Created %s (%s)", name, what))
			} else {
				fmt.Printf("• %s already exists (kept)\n", name)
			}
		}
		report(res.CreatedConfig, config.FileName, "vault configuration")
		report(res.CreatedTypes, schema.FileName, "asset types")
		fmt.Println(ui.Successf("Ensured %s/ directory exists", catalog.Dir))
		switch res.Gitignore {
		case "created":
			fmt.Println(ui.Success("Created .gitignore"))
		case "updated":
			fmt.Println(ui.Success("Updated .gitignore"))
		}
		if res.Root != "" {
			fmt.Println(ui.Successf("Created root %s", ui.FilePath(res.Root)))
		}
		return nil
	},
}

// ensureGitignore makes sure the catalog database is ignored. Stream
// buffers are not: they are the only copy of binary data.
func ensureGitignore(vaultPath string) (string, error) {
	path := filepath.Join(vaultPath, ".gitignore")
	entry := catalog.Dir + "/" + catalog.FileName + "*"

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if strings.Contains(string(existing), entry) {
		return "kept", nil
	}

	status := "created"
	content := "# Kiln catalog (rebuilt from the vault on open)\n" + entry + "\n"
	if len(existing) > 0 {
		status = "updated"
		content = strings.TrimRight(string(existing), "\n") + "\n\n" + content
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return status, nil
}

func init() {
	initCmd.Flags().StringVar(&initRootFlag, "root", "", "Create and save a first root with this name")
	rootCmd.AddCommand(initCmd)
}
