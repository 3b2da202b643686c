package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/config"
	"github.com/aidanlsb/kiln/internal/logging"
	"github.com/aidanlsb/kiln/internal/ui"
	"github.com/aidanlsb/kiln/internal/vault"
)

var (
	// Global flags
	vaultFlag   string // vault path, or a name from the global config
	verboseFlag bool

	// Resolved values
	resolvedVaultPath string
	cfg               *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln - a tree of typed assets stored as text",
	Long: `Kiln keeps a tree of roots, directories and typed assets in a vault
directory. Every object is a plain-text resource file stored at its tree
path, binary stream data lives in a compressed buffer store, and a catalog
remembers what was saved where.

Edits are applied to the in-memory object graph and written on save.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip vault resolution for commands that don't need it
		switch cmd.Name() {
		case "init", "completion", "help", "version":
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "completion" {
			return nil
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		resolvedVaultPath, err = config.ResolveVault(vaultFlag, cwd)
		if err != nil {
			return handleError(ErrVaultNotSpecified, err, "Run 'kiln init <path>' to create a vault")
		}

		cfg, err = config.Load(resolvedVaultPath)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}
		ui.ConfigureTheme(cfg.UI.Accent)
		ui.ConfigureMarkdownCodeTheme(cfg.UI.CodeTheme)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&vaultFlag, "vault", "v", "", "Vault path, or a vault name from the global config")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Log vault activity to stderr")
}

// getConfig returns the loaded vault config.
func getConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

// commandLogger logs to stderr in the vault's configured format. One-shot
// commands only show warnings unless --verbose is set.
func commandLogger() *slog.Logger {
	lc := getConfig().Log
	if verboseFlag {
		lc.Level = "debug"
	} else if logging.ParseLevel(lc.Level) < slog.LevelWarn {
		lc.Level = "warn"
	}
	return logging.New(lc, os.Stderr)
}

// openVault opens the resolved vault. Callers must Close it.
func openVault() (*vault.Vault, error) {
	if resolvedVaultPath == "" {
		return nil, handleErrorMsg(ErrVaultNotSpecified, "no vault selected", "Pass --vault <path>")
	}
	v, err := vault.Open(resolvedVaultPath, vault.Options{Logger: commandLogger()})
	if err != nil {
		return nil, handleError(errorCode(err), err, fmt.Sprintf("Run 'kiln init %s' to create it", resolvedVaultPath))
	}
	return v, nil
}

// loadWarnings converts vault load warnings for the JSON envelope.
func loadWarnings(v *vault.Vault) []Warning {
	var out []Warning
	for _, w := range v.Warnings() {
		code := ErrFileReadError
		if errors.Is(w.Err, vault.ErrMissingFile) {
			code = ErrFileMissing
		}
		out = append(out, Warning{Code: code, Message: w.Err.Error(), Path: w.Path})
	}
	return out
}

// printWarnings writes load warnings to stderr in text mode.
func printWarnings(v *vault.Vault) {
	for _, w := range v.Warnings() {
		fmt.Fprintln(os.Stderr, ui.Warningf("%s: %v", w.Path, w.Err))
	}
}
