package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/logging"
	"github.com/aidanlsb/kiln/internal/ui"
	"github.com/aidanlsb/kiln/internal/vault"
	"github.com/aidanlsb/kiln/internal/watcher"
)

var watchSaveFlag bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload files as they change on disk",
	Long: `Keeps the vault open and reloads resource files whenever they are edited,
added or removed outside kiln. With --save, changes that reloading leaves
pending (such as a new file its root does not list yet) are saved after
each reload.

Logs go to stderr using the [log] settings in kiln.toml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getConfig()
		lc := c.Log
		if verboseFlag {
			lc.Level = "debug"
		}
		log := logging.New(lc, os.Stderr)

		v, err := vault.Open(resolvedVaultPath, vault.Options{Logger: log})
		if err != nil {
			return handleError(errorCode(err), err, "")
		}
		defer v.Close()

		w, err := watcher.New(watcher.Config{
			VaultPath:     v.Path(),
			Target:        v,
			DebounceDelay: c.Debounce(),
			Logger:        log,
			OnReload: func(path string, changed bool, err error) {
				if err != nil || !changed || !watchSaveFlag {
					return
				}
				if _, err := v.Save(); err != nil {
					log.Error("save failed", "error", err)
				}
			},
		})
		if err != nil {
			return handleError(ErrInternal, err, "")
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !isJSONOutput() {
			fmt.Fprintln(os.Stderr, ui.Infof("Watching %s (Ctrl+C to stop)", ui.FilePath(v.Path())))
		}
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return handleError(ErrInternal, err, "")
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchSaveFlag, "save", false, "Save pending changes after each reload")
	rootCmd.AddCommand(watchCmd)
}
