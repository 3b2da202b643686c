package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvVault names the environment variable that selects a vault.
const EnvVault = "KILN_VAULT"

// Global represents the machine-wide kiln configuration.
type Global struct {
	// DefaultVault is the name of the default vault (from Vaults map).
	DefaultVault string `toml:"default_vault"`

	// Vaults is a map of vault names to paths.
	Vaults map[string]string `toml:"vaults"`
}

// GetVaultPath returns the path for a named vault.
// If name is empty, returns the default vault path.
func (g *Global) GetVaultPath(name string) (string, error) {
	if name == "" {
		name = g.DefaultVault
	}
	if name == "" {
		return "", fmt.Errorf("no default vault configured")
	}
	if path, ok := g.Vaults[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("vault '%s' not found in config", name)
}

// LoadGlobal loads the global configuration from the default location.
// Returns an empty config if the file doesn't exist.
func LoadGlobal() (*Global, error) {
	path := GlobalPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Global{}, nil
	}
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &g, nil
}

// GlobalPath returns the global config file path.
// Checks ~/.config/kiln/config.toml first (XDG style),
// then falls back to OS-specific location.
func GlobalPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "kiln", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "kiln", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// ResolveVault picks the vault directory to operate on. In order: an
// explicit flag value (a path, or a vault name from the global config),
// $KILN_VAULT, the global default vault, and finally the nearest directory
// at or above cwd that contains kiln.toml.
func ResolveVault(flag, cwd string) (string, error) {
	if v := strings.TrimSpace(flag); v != "" {
		if isDir(v) {
			return filepath.Abs(v)
		}
		g, err := LoadGlobal()
		if err != nil {
			return "", err
		}
		return g.GetVaultPath(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvVault)); v != "" {
		return filepath.Abs(v)
	}
	if g, err := LoadGlobal(); err == nil && g.DefaultVault != "" {
		return g.GetVaultPath("")
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("no vault found: pass --vault, set %s, or run inside a vault", EnvVault)
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
