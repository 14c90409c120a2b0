package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the XDG subdirectories and the keyring service
const AppName = "dirctl"

// ConfigDir returns the XDG-compliant config directory for dirctl
// Typically ~/.config/dirctl/ on Linux
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigPath returns the full path to the config file
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json5")
}

// DataDir returns the XDG-compliant data directory for dirctl
// Typically ~/.local/share/dirctl/ on Linux
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultStorePath returns the default location of the credential document
func DefaultStorePath() string {
	return filepath.Join(DataDir(), "tokens.json")
}
