// Package paths provides sudo-aware path resolution for embress.
//
// When running with sudo, these functions resolve to the original user's
// directories (via SUDO_USER) instead of root's.
package paths

import (
	"os"
	"os/user"
	"path/filepath"
)

// UserHomeDir returns the home directory of the actual user.
// If running with sudo, returns the SUDO_USER's home directory, not root's.
func UserHomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
		u, err := user.Lookup(sudoUser)
		if err == nil {
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

// UserConfigDir returns ~/.config for the actual user.
func UserConfigDir() (string, error) {
	homeDir, err := UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config"), nil
}

// AppDir returns the embress config directory (~/.config/embress).
// EMBRESS_HOME overrides it.
func AppDir() (string, error) {
	if dir := os.Getenv("EMBRESS_HOME"); dir != "" {
		return dir, nil
	}
	configDir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "embress"), nil
}

// DatabasePath returns the path to the change-record database.
func DatabasePath() (string, error) {
	return inAppDir("embress.db")
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	return inAppDir("config.toml")
}

// ActivityDir returns the directory holding daily JSONL audit files.
func ActivityDir() (string, error) {
	return inAppDir("activity")
}

// LogPath returns the default log file location.
func LogPath() (string, error) {
	return inAppDir(filepath.Join("logs", "embress.log"))
}

func inAppDir(name string) (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
