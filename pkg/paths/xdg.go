// Package paths provides XDG-compliant path resolution for wastenet.
//
// Resolution order:
// 1. WASTENET_HOME (portable root) → $WASTENET_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/wastenet
// 3. Platform defaults → ~/.config/wastenet, ~/.local/share/wastenet, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "wastenet"

// baseDir resolves one XDG base directory.
func baseDir(portable, xdgVar string, fallback ...string) string {
	if home := os.Getenv("WASTENET_HOME"); home != "" {
		return filepath.Join(home, portable)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, append(fallback, appName)...)...)
	}
	return ""
}

// ConfigDir returns the configuration directory.
// Used for the global wastenet.yml.
func ConfigDir() string {
	return baseDir("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir returns the data directory.
// Used for the bin database.
func DataDir() string {
	return baseDir("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the state directory.
// Used for the pid file and logs.
func StateDir() string {
	return baseDir("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("WASTENET_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "wastenetd.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "wastenetd.pid")
}

// DBPath returns the default bin database path.
func DBPath() string {
	return filepath.Join(DataDir(), "bins.db")
}

// LogDir returns the directory for daemon log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnsureDirs creates all wastenet directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), RuntimeDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
