package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.beacon.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".beacon")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the daemon's UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "beacond.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// IdentityPath returns the mesh identity key file for a session.
func IdentityPath(name string) string {
	return filepath.Join(Dir(name), "identity.key")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "beacond.log")
}

// MeshLogPath returns the dep2p node log file path.
func MeshLogPath(name string) string {
	return filepath.Join(LogDir(name), "mesh.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
