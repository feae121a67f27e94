package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.dmsync, or $DMSYNC_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("DMSYNC_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dmsync")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// TokenPath returns where the signed-in session token is kept.
func TokenPath(name string) string {
	return filepath.Join(Dir(name), "session.jwt")
}

// DataDir returns the directory of the shared backend database. An empty
// override selects the base directory, so every session on the machine
// talks to the same store.
func DataDir(override string) string {
	if override != "" {
		return override
	}
	return BaseDir()
}

// BackendDBPath returns the shared sqlite backend path.
func BackendDBPath(dataDir string) string {
	return filepath.Join(dataDir, "dmsync.db")
}

// SecretPath returns the generated token signing key path.
func SecretPath(dataDir string) string {
	return filepath.Join(dataDir, "token.key")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "dmsync.log")
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
