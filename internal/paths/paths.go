// Package paths resolves the on-disk layout of a huddle instance:
// ~/.huddle/instances/<name>/{huddle.db,admin.sock,LOCK,logs/,blobs/}.
package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns $HUDDLE_HOME, or ~/.huddle when unset.
func BaseDir() string {
	if dir := os.Getenv("HUDDLE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".huddle")
}

// Dir returns the instance directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// SocketPath returns the admin gRPC socket path.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "admin.sock")
}

func DBPath(name string) string {
	return filepath.Join(Dir(name), "huddle.db")
}

func BlobDir(name string) string {
	return filepath.Join(Dir(name), "blobs")
}

func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

func LogPath(name string) string {
	return filepath.Join(LogDir(name), "huddled.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name), BlobDir(name)} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
