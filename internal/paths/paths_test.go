package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/huddle/internal/config"
)

func TestLayout(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HUDDLE_HOME", base)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", Dir("main"), filepath.Join(base, "instances", "main")},
		{"socket", SocketPath("main"), filepath.Join(base, "instances", "main", "admin.sock")},
		{"db", DBPath("main"), filepath.Join(base, "instances", "main", "huddle.db")},
		{"blobs", BlobDir("main"), filepath.Join(base, "instances", "main", "blobs")},
		{"log", LogPath("main"), filepath.Join(base, "instances", "main", "logs", "huddled.log")},
		{"config", ConfigPath(), filepath.Join(base, "config.toml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBaseDirDefaultsToHome(t *testing.T) {
	t.Setenv("HUDDLE_HOME", "")
	home, _ := os.UserHomeDir()
	if got := BaseDir(); got != filepath.Join(home, ".huddle") {
		t.Errorf("BaseDir() = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("HUDDLE_HOME", t.TempDir())
	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, d := range []string{Dir("test"), LogDir("test"), BlobDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if perm := info.Mode().Perm(); perm != 0o700 {
			t.Errorf("%s permission = %o, want 700", d, perm)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("HUDDLE_HOME", t.TempDir())

	if got := Resolve("flagged"); got != "flagged" {
		t.Errorf("Resolve(flag) = %q", got)
	}
	if got := Resolve(""); got != DefaultInstance {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultInstance)
	}
	if err := config.Save(ConfigPath(), &config.Config{DefaultInstance: "work"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() with config = %q, want work", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "main", false},
		{"digits", "work123", false},
		{"hyphen and underscore", "my-inst_1", false},
		{"max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"dot", "a.b", true},
		{"slash", "a/b", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
