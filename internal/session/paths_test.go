package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/dmsync/internal/config"
)

func TestDir(t *testing.T) {
	t.Setenv("DMSYNC_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".dmsync", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("DMSYNC_HOME", tmp)
	if got := BaseDir(); got != tmp {
		t.Errorf("BaseDir() = %q, want %q", got, tmp)
	}
	if got := BackendDBPath(DataDir("")); got != filepath.Join(tmp, "dmsync.db") {
		t.Errorf("BackendDBPath = %q, want under DMSYNC_HOME", got)
	}
}

func TestTokenPath(t *testing.T) {
	got := TokenPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "session.jwt")) {
		t.Errorf("TokenPath(test) = %q, want suffix sessions/test/session.jwt", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestDataDirOverride(t *testing.T) {
	if got := DataDir("/srv/dmsync"); got != "/srv/dmsync" {
		t.Errorf("DataDir = %q, want /srv/dmsync", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("DMSYNC_HOME", t.TempDir())

	if err := EnsureDir("alice"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("alice"), LogDir("alice")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
	}{
		{"flag wins", "work", &config.Config{DefaultSession: "home"}, "work"},
		{"config default", "", &config.Config{DefaultSession: "home"}, "home"},
		{"nil config", "", nil, DefaultSessionName},
		{"empty config", "", &config.Config{}, DefaultSessionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.flag, tt.cfg); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}
