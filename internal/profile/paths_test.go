package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/config"
)

func TestDirHonorsHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("LOSTFOUND_HOME", base)

	got := Dir("main")
	want := filepath.Join(base, "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathSuffixes(t *testing.T) {
	tests := []struct {
		got    string
		suffix string
	}{
		{SocketPath("test"), filepath.Join("profiles", "test", "lfchatd.sock")},
		{LockPath("test"), filepath.Join("profiles", "test", "LOCK")},
		{CacheDBPath("test"), filepath.Join("profiles", "test", "cache.db")},
		{LogPath("test"), filepath.Join("profiles", "test", "logs", "lfchatd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.suffix) {
			t.Errorf("%q does not end with %q", tt.got, tt.suffix)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("LOSTFOUND_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("LOSTFOUND_HOME", t.TempDir())

	if got := Resolve("override"); got != "override" {
		t.Errorf("Resolve(override) = %q", got)
	}
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}

	cfg := config.Default()
	cfg.DefaultProfile = "finder"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "finder" {
		t.Errorf("Resolve() with config = %q, want finder", got)
	}
}
