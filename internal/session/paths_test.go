package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".beacon", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "beacond.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/beacond.sock", got)
	}
}

func TestIdentityPath(t *testing.T) {
	got := IdentityPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "identity.key")) {
		t.Errorf("IdentityPath(test) = %q, want suffix sessions/test/identity.key", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}
