package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("maxConcurrentSessions: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	initial, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	p := NewProvider(initial)

	stop := make(chan struct{})
	defer close(stop)
	if err := Watch(p, path, stop); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("maxConcurrentSessions: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.Get().MaxConcurrentSessions != 7 {
		if time.Now().After(deadline) {
			t.Fatalf("config never reloaded, still %+v", p.Get())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestWatch_KeepsPreviousOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("maxConcurrentSessions: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewProvider(Session{MaxConcurrentSessions: 10, InactivityTimeoutMs: 60_000, ReplayBufferSize: 256})

	stop := make(chan struct{})
	defer close(stop)
	if err := Watch(p, path, stop); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("maxConcurrentSessions: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Give the debounce window time to fire, then confirm nothing changed.
	time.Sleep(debounceInterval + 500*time.Millisecond)
	if got := p.Get().MaxConcurrentSessions; got != 10 {
		t.Errorf("expected previous config retained, got %d", got)
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	p := NewProvider(Default())
	stop := make(chan struct{})
	defer close(stop)

	if err := Watch(p, "/nonexistent/dir/config.yaml", stop); err == nil {
		t.Fatal("expected error for unwatchable directory")
	}
}
