package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	s := Default()
	if s.InactivityTimeoutMs != 60_000 {
		t.Errorf("expected 60s inactivity timeout, got %d", s.InactivityTimeoutMs)
	}
	if s.MaxConcurrentSessions != 20 {
		t.Errorf("expected 20 max sessions, got %d", s.MaxConcurrentSessions)
	}
	if !s.AutoResumeEnabled {
		t.Error("expected auto-resume on by default")
	}
	if s.ReplayBufferSize != 256 {
		t.Errorf("expected buffer size 256, got %d", s.ReplayBufferSize)
	}
}

func TestClamp(t *testing.T) {
	s := Session{
		InactivityTimeoutMs:   500,
		MaxConcurrentSessions: 9999,
		ReplayBufferSize:      1,
	}.Clamp()

	if s.InactivityTimeoutMs != MinInactivityTimeoutMs {
		t.Errorf("expected timeout clamped to %d, got %d", MinInactivityTimeoutMs, s.InactivityTimeoutMs)
	}
	if s.MaxConcurrentSessions != MaxConcurrentSessions {
		t.Errorf("expected sessions clamped to %d, got %d", MaxConcurrentSessions, s.MaxConcurrentSessions)
	}
	if s.ReplayBufferSize != MinReplayBufferSize {
		t.Errorf("expected buffer clamped to %d, got %d", MinReplayBufferSize, s.ReplayBufferSize)
	}

	inBounds := Default().Clamp()
	if inBounds != Default() {
		t.Errorf("in-bounds config must pass through unchanged, got %+v", inBounds)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "inactivityTimeoutMs: 120000\nmaxConcurrentSessions: 5\nautoResumeEnabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.InactivityTimeoutMs != 120_000 || s.MaxConcurrentSessions != 5 {
		t.Errorf("unexpected config %+v", s)
	}
	if s.AutoResumeEnabled {
		t.Error("expected auto-resume disabled")
	}
	// Fields absent from the file keep their defaults.
	if s.ReplayBufferSize != 256 {
		t.Errorf("expected default buffer size, got %d", s.ReplayBufferSize)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	s, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if s != Default() {
		t.Errorf("expected defaults on missing file, got %+v", s)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("inactivityTimeoutMs: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected error for malformed file")
	}
	if s != Default() {
		t.Errorf("expected defaults on parse error, got %+v", s)
	}
}

func TestProvider_UpdateClamps(t *testing.T) {
	p := NewProvider(Default())

	got := p.Update(Session{InactivityTimeoutMs: 1, MaxConcurrentSessions: 3, ReplayBufferSize: 64})
	if got.InactivityTimeoutMs != MinInactivityTimeoutMs {
		t.Errorf("expected clamped update, got %+v", got)
	}
	if p.Get() != got {
		t.Errorf("expected snapshot to match update result, got %+v", p.Get())
	}
}
