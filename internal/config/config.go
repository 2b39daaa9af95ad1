// Package config holds the process-wide session configuration: loaded from
// a YAML file, clamped to safe bounds, hot-reloaded on file change, and
// read through an atomic snapshot so callers never see a half-applied
// update.
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Bounds for clamping, per field.
const (
	MinInactivityTimeoutMs = 10_000
	MaxInactivityTimeoutMs = 3_600_000
	MinConcurrentSessions  = 1
	MaxConcurrentSessions  = 50
	MinReplayBufferSize    = 16
	MaxReplayBufferSize    = 4096
)

// Session is the hot-reloadable session configuration.
type Session struct {
	InactivityTimeoutMs   int  `yaml:"inactivityTimeoutMs" json:"inactivityTimeoutMs"`
	MaxConcurrentSessions int  `yaml:"maxConcurrentSessions" json:"maxConcurrentSessions"`
	AutoResumeEnabled     bool `yaml:"autoResumeEnabled" json:"autoResumeEnabled"`
	ReplayBufferSize      int  `yaml:"replayBufferSize" json:"replayBufferSize"`
}

// Default returns the session config defaults.
func Default() Session {
	return Session{
		InactivityTimeoutMs:   60_000,
		MaxConcurrentSessions: 20,
		AutoResumeEnabled:     true,
		ReplayBufferSize:      256,
	}
}

// Clamp forces every field into its allowed bounds.
func (s Session) Clamp() Session {
	s.InactivityTimeoutMs = clamp(s.InactivityTimeoutMs, MinInactivityTimeoutMs, MaxInactivityTimeoutMs)
	s.MaxConcurrentSessions = clamp(s.MaxConcurrentSessions, MinConcurrentSessions, MaxConcurrentSessions)
	s.ReplayBufferSize = clamp(s.ReplayBufferSize, MinReplayBufferSize, MaxReplayBufferSize)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LoadFile reads a session config from a YAML file. Missing fields take
// their defaults; out-of-bounds values are clamped.
func LoadFile(path string) (Session, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return s.Clamp(), nil
}

// Provider hands out consistent snapshots of the current session config
// and accepts live updates.
type Provider struct {
	current atomic.Pointer[Session]
}

// NewProvider creates a provider seeded with s (clamped).
func NewProvider(s Session) *Provider {
	p := &Provider{}
	clamped := s.Clamp()
	p.current.Store(&clamped)
	return p
}

// Get returns the current config snapshot.
func (p *Provider) Get() Session {
	return *p.current.Load()
}

// Update replaces the current config, clamping first.
func (p *Provider) Update(s Session) Session {
	clamped := s.Clamp()
	p.current.Store(&clamped)
	return clamped
}
