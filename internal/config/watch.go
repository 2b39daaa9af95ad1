package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentdeck/internal/logger"
)

const debounceInterval = 500 * time.Millisecond

// Watch reloads the provider from path whenever the file changes, until
// stop is closed. Editors replace files rather than writing in place, so
// the parent directory is watched and events are debounced.
func Watch(p *Provider, path string, stop <-chan struct{}) error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(filepath.Dir(path)); err != nil {
		fsW.Close()
		return err
	}

	go watchLoop(p, path, fsW, stop)
	return nil
}

func watchLoop(p *Provider, path string, fsW *fsnotify.Watcher, stop <-chan struct{}) {
	defer fsW.Close()
	log := logger.WithComponent("config")

	var timer *time.Timer
	reload := func() {
		s, err := LoadFile(path)
		if err != nil {
			log.Warn("config reload failed, keeping previous", "error", err)
			return
		}
		p.Update(s)
		log.Info("config reloaded",
			"inactivityTimeoutMs", s.InactivityTimeoutMs,
			"maxConcurrentSessions", s.MaxConcurrentSessions)
	}

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-fsW.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, reload)

		case err, ok := <-fsW.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", "error", err)
		}
	}
}
