package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const wakeDebounce = 200 * time.Millisecond

// fileStamp identifies one version of the store file.
type fileStamp struct {
	mod  time.Time
	size int64
}

func statStamp(path string) (fileStamp, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{mod: fi.ModTime(), size: fi.Size()}, true
}

// noteOwnWrite remembers the version the loop just committed.
func (s *Service) noteOwnWrite() {
	st, ok := statStamp(s.repo.Path())
	s.ownMu.Lock()
	defer s.ownMu.Unlock()
	if ok {
		s.ownWrite = st
	} else {
		s.ownWrite = fileStamp{}
	}
}

// isOwnWrite reports whether the store file is still the version the loop
// committed last.
func (s *Service) isOwnWrite() bool {
	st, ok := statStamp(s.repo.Path())
	if !ok {
		return false
	}
	s.ownMu.Lock()
	defer s.ownMu.Unlock()
	return !s.ownWrite.mod.IsZero() && st.mod.Equal(s.ownWrite.mod) && st.size == s.ownWrite.size
}

// WatchStore wakes the loop shortly after the store file changes so edits
// made from the command line are picked up before the next tick. The
// directory is watched because saves replace the file by rename. Changes
// that are still the loop's own last commit do not wake it.
func (s *Service) WatchStore(ctx context.Context) error {
	path := s.repo.Path()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	var mu sync.Mutex
	var timer *time.Timer
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(wakeDebounce, func() {
			if s.isOwnWrite() {
				return
			}
			s.Wake()
		})
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					trigger()
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(werr).Msg("store watcher error")
			}
		}
	}()
	return nil
}
