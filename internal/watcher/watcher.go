// Package watcher turns filesystem change notifications on the extra storage
// paths into rescans. Bursts of events are coalesced into a single rescan.
package watcher

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/omaps-oss/resman/internal/utils"
)

const DefaultDebounce = 500 * time.Millisecond

// Bridge watches a set of directories and invokes onChange after the event
// stream has been quiet for the debounce window.
type Bridge struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	done     chan struct{}
}

func New(paths []string, debounce time.Duration, onChange func()) (*Bridge, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	b := &Bridge{
		fsw:      fsw,
		debounce: debounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go b.run()
	return b, nil
}

func (b *Bridge) run() {
	log := utils.GetLogger(context.Background(), "watcher")
	timer := time.NewTimer(b.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case _, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			if pending {
				if !timer.Stop() {
					<-timer.C
				}
			}
			timer.Reset(b.debounce)
			pending = true
		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("filesystem watcher error", "error", err)
		case <-timer.C:
			pending = false
			b.onChange()
		case <-b.done:
			return
		}
	}
}

// Close detaches from the filesystem and stops the event loop.
func (b *Bridge) Close() error {
	close(b.done)
	return b.fsw.Close()
}
