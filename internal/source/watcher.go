package source

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long a new file must stay unchanged before it is
// reported.
const DefaultSettleDelay = 2 * time.Second

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.settle = d
	}
}

// Watcher reports log files that appear in the finder's directory.
type Watcher struct {
	finder *Finder
	settle time.Duration
	logger logger.ILogger
}

// NewWatcher creates a watcher over the directory of finder.
func NewWatcher(finder *Finder, log logger.ILogger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		finder: finder,
		settle: DefaultSettleDelay,
		logger: log.SubLogger("Watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches the directory and sends each new matching file on out once
// writes to it have stopped for the settle delay. It closes out on return.
func (w *Watcher) Start(ctx context.Context, out chan<- LogFile) error {
	defer close(out)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating dir watcher: %w", err)
	}
	defer fsw.Close()

	dir := w.finder.Dir()
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching dir %q: %w", dir, err)
	}
	w.logger.Infof("watching for new logs dir=%s", dir)

	return w.loop(ctx, fsw.Events, fsw.Errors, out)
}

// loop debounces directory events until ctx is cancelled or the event
// channels close.
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, out chan<- LogFile) error {
	pending := make(map[string]*time.Timer)
	ready := make(chan string)
	// done releases timers that fired after loop returned.
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, ok := w.finder.Match(event.Name); !ok {
				continue
			}

			path := filepath.Clean(event.Name)
			if t, ok := pending[path]; ok {
				t.Reset(w.settle)
				continue
			}
			pending[path] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- path:
				case <-done:
				}
			})

		case path := <-ready:
			if _, ok := pending[path]; !ok {
				continue
			}
			delete(pending, path)
			date, _ := w.finder.Match(path)
			w.logger.Debugf("new log settled path=%s", path)
			select {
			case out <- LogFile{Path: path, Date: date}:
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warningf("dir watcher error: %v", err)
		}
	}
}
