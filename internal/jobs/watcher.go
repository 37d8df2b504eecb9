package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/bnema/spin-accounts-cli/internal/log"
	"github.com/bnema/spin-accounts-cli/internal/metrics"
)

const (
	defaultDebounce   = 500 * time.Millisecond
	credentialPattern = ".session"
)

// Reloader re-reads the credential directory; *application.Runtime is one.
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// SessionWatcher reloads the session pool when credential files appear,
// change or disappear. Bursts of events collapse into one reload.
type SessionWatcher struct {
	dir      string
	reloader Reloader
	debounce time.Duration
	logger   zerolog.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	done    chan struct{}
}

func NewSessionWatcher(dir string, reloader Reloader, debounce time.Duration) *SessionWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &SessionWatcher{
		dir:      dir,
		reloader: reloader,
		debounce: debounce,
		logger:   log.WithComponent("session_watcher"),
		done:     make(chan struct{}),
	}
}

// Start begins watching; the watch ends when ctx is cancelled.
func (w *SessionWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch directory %s: %w", w.dir, err)
	}
	w.watcher = watcher

	w.logger.Info().Str("dir", w.dir).Msg("watching credential directory")
	go w.loop(ctx)

	return nil
}

// Done is closed once the watch loop has exited.
func (w *SessionWatcher) Done() <-chan struct{} {
	return w.done
}

func (w *SessionWatcher) loop(ctx context.Context) {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("credential watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isCredentialEvent(event) {
				continue
			}
			w.logger.Debug().Str("file", filepath.Base(event.Name)).Str("op", event.Op.String()).Msg("credential file changed")
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("credential watcher error")
		}
	}
}

func (w *SessionWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload(ctx)
	})
}

func (w *SessionWatcher) reload(ctx context.Context) {
	metrics.RecordSessionReload()
	loaded, err := w.reloader.Reload(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("reload credentials failed")
		return
	}
	w.logger.Info().Int("accounts", loaded).Msg("credentials reloaded")
}

func isCredentialEvent(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, credentialPattern) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
