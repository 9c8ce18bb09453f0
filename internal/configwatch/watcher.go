// Package configwatch applies backend port changes from the config file to
// a running endpoint cache without a restart.
package configwatch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/mpcwatch/internal/config"
	"github.com/bft-labs/mpcwatch/pkg/discovery"
	"github.com/bft-labs/mpcwatch/pkg/log"
)

const DefaultDebounceDelay = 100 * time.Millisecond

// PortSetter receives the new backend port. *endpoint.Cache satisfies it.
type PortSetter interface {
	Set(port int) bool
}

// Watcher watches one TOML config file.
type Watcher struct {
	mu sync.Mutex

	path     string
	debounce time.Duration
	target   PortSetter
	logger   log.Logger

	timer  *time.Timer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for path. A non-positive debounce uses
// DefaultDebounceDelay.
func New(path string, target PortSetter, debounce time.Duration, logger log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounceDelay
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		target:   target,
		logger:   log.OrNoop(logger),
	}
}

// Start begins watching in the background. The directory is watched rather
// than the file so editors that replace the file are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(ctx, fw)

	w.logger.Info("config watcher started", log.String("path", w.path))
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload re-reads the file and applies a changed backend port.
func (w *Watcher) reload() {
	fc, err := config.LoadFileConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", log.String("path", w.path), log.Err(err))
		return
	}
	raw := strings.TrimSpace(fc.BackendPort)
	if raw == "" {
		return
	}
	port, err := discovery.ParsePort(raw)
	if err != nil {
		w.logger.Warn("ignoring invalid backend_port in config", log.String("value", raw), log.Err(err))
		return
	}
	if w.target.Set(port) {
		w.logger.Info("backend port reloaded from config", log.Port("port", port))
	}
}
