package gateway

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader watches the config file and re-applies it on change.
type Reloader struct {
	watcher *fsnotify.Watcher
	gateway *Gateway
	path    string
	log     *zap.Logger
}

// NewReloader creates a file watcher for the config path.
func NewReloader(g *Gateway, path string, log *zap.Logger) (*Reloader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("gateway: cannot watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("gateway: create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("gateway: watch %q: %w", path, err)
	}

	return &Reloader{watcher: watcher, gateway: g, path: path, log: log}, nil
}

// Run watches for config changes and reloads. Blocks until ctx is
// cancelled. Writes are debounced 500ms so editors that write in bursts
// trigger one reload.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.log.Error("hot-reload failed", zap.String("path", r.path), zap.Error(err))
		return
	}
	r.gateway.Reload(cfg)
}
