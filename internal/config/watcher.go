package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// Watcher watches a project's kuzu-memory.yaml for changes and reloads the
// configuration on write, calling back with the freshly parsed value.
type Watcher struct {
	yamlPath string
	onReload func(types.Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a Watcher for yamlPath. onReload is called with the
// freshly loaded config each time the file changes; parse errors are logged
// and the previous configuration is left in place.
func NewWatcher(yamlPath string, onReload func(types.Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{yamlPath: yamlPath, onReload: onReload, logger: logger, done: make(chan struct{})}
}

// Start begins watching. Call Stop to clean up.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.yamlPath); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	go w.loop()
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.yamlPath)
			if err != nil {
				w.logger.Warn("config: reload failed, keeping previous configuration", "path", w.yamlPath, "error", err)
				continue
			}
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config: watcher error", "error", err)
		}
	}
}
