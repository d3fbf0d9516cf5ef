package config

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the override table whenever the config file changes on
// disk. The rest of the file is only read at startup.
type Watcher struct {
	cfg  *Config
	path string

	// OnReload is called after a successful reload.
	OnReload func(*Config)
	LogFunc  func(format string, args ...any)

	fw       *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWatcher(cfg *Config, path string) *Watcher {
	return &Watcher{cfg: cfg, path: path, LogFunc: log.Printf, stopCh: make(chan struct{})}
}

// Start begins watching the file's directory. Editors often replace the file
// rather than write it, so the directory is watched and events filtered by name.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	w.fw = fw
	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fw != nil {
			w.fw.Close()
		}
	})
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.Reload()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logf("config: watcher error: %v", err)
		}
	}
}

// Reload re-reads the file and swaps in its override table.
func (w *Watcher) Reload() {
	fresh, err := Load(w.path)
	if err != nil {
		w.logf("config: reload %s: %v", w.path, err)
		return
	}
	w.cfg.SetOverrides(fresh.Overrides)
	if rejected := w.cfg.RejectedOverrides(); len(rejected) > 0 {
		w.logf("config: ignoring overrides not on the allow-list: %v", rejected)
	}
	w.logf("config: reloaded overrides from %s", w.path)
	if w.OnReload != nil {
		w.OnReload(w.cfg)
	}
}

func (w *Watcher) logf(format string, args ...any) {
	if w.LogFunc != nil {
		w.LogFunc(format, args...)
	}
}
