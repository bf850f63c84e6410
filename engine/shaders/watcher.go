package shaders

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/core"
)

// Watcher overlays edited shader files from a directory onto a Registry.
// Only names already present in the embedded table can be overridden; other
// files in the directory are ignored.
type Watcher struct {
	registry *Registry
	fsnotify *fsnotify.Watcher
	done     chan struct{}
	isClosed bool
}

func NewWatcher(registry *Registry, dir string) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		registry: registry,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}

	if err := w.fsnotify.Add(dir); err != nil {
		fsWatch.Close()
		return nil, err
	}

	// Pick up overrides that already exist on disk before watching.
	entries, err := os.ReadDir(dir)
	if err != nil {
		fsWatch.Close()
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.apply(filepath.Join(dir, e.Name()))
		}
	}

	go w.start()
	return w, nil
}

func (w *Watcher) start() {
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.apply(e.Name)
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.registry.clearOverride(filepath.Base(e.Name))
				core.LogInfo("shader override removed: %s", filepath.Base(e.Name))
			}
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) apply(path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".hlsl") {
		return
	}
	if !w.registry.isEmbedded(name) {
		core.LogWarn("shader watcher: %q does not match an embedded shader, ignoring", name)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		core.LogError("shader watcher: %s: %v", name, err)
		return
	}
	w.registry.setOverride(name, string(data))
	core.LogInfo("shader override applied: %s (generation %d)", name, w.registry.Generation())
}

// Close stops the watcher. Safe to call once.
func (w *Watcher) Close() error {
	if w.isClosed {
		return errors.New("shader watcher already closed")
	}
	w.isClosed = true
	close(w.done)
	return w.fsnotify.Close()
}
