// internal/stage/watcher.go
package stage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher restages files through the filter chain whenever they change
// in the working tree, so staged objects always hold filtered content.
type Watcher struct {
	stager  *Stager
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
}

// NewWatcher builds a Watcher over the stager's root and starts its
// event loop.
func NewWatcher(stager *Stager, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		stager:  stager,
		watcher: fsw,
		logger:  logger,
		done:    make(chan struct{}),
	}

	if err := w.addDirs(); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching working tree: %w", err)
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addDirs() error {
	return filepath.WalkDir(w.stager.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(w.stager.Root, path)
		if err != nil {
			return err
		}
		if relPath != "." && w.stager.shouldIgnore(relPath) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.stager.Root, event.Name)
	if err != nil {
		w.logger.Error("getting relative path", zap.Error(err))
		return
	}
	if w.stager.shouldIgnore(relPath) {
		return
	}

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.Error(err))
			}
			return
		}
		w.restage(relPath)

	case event.Op&fsnotify.Write == fsnotify.Write:
		w.restage(relPath)

	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		if _, ok := w.stager.Entry(relPath); ok {
			if err := w.stager.Unstage([]string{relPath}); err != nil {
				w.logger.Warn("failed to unstage removed file",
					zap.String("path", relPath),
					zap.Error(err))
			}
		}
	}
}

func (w *Watcher) restage(relPath string) {
	// Only refresh paths that are already staged; the watcher never
	// stages new files on its own.
	if _, ok := w.stager.Entry(relPath); !ok {
		return
	}
	if err := w.stager.StageFile(relPath); err != nil {
		w.logger.Warn("failed to restage file",
			zap.String("path", relPath),
			zap.Error(err))
	}
}

// Close stops the event loop and releases the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
