// Package watcher follows a manifest file or directory on disk and reports
// debounced changes, so edits made in an editor flow into the canvas.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/kube-playground/pkg/finder"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/manifest"
)

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Paths []string
	// Removed is set when the last change of the batch deleted or renamed
	// a file away.
	Removed   bool
	Timestamp time.Time
}

// FileWatcher watches a manifest file, or the YAML files of a directory.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	// file is the watched file name when path is a single file.
	file   string
	events chan ChangeEvent
	once   sync.Once
}

// NewFileWatcher creates a watcher for path, which must exist.
func NewFileWatcher(path string) (*FileWatcher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access watch path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: w,
		path:    path,
		events:  make(chan ChangeEvent, 100),
	}
	if !info.IsDir() {
		fw.file = filepath.Base(path)
	}
	return fw, nil
}

// Start begins watching for file changes. A single file is watched through
// its directory so that editors replacing the file by rename are seen.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dir := fw.path
	if fw.file != "" {
		dir = filepath.Dir(fw.path)
	}
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Info("started watching manifests", "path", fw.path)

	go fw.processEvents(ctx)
	return nil
}

// relevant reports whether a change to name concerns the watched manifests.
func (fw *FileWatcher) relevant(name string) bool {
	base := filepath.Base(name)
	if fw.file != "" {
		return base == fw.file
	}
	return finder.IsManifest(base)
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			logging.Trace("manifest changed", "path", event.Name, "op", event.Op.String())

			change := ChangeEvent{
				Paths:     []string{event.Name},
				Removed:   event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename),
				Timestamp: time.Now(),
			}
			select {
			case fw.events <- change:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) close() error {
	var err error
	fw.once.Do(func() { err = fw.watcher.Close() })
	return err
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	return fw.close()
}

// Follow applies the manifests at path once, then again after every
// debounced change, until ctx is done. A batch that leaves no manifest
// behind is skipped rather than clearing the canvas.
func Follow(ctx context.Context, path string, quietPeriod, maxWait time.Duration, apply func(ctx context.Context, text string)) error {
	fw, err := NewFileWatcher(path)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return err
	}

	load := func() {
		text, err := manifest.ReadPath(path)
		if err != nil {
			logging.Warn("failed to read watched manifests", "path", path, "error", err)
			return
		}
		apply(ctx, text)
	}
	load()

	d := NewDebouncer(fw.Events(), quietPeriod, maxWait)
	d.Start(ctx)
	go func() {
		for change := range d.Output() {
			if change.Removed && fw.file != "" {
				if _, err := os.Stat(path); err != nil {
					logging.Info("watched manifest removed, keeping canvas", "path", path)
					continue
				}
			}
			logging.Info("reapplying changed manifests", "files", len(change.Paths))
			load()
		}
	}()
	return nil
}
