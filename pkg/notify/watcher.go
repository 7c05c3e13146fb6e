package notify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittosmb/internal/logger"
)

// Watcher publishes changes made to a share's host directory by processes
// other than this server.
type Watcher struct {
	share string
	root  string
	bus   *Bus
	fsw   *fsnotify.Watcher
	done  chan struct{}
}

// Watch starts watching root (recursively) and publishing events for share
// until ctx is cancelled or Close is called.
func Watch(ctx context.Context, bus *Bus, share, root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		share: share,
		root:  filepath.Clean(root),
		bus:   bus,
		fsw:   fsw,
		done:  make(chan struct{}),
	}
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.run(ctx)
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish while walking.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// rel converts a host path to a share-relative canonical path.
func (w *Watcher) rel(p string) (string, bool) {
	r, err := filepath.Rel(w.root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "", true
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("notify: watcher error", logger.KeyShare, w.share, logger.KeyError, err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	p, ok := w.rel(ev.Name)
	if !ok {
		return
	}

	out := Event{Share: w.share, Path: p, Origin: External}
	switch {
	case ev.Has(fsnotify.Create):
		out.Kind = Created
		// New directories need their own watch.
		if err := w.addTree(ev.Name); err != nil {
			logger.Debug("notify: cannot watch new entry", logger.KeyPath, p, logger.KeyError, err)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// fsnotify reports the old name of a rename; the new name arrives
		// as a separate Create.
		out.Kind = Removed
	case ev.Has(fsnotify.Write):
		out.Kind = Modified
	case ev.Has(fsnotify.Chmod):
		out.Kind = AttributesChanged
	default:
		return
	}

	logger.Debug("notify: external change", logger.KeyShare, w.share, logger.KeyPath, p, "kind", out.Kind)
	w.bus.Publish(out)
}
