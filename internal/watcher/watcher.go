// Package watcher turns filesystem events in the library into debounced
// sub-path scans.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Nomadcxx/embress/internal/logging"
)

type EventType string

const (
	EventCreate EventType = "create"
	EventWrite  EventType = "write"
	EventMove   EventType = "move"
	EventDelete EventType = "delete"
)

type FileEvent struct {
	Type EventType
	Path string
}

type Handler interface {
	HandleFileEvent(event FileEvent) error
	IsMediaFile(path string) bool
}

type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *logging.Logger
	recursive bool
}

type Option func(*Watcher)

func WithRecursive(recursive bool) Option {
	return func(w *Watcher) {
		w.recursive = recursive
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

func NewWatcher(handler Handler, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logging.Nop(),
		recursive: true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		if w.recursive {
			if err := w.addRecursive(path); err != nil {
				return err
			}
		} else {
			if err := w.fsWatcher.Add(path); err != nil {
				return fmt.Errorf("unable to watch %s: %w", path, err)
			}
			w.logger.Debug("watcher", "Watching", logging.F("path", path))
		}
	}
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("unable to watch %s: %w", path, err)
		}
		w.logger.Debug("watcher", "Watching", logging.F("path", path))
		return nil
	})
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	return w.fsWatcher.WatchList()
}

// Start processes events until the watcher is closed.
func (w *Watcher) Start() error {
	w.logger.Info("watcher", "Watcher started", logging.F("directories", len(w.fsWatcher.WatchList())))

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if w.recursive && !strings.HasPrefix(filepath.Base(event.Name), ".") {
						if err := w.addRecursive(event.Name); err != nil {
							w.logger.Warn("watcher", "Unable to watch new directory",
								logging.F("path", event.Name), logging.F("error", err.Error()))
						}
					}
					// Files moved in together with the directory produce no events of their own.
					w.dispatch(FileEvent{Type: EventCreate, Path: event.Name})
					continue
				}
			}

			if err := w.handleEvent(event); err != nil {
				w.logger.Warn("watcher", "Error handling event", logging.F("error", err.Error()))
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher", "Watcher error", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) error {
	if !w.handler.IsMediaFile(event.Name) {
		return nil
	}

	eventType := EventCreate
	if event.Op&fsnotify.Write == fsnotify.Write {
		eventType = EventWrite
	} else if event.Op&fsnotify.Rename == fsnotify.Rename {
		eventType = EventMove
	} else if event.Op&fsnotify.Remove == fsnotify.Remove {
		eventType = EventDelete
	}

	w.logger.Debug("watcher", "Event",
		logging.F("type", string(eventType)),
		logging.F("file", filepath.Base(event.Name)))

	return w.handler.HandleFileEvent(FileEvent{Type: eventType, Path: event.Name})
}

func (w *Watcher) dispatch(event FileEvent) {
	if err := w.handler.HandleFileEvent(event); err != nil {
		w.logger.Warn("watcher", "Error handling event", logging.F("error", err.Error()))
	}
}
