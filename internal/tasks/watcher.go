package tasks

import (
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"photofinish/internal/fsutil"
)

// FileSystemEvent represents a file system change
type FileSystemEvent struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // "created", "modified", "deleted"
	Time      time.Time `json:"time"`
	Size      int64     `json:"size"`
}

// FileSystemWatcher monitors directories for new images
type FileSystemWatcher struct {
	watcher   *fsnotify.Watcher
	Events    chan FileSystemEvent
	watchDirs []string
	log       *slog.Logger
	done      chan bool
}

// NewFileSystemWatcher creates a new filesystem watcher
func NewFileSystemWatcher(watchPaths []string, logger *slog.Logger) (*FileSystemWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fsw := &FileSystemWatcher{
		watcher:   watcher,
		Events:    make(chan FileSystemEvent, 100),
		watchDirs: watchPaths,
		log:       logger,
		done:      make(chan bool),
	}

	return fsw, nil
}

// Start begins monitoring the configured directories
func (fsw *FileSystemWatcher) Start() error {
	// Add watch directories
	for _, dir := range fsw.watchDirs {
		err := fsw.watcher.Add(dir)
		if err != nil {
			return err
		}
		fsw.log.Info("watching directory", "dir", dir)
	}

	// Start event processing goroutine
	go fsw.processEvents()

	return nil
}

// Stop stops the filesystem watcher
func (fsw *FileSystemWatcher) Stop() error {
	close(fsw.done)
	close(fsw.Events)
	return fsw.watcher.Close()
}

// processEvents handles filesystem events and converts them to our format
func (fsw *FileSystemWatcher) processEvents() {
	for {
		select {
		case event, ok := <-fsw.watcher.Events:
			if !ok {
				return
			}

			// Convert fsnotify event to our format
			var operation string
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				operation = "created"
			case event.Op&fsnotify.Write == fsnotify.Write:
				operation = "modified"
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				operation = "deleted"
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				operation = "renamed"
			case event.Op&fsnotify.Chmod == fsnotify.Chmod:
				continue // Skip permission changes
			default:
				continue
			}

			// Only process image files
			if !fsutil.IsImageFile(event.Name) {
				continue
			}

			// Get file size (if file still exists)
			var size int64
			if operation != "deleted" {
				if info, err := os.Stat(event.Name); err == nil {
					size = info.Size()
				}
			}

			fsEvent := FileSystemEvent{
				Path:      event.Name,
				Operation: operation,
				Time:      time.Now(),
				Size:      size,
			}

			// Send event (non-blocking)
			select {
			case fsw.Events <- fsEvent:
			default:
				fsw.log.Warn("event buffer full, dropping event", "path", event.Name)
			}

		case err, ok := <-fsw.watcher.Errors:
			if !ok {
				return
			}
			fsw.log.Error("filesystem watcher error", "error", err)

		case <-fsw.done:
			return
		}
	}
}
