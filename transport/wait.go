package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WaitForSocket blocks until path exists, e.g. while charon is starting up.
func WaitForSocket(ctx context.Context, path string) error {
	path = filepath.Clean(strings.TrimPrefix(path, "unix://"))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch before checking so a socket created in between is not missed
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher for %s closed", path)
			}

			if filepath.Clean(event.Name) == path && event.Has(fsnotify.Create) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher for %s closed", path)
			}
			return err
		}
	}
}
