package server

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchGrammar reloads the grammar file into svc whenever it is written or
// replaced. The directory is watched rather than the file because editors
// commonly save by renaming a temp file over the original. The watcher
// stops when ctx is done.
func WatchGrammar(ctx context.Context, svc *Service, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("grammar watcher: %w", err)
	}
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		// Saves often arrive as several events; coalesce them.
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(100 * time.Millisecond)

			case <-pending:
				pending = nil
				if err := svc.ReloadGrammar(path); err != nil {
					log.Printf("grammar: reload %s failed, keeping current grammar: %v", path, err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("grammar: watcher error: %v", err)
			}
		}
	}()

	log.Printf("grammar: watching %s for changes", path)
	return nil
}
