package history

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/agentdeck/agentdeck/pkg/log"
)

// Watch reports the session ids whose transcript changes on disk, until
// ctx is cancelled. Slow consumers miss notifications rather than
// blocking the watcher.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	changes := make(chan string, 16)
	go func() {
		defer watcher.Close()
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				name := filepath.Base(ev.Name)
				if !strings.HasSuffix(name, transcriptExt) {
					continue
				}
				select {
				case changes <- strings.TrimSuffix(name, transcriptExt):
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("history watcher error", "error", err)
			}
		}
	}()
	return changes, nil
}
