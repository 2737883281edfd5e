package discovery

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchProfiles hot-reloads the vendor profile file on change (§2.2:
// DISCOVERY_VENDOR_PROFILES_PATH), grounded on internal/license/watcher.go's
// fsnotify-with-polling-fallback shape. A scan in flight keeps using the
// ProfileSet snapshot it already copied via Profiles()/AllPorts(), so a
// reload never mutates a scan underway.
func (ps *ProfileSet) WatchProfiles(ctx context.Context, path string) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := err != nil
	if err == nil {
		if addErr := watcher.Add(path); addErr != nil {
			log.Printf("vendor profile watcher: add %s failed (%v), falling back to polling", path, addErr)
			usePolling = true
			watcher.Close()
		}
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						if err := ps.reload(path); err != nil {
							log.Printf("vendor profile reload failed: %v", err)
						}
					}
				case werr, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("vendor profile watcher error: %v", werr)
				}
			}
		}()
		return
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ps.reload(path); err != nil {
					log.Printf("vendor profile poll-reload failed: %v", err)
				}
			}
		}
	}()
}
