package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the profiles file for changes and hot-swaps the store
// contents. Profile activation stays an out-of-band operator action; the
// running process only ever reads.
type Reloader struct {
	watcher  *fsnotify.Watcher
	store    *Store
	path     string
	manifest *Manifest
}

// NewReloader creates a file watcher over the profiles file. When a
// manifest is given, every reload re-verifies the file's pinned hash
// first; a reload that fails verification keeps the previous profiles.
func NewReloader(store *Store, path string, manifest *Manifest) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: create file watcher: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("policy: cannot watch %q: %w", path, err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("policy: failed to watch %q: %w", path, err)
	}

	return &Reloader{watcher: watcher, store: store, path: path, manifest: manifest}, nil
}

// Run watches for file changes and reloads profiles. Blocks until ctx is
// cancelled. A reload that fails to parse keeps the previous profiles.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "policy: file watcher error: %v\n", err)
		}
	}
}

func (r *Reloader) reload() {
	if r.manifest != nil {
		if err := r.manifest.VerifyFile(r.path); err != nil {
			fmt.Fprintf(os.Stderr, "policy: hot-reload refused, keeping previous profiles: %v\n", err)
			return
		}
	}
	fresh, err := Load(r.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "policy: hot-reload failed, keeping previous profiles: %v\n", err)
		return
	}
	fresh.mu.RLock()
	profiles := fresh.profiles
	fresh.mu.RUnlock()
	r.store.Replace(profiles)
	fmt.Fprintf(os.Stderr, "policy: profiles reloaded\n")
}
