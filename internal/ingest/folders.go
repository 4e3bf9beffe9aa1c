package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/threadvault/threadvault/internal/storage"
)

// FolderResolver maps a thread identity to its destination folder,
// creating the folder on first use. Mappings are cached in-process and
// never expire; an admin override replaces the cached value. Concurrent
// misses for the same key are collapsed so exactly one remote create
// happens per thread.
type FolderResolver struct {
	store  storage.Store
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

func NewFolderResolver(log *slog.Logger, store storage.Store) *FolderResolver {
	if log == nil {
		log = slog.Default()
	}
	return &FolderResolver{
		store:  store,
		logger: log.With(slog.String("service", "folders")),
		cache:  make(map[string]string),
	}
}

// Resolve returns the folder id for key, searching storage by name and
// creating the folder if it does not exist. The search-before-create step
// always runs on a cache miss, so a restarted process re-adopts folders
// it created in a previous life instead of duplicating them.
func (r *FolderResolver) Resolve(ctx context.Context, key, name string) (string, error) {
	if id, ok := r.lookup(key); ok {
		return id, nil
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		// An override or a concurrent resolution may have landed while
		// this call waited its turn.
		if id, ok := r.lookup(key); ok {
			return id, nil
		}

		id, err := r.store.FindFolder(ctx, name)
		if errors.Is(err, storage.ErrFolderNotFound) {
			id, err = r.store.CreateFolder(ctx, name)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve folder %q: %w", name, err)
		}

		r.put(key, id)
		r.logger.Info("folder resolved", slog.String("name", name), slog.String("folder_id", id))
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// SetOverride replaces the cached mapping for key. Future resolutions
// return the override and skip the search/create path entirely.
func (r *FolderResolver) SetOverride(key, folderID string) {
	r.put(key, folderID)
	r.logger.Info("folder override set", slog.String("key", key), slog.String("folder_id", folderID))
}

// Mappings returns a copy of the current thread-to-folder cache.
func (r *FolderResolver) Mappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.cache))
	for k, v := range r.cache {
		out[k] = v
	}
	return out
}

func (r *FolderResolver) lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[key]
	return id, ok
}

func (r *FolderResolver) put(key, folderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = folderID
}
