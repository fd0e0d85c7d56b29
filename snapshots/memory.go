package snapshots

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots for the lifetime of the process.
type MemoryStore struct {
	lock      sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (store *MemoryStore) Save(ctx context.Context, snapshot Snapshot) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.snapshots[snapshot.ID] = snapshot
	return nil
}

func (store *MemoryStore) Load(ctx context.Context, id string) (Snapshot, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()

	snapshot, ok := store.snapshots[id]
	if !ok {
		return Snapshot{}, NotFoundError{ID: id}
	}
	return snapshot, nil
}

func (store *MemoryStore) Delete(ctx context.Context, id string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	if _, ok := store.snapshots[id]; !ok {
		return NotFoundError{ID: id}
	}
	delete(store.snapshots, id)
	return nil
}

func (store *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()

	summaries := make([]Summary, 0, len(store.snapshots))
	for _, snapshot := range store.snapshots {
		summaries = append(summaries, snapshot.Summary())
	}
	sortNewestFirst(summaries)
	return summaries, nil
}
