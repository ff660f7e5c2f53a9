package database

import (
	"context"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"sync"
	"time"
)

// maxFillAttempts bounds how often a miss re-reads after losing a race with
// a write to the same document.
const maxFillAttempts = 3

// CachedStore serves GetDocument from an expiring LRU in front of another
// store. Writes through it evict the entry once the backing write returns;
// writes that bypass it are visible once the entry expires.
type CachedStore struct {
	DocumentStore
	cache *expirable.LRU[string, Document]
	group singleflight.Group

	mu    sync.Mutex
	fills map[string]*fill
}

// fill marks a backing read in flight. A write to the same id sets stale;
// a stale result is not cached and the read is retried.
type fill struct {
	stale bool
}

func NewCachedStore(store DocumentStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 256
	}
	return &CachedStore{
		DocumentStore: store,
		cache:         expirable.NewLRU[string, Document](size, nil, ttl),
		fills:         make(map[string]*fill),
	}
}

func (cs *CachedStore) GetDocument(ctx context.Context, publicID string) (*Document, error) {
	if doc, ok := cs.cache.Get(publicID); ok {
		return &doc, nil
	}
	v, err, _ := cs.group.Do(publicID, func() (any, error) {
		return cs.load(ctx, publicID)
	})
	if err != nil {
		return nil, err
	}
	doc := v.(Document)
	return &doc, nil
}

func (cs *CachedStore) load(ctx context.Context, publicID string) (Document, error) {
	for attempt := 1; ; attempt++ {
		f := &fill{}
		cs.mu.Lock()
		cs.fills[publicID] = f
		cs.mu.Unlock()

		doc, err := cs.DocumentStore.GetDocument(ctx, publicID)

		cs.mu.Lock()
		if cs.fills[publicID] == f {
			delete(cs.fills, publicID)
		}
		stale := f.stale
		if err == nil && !stale {
			cs.cache.Add(publicID, *doc)
		}
		cs.mu.Unlock()

		if err != nil {
			return Document{}, err
		}
		if !stale || attempt == maxFillAttempts {
			return *doc, nil
		}
	}
}

func (cs *CachedStore) invalidate(publicID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if f := cs.fills[publicID]; f != nil {
		f.stale = true
	}
	cs.cache.Remove(publicID)
}

func (cs *CachedStore) CreateDocument(ctx context.Context) (*Document, error) {
	doc, err := cs.DocumentStore.CreateDocument(ctx)
	if err != nil {
		return nil, err
	}
	cs.cache.Add(doc.PublicID, *doc)
	return doc, nil
}

func (cs *CachedStore) UpdateDocument(ctx context.Context, publicID string, update DocumentUpdate) (*Document, error) {
	doc, err := cs.DocumentStore.UpdateDocument(ctx, publicID, update)
	cs.invalidate(publicID)
	return doc, err
}

func (cs *CachedStore) DeleteDocument(ctx context.Context, publicID string) (*Document, error) {
	doc, err := cs.DocumentStore.DeleteDocument(ctx, publicID)
	cs.invalidate(publicID)
	return doc, err
}

func (cs *CachedStore) PurgeDocumentsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	n, err := cs.DocumentStore.PurgeDocumentsOlderThan(ctx, age)
	cs.mu.Lock()
	for _, f := range cs.fills {
		f.stale = true
	}
	cs.cache.Purge()
	cs.mu.Unlock()
	return n, err
}

func (cs *CachedStore) Len() int {
	return cs.cache.Len()
}
