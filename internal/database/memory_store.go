package database

import (
	"context"
	"github.com/google/uuid"
	"sync"
	"time"
)

// MemoryStore keeps documents in process memory. It backs tests and the
// "memory" storage mode.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[string]*Document
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (ms *MemoryStore) GetDocument(_ context.Context, publicID string) (*Document, error) {
	if publicID == "" {
		return nil, ErrPublicIDEmpty
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	doc, ok := ms.documents[publicID]
	if !ok {
		return nil, notFound(publicID)
	}
	cp := *doc
	return &cp, nil
}

func (ms *MemoryStore) CreateDocument(_ context.Context) (*Document, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	now := ms.now()
	doc := &Document{PublicID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	ms.documents[doc.PublicID] = doc
	cp := *doc
	return &cp, nil
}

func (ms *MemoryStore) UpdateDocument(_ context.Context, publicID string, update DocumentUpdate) (*Document, error) {
	if publicID == "" {
		return nil, ErrPublicIDEmpty
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	doc, ok := ms.documents[publicID]
	if !ok {
		return nil, notFound(publicID)
	}
	update.apply(doc)
	doc.UpdatedAt = ms.now()
	cp := *doc
	return &cp, nil
}

func (ms *MemoryStore) DeleteDocument(_ context.Context, publicID string) (*Document, error) {
	if publicID == "" {
		return nil, ErrPublicIDEmpty
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	doc, ok := ms.documents[publicID]
	if !ok {
		return nil, notFound(publicID)
	}
	delete(ms.documents, publicID)
	return doc, nil
}

func (ms *MemoryStore) PurgeDocumentsOlderThan(_ context.Context, age time.Duration) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cutoff := ms.now().Add(-age)
	var n int64
	for id, doc := range ms.documents {
		if doc.UpdatedAt.Before(cutoff) {
			delete(ms.documents, id)
			n++
		}
	}
	return n, nil
}
