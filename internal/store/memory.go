// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Memory is a Store held in process memory.
type Memory struct {
	mu sync.RWMutex

	results  []types.SearchRecord
	queue    map[int64]types.QueueItem
	sessions map[string]types.DownloadSession

	nextResultID int64
	nextQueueID  int64

	// Now stamps records; tests replace it.
	Now func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		queue:        make(map[int64]types.QueueItem),
		sessions:     make(map[string]types.DownloadSession),
		nextResultID: 1,
		nextQueueID:  1,
		Now:          time.Now,
	}
}

func (m *Memory) SaveSearchResults(_ context.Context, query string, articles []types.Article) ([]types.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	out := make([]types.SearchRecord, 0, len(articles))
	for _, a := range articles {
		rec := types.SearchRecord{ID: m.nextResultID, Article: a, SearchQuery: query, CreatedAt: now}
		m.nextResultID++
		m.results = append(m.results, rec)
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) ListSearchResults(_ context.Context, query string) ([]types.SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.SearchRecord, 0, len(m.results))
	for _, r := range m.results {
		if query == "" || r.SearchQuery == query {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ClearSearchResults(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = nil
	return nil
}

func (m *Memory) AddToQueue(_ context.Context, items ...types.QueueItem) ([]types.QueueItem, error) {
	normalized := make([]types.QueueItem, 0, len(items))
	for _, it := range items {
		n, err := normalizeNewItem(it)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	for i := range normalized {
		normalized[i].ID = m.nextQueueID
		normalized[i].CreatedAt = now
		normalized[i].UpdatedAt = now
		m.nextQueueID++
		m.queue[normalized[i].ID] = normalized[i]
	}
	return normalized, nil
}

func (m *Memory) ListQueue(context.Context) ([]types.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.QueueItem, 0, len(m.queue))
	for _, it := range m.queue {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateQueueItem(_ context.Context, id int64, u types.QueueUpdate) (types.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return types.QueueItem{}, ErrNotFound
	}
	if err := applyQueueUpdate(&item, u); err != nil {
		return types.QueueItem{}, err
	}
	item.UpdatedAt = m.Now()
	m.queue[id] = item
	return item, nil
}

func (m *Memory) RemoveQueueItem(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[id]; !ok {
		return ErrNotFound
	}
	delete(m.queue, id)
	return nil
}

func (m *Memory) ClearQueue(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = make(map[int64]types.QueueItem)
	return nil
}

func (m *Memory) CreateSession(_ context.Context, s types.DownloadSession) (types.DownloadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.sessions[s.SessionID] = s
	return s, nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (types.DownloadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return types.DownloadSession{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) UpdateSession(_ context.Context, sessionID string, u types.SessionUpdate) (types.DownloadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return types.DownloadSession{}, ErrNotFound
	}
	applySessionUpdate(&s, u)
	s.UpdatedAt = m.Now()
	m.sessions[sessionID] = s
	return s, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
