// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package credential

import (
	"sort"
	"sync"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Repository holds credential sessions. Implementations hand out copies so
// callers never share a cookie slice.
type Repository interface {
	Get(sessionID string) (types.CredentialSession, bool)
	Put(s types.CredentialSession)
	Delete(sessionID string)
	List() []types.CredentialSession
}

// MemoryRepository keeps sessions in process memory only.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]types.CredentialSession
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]types.CredentialSession)}
}

func (r *MemoryRepository) Get(sessionID string) (types.CredentialSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return types.CredentialSession{}, false
	}
	return clone(s), true
}

func (r *MemoryRepository) Put(s types.CredentialSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = clone(s)
}

func (r *MemoryRepository) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// List returns all sessions ordered by id.
func (r *MemoryRepository) List() []types.CredentialSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.CredentialSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func clone(s types.CredentialSession) types.CredentialSession {
	s.Cookies = append([]string(nil), s.Cookies...)
	return s
}
