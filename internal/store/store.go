// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store keeps search results, the download queue and download
// session records. Two implementations share one contract: an in-memory
// store and a SQLite-backed one.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// ErrNotFound is returned when a queue item or session does not exist.
var ErrNotFound = errors.New("not found")

// SearchStore holds the results of the latest searches.
type SearchStore interface {
	// SaveSearchResults appends articles tagged with query.
	SaveSearchResults(ctx context.Context, query string, articles []types.Article) ([]types.SearchRecord, error)
	// ListSearchResults returns results in insertion order. An empty query
	// returns all of them.
	ListSearchResults(ctx context.Context, query string) ([]types.SearchRecord, error)
	ClearSearchResults(ctx context.Context) error
}

// QueueStore holds the download queue.
type QueueStore interface {
	// AddToQueue appends items; an empty status becomes pending.
	AddToQueue(ctx context.Context, items ...types.QueueItem) ([]types.QueueItem, error)
	// ListQueue returns items in creation order.
	ListQueue(ctx context.Context) ([]types.QueueItem, error)
	UpdateQueueItem(ctx context.Context, id int64, u types.QueueUpdate) (types.QueueItem, error)
	RemoveQueueItem(ctx context.Context, id int64) error
	ClearQueue(ctx context.Context) error
}

// SessionStore holds download session records.
type SessionStore interface {
	// CreateSession stores s, replacing any record with the same id.
	CreateSession(ctx context.Context, s types.DownloadSession) (types.DownloadSession, error)
	GetSession(ctx context.Context, sessionID string) (types.DownloadSession, error)
	UpdateSession(ctx context.Context, sessionID string, u types.SessionUpdate) (types.DownloadSession, error)
}

// Store is the full record store.
type Store interface {
	SearchStore
	QueueStore
	SessionStore
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(cfg types.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", types.StoreMemory:
		return NewMemory(), nil
	case types.StoreSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func applyQueueUpdate(item *types.QueueItem, u types.QueueUpdate) error {
	if u.Status != nil {
		if !u.Status.Valid() {
			return fmt.Errorf("invalid queue status %q", *u.Status)
		}
		item.Status = *u.Status
	}
	if u.FilePath != nil {
		item.FilePath = *u.FilePath
	}
	if u.ErrorMessage != nil {
		item.ErrorMessage = *u.ErrorMessage
	}
	return nil
}

func applySessionUpdate(s *types.DownloadSession, u types.SessionUpdate) {
	if u.IsAuthenticated != nil {
		s.IsAuthenticated = *u.IsAuthenticated
	}
	if u.TotalItems != nil {
		s.TotalItems = *u.TotalItems
	}
	if u.CompletedItems != nil {
		s.CompletedItems = *u.CompletedItems
	}
}

func normalizeNewItem(item types.QueueItem) (types.QueueItem, error) {
	if item.PMID == "" {
		return item, errors.New("queue item has no pmid")
	}
	if item.Status == "" {
		item.Status = types.StatusPending
	}
	if !item.Status.Valid() {
		return item, fmt.Errorf("invalid queue status %q", item.Status)
	}
	return item, nil
}
