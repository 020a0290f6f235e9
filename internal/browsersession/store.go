// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browsersession persists cookie snapshots exported from a browser
// that already passed the proxy login. Snapshots expire after a fixed age
// and the whole table is rewritten to a JSON file on every change.
package browsersession

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// DefaultMaxAge matches the proxy's own session lifetime.
const DefaultMaxAge = 2 * time.Hour

// DefaultFile is the session file name under the user's home directory.
const DefaultFile = ".pubmed-auth-sessions.json"

// cookieMarkers select the cookies worth keeping from a browser export.
var cookieMarkers = []string{"ezproxy", "session", "auth"}

// Store is the browser session table. All methods are safe for concurrent
// use.
type Store struct {
	fs     afero.Fs
	path   string
	maxAge time.Duration
	log    *zap.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]types.BrowserSession
	order    []string
}

// Open loads the table at path. A missing file yields an empty store; a
// corrupt one is logged and treated as empty. Entries older than maxAge are
// dropped silently.
func Open(fsys afero.Fs, path string, maxAge time.Duration, log *zap.Logger) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s := &Store{
		fs:       fsys,
		path:     path,
		maxAge:   maxAge,
		log:      logging.OrNop(log),
		Now:      time.Now,
		sessions: make(map[string]types.BrowserSession),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("reading browser sessions", zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	table, err := decodeTable(data)
	if err != nil {
		s.log.Warn("ignoring corrupt browser session file", zap.String("path", s.path), zap.Error(err))
		return
	}

	cutoff := s.Now().Add(-s.maxAge)
	for _, bs := range table {
		if !bs.LastAuthenticated.After(cutoff) {
			continue
		}
		if _, dup := s.sessions[bs.SessionID]; !dup {
			s.order = append(s.order, bs.SessionID)
		}
		s.sessions[bs.SessionID] = bs
	}
	s.log.Debug("loaded browser sessions", zap.Int("count", len(s.order)))
}

// Store records a snapshot for sessionID, keeping only cookies that mention
// one of the proxy markers, and persists the table. Re-storing an id keeps
// its original position.
func (s *Store) Store(sessionID string, cookies []string, userAgent string) (types.BrowserSession, error) {
	bs := types.BrowserSession{
		SessionID:         sessionID,
		Cookies:           FilterCookies(cookies),
		UserAgent:         userAgent,
		LastAuthenticated: s.Now(),
		IsValid:           true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sessionID]; !exists {
		s.order = append(s.order, sessionID)
	}
	s.sessions[sessionID] = bs
	s.log.Info("browser session stored", zap.String("session", sessionID), zap.Int("cookies", len(bs.Cookies)))
	return bs, s.persistLocked()
}

// GetValid returns the snapshot for sessionID when it is younger than the
// max age. An expired entry is removed and the table persisted.
func (s *Store) GetValid(sessionID string) (types.BrowserSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs, ok := s.sessions[sessionID]
	if !ok {
		return types.BrowserSession{}, false
	}
	if s.expired(bs) {
		s.removeLocked(sessionID)
		if err := s.persistLocked(); err != nil {
			s.log.Warn("persisting browser sessions", zap.Error(err))
		}
		return types.BrowserSession{}, false
	}
	return copySession(bs), true
}

// GetAllValid evicts expired entries and returns the rest in insertion
// order.
func (s *Store) GetAllValid() []types.BrowserSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		valid   []types.BrowserSession
		evicted bool
	)
	for _, id := range append([]string(nil), s.order...) {
		bs := s.sessions[id]
		if s.expired(bs) {
			s.removeLocked(id)
			evicted = true
			continue
		}
		valid = append(valid, copySession(bs))
	}
	if evicted {
		if err := s.persistLocked(); err != nil {
			s.log.Warn("persisting browser sessions", zap.Error(err))
		}
	}
	return valid
}

// Invalidate removes sessionID and persists the table.
func (s *Store) Invalidate(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sessionID)
	return s.persistLocked()
}

func (s *Store) expired(bs types.BrowserSession) bool {
	return !bs.LastAuthenticated.After(s.Now().Add(-s.maxAge))
}

func (s *Store) removeLocked(id string) {
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// persistLocked rewrites the file through a temp file and rename.
func (s *Store) persistLocked() error {
	data, err := s.encodeTableLocked()
	if err != nil {
		return fmt.Errorf("encoding browser sessions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("writing browser sessions: %w", writeErr)
	}
	if closeErr != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// encodeTableLocked renders the table as a JSON object keyed by session id,
// with keys in insertion order.
func (s *Store) encodeTableLocked() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.sessions[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// decodeTable reads the session object, keeping its keys in file order.
func decodeTable(data []byte) ([]types.BrowserSession, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var table []types.BrowserSession
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected session id, got %v", tok)
		}
		var bs types.BrowserSession
		if err := dec.Decode(&bs); err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		bs.SessionID = id
		table = append(table, bs)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return table, nil
}

// FilterCookies keeps the cookie strings that contain a proxy marker.
func FilterCookies(cookies []string) []string {
	out := make([]string, 0, len(cookies))
	for _, c := range cookies {
		for _, m := range cookieMarkers {
			if strings.Contains(c, m) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func copySession(bs types.BrowserSession) types.BrowserSession {
	bs.Cookies = append([]string(nil), bs.Cookies...)
	return bs
}
