// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browsersession

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// SnapshotFile is the raw copy of the last submitted browser session, kept
// in the download folder.
const SnapshotFile = "ezproxy-session.json"

// DefaultUserAgent is used when a submitted session names no user agent.
const DefaultUserAgent = "Mozilla/5.0 (compatible; PubMed-Downloader)"

// CookieList accepts either a single cookie string or a list of them.
type CookieList []string

func (c *CookieList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = nil
		} else {
			*c = CookieList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*c = many
	return nil
}

// Snapshot is a browser session as submitted by the browser helper.
type Snapshot struct {
	Cookies   CookieList `json:"cookies"`
	UserAgent string     `json:"userAgent"`
	// Timestamp is when the browser captured the cookies, Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewSessionID names a submitted session after the moment it was stored.
func (s *Store) NewSessionID() string {
	return "browser-" + strconv.FormatInt(s.Now().UnixMilli(), 10)
}

// LoadSnapshot stores the snapshot in dir/SnapshotFile when it is younger
// than the max age. It reports false when there is no file, the snapshot is
// stale, or an identical cookie set is already stored.
func (s *Store) LoadSnapshot(dir string) (types.BrowserSession, bool, error) {
	path := filepath.Join(dir, SnapshotFile)
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.BrowserSession{}, false, nil
	}
	if err != nil {
		return types.BrowserSession{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.BrowserSession{}, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	if snap.Timestamp <= s.Now().Add(-s.maxAge).UnixMilli() {
		s.log.Info("browser session snapshot expired", zap.String("path", path))
		return types.BrowserSession{}, false, nil
	}

	cookies := FilterCookies(snap.Cookies)
	for _, bs := range s.GetAllValid() {
		if slices.Equal(bs.Cookies, cookies) {
			return types.BrowserSession{}, false, nil
		}
	}

	ua := snap.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	bs, err := s.Store(s.NewSessionID(), snap.Cookies, ua)
	if err != nil {
		return types.BrowserSession{}, false, err
	}
	return bs, true, nil
}
