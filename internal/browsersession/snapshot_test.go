// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browsersession

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const downloadDir = "/home/user/Documents/downloaded_pdfs"

func writeSnapshotFile(t *testing.T, fsys afero.Fs, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(downloadDir, SnapshotFile), []byte(body), 0o600))
}

func TestLoadSnapshotStoresFreshSession(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	writeSnapshotFile(t, fsys, fmt.Sprintf(`{"cookies":"ezproxy=abc","timestamp":%d}`, now.Add(-10*time.Minute).UnixMilli()))

	bs, ok, err := s.LoadSnapshot(downloadDir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("browser-%d", now.UnixMilli()), bs.SessionID)
	assert.Equal(t, []string{"ezproxy=abc"}, bs.Cookies)
	assert.Equal(t, DefaultUserAgent, bs.UserAgent)

	// A second start with the same snapshot does not add a duplicate.
	s.Now = func() time.Time { return now.Add(time.Minute) }
	_, ok, err = s.LoadSnapshot(downloadDir)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, s.GetAllValid(), 1)
}

func TestLoadSnapshotSkips(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "no file"},
		{name: "expired", body: fmt.Sprintf(`{"cookies":["ezproxy=1"],"timestamp":%d}`, now.Add(-3*time.Hour).UnixMilli())},
		{name: "no timestamp", body: `{"cookies":["ezproxy=1"]}`},
		{name: "corrupt", body: `{"cookies":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			if tt.body != "" {
				writeSnapshotFile(t, fsys, tt.body)
			}
			s := openTest(t, fsys)

			_, ok, err := s.LoadSnapshot(downloadDir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.False(t, ok)
			assert.Empty(t, s.GetAllValid())
		})
	}
}

func TestCookieListForms(t *testing.T) {
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"cookies":["a=1","b=2"],"userAgent":"UA","timestamp":5}`), &snap))
	assert.Equal(t, CookieList{"a=1", "b=2"}, snap.Cookies)
	assert.Equal(t, int64(5), snap.Timestamp)

	require.NoError(t, json.Unmarshal([]byte(`{"cookies":""}`), &snap))
	assert.Empty(t, snap.Cookies)

	assert.Error(t, json.Unmarshal([]byte(`{"cookies":42}`), &snap))
}
