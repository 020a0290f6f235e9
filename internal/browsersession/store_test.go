// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browsersession

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

const sessionsPath = "/home/user/.pubmed-auth-sessions.json"

func openTest(t *testing.T, fsys afero.Fs) *Store {
	t.Helper()
	return Open(fsys, sessionsPath, DefaultMaxAge, zaptest.NewLogger(t))
}

func TestStoreFiltersCookiesAndPersists(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)

	bs, err := s.Store("browser-1", []string{"ezproxy=abc", "_ga=1", "JSESSIONID=x", "ezproxy_session=s", "authToken=t", "theme=dark"}, "UA/1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ezproxy=abc", "ezproxy_session=s", "authToken=t"}, bs.Cookies)
	assert.True(t, bs.IsValid)

	data, err := afero.ReadFile(fsys, sessionsPath)
	require.NoError(t, err)
	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "browser-1")
	assert.Equal(t, "UA/1", raw["browser-1"]["userAgent"])
	assert.IsType(t, float64(0), raw["browser-1"]["lastAuthenticated"])
}

func TestFilterCookiesCaseSensitive(t *testing.T) {
	assert.Empty(t, FilterCookies([]string{"EZPROXY=1", "Session=2"}))
	assert.Empty(t, FilterCookies([]string{"JSESSIONID=x", "AUTH=y"}))
	assert.Equal(t, []string{"my_session=1", "oauth=2"}, FilterCookies([]string{"my_session=1", "oauth=2"}))
}

func TestSurvivesReopen(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)
	_, err := s.Store("a", []string{"ezproxy=1"}, "UA")
	require.NoError(t, err)

	reopened := openTest(t, fsys)
	bs, ok := reopened.GetValid("a")
	require.True(t, ok)
	assert.Equal(t, []string{"ezproxy=1"}, bs.Cookies)
	assert.Equal(t, "UA", bs.UserAgent)
}

func TestOpenDropsOldEntries(t *testing.T) {
	fsys := afero.NewMemMapFs()
	now := time.Now()
	content := fmt.Sprintf(`{
  "old":   {"sessionId":"old","cookies":["ezproxy=o"],"userAgent":"UA","lastAuthenticated":%d,"isValid":true},
  "fresh": {"sessionId":"fresh","cookies":["ezproxy=f"],"userAgent":"UA","lastAuthenticated":%d,"isValid":true}
}`, now.Add(-3*time.Hour).UnixMilli(), now.Add(-time.Minute).UnixMilli())
	require.NoError(t, afero.WriteFile(fsys, sessionsPath, []byte(content), 0o600))

	s := openTest(t, fsys)
	all := s.GetAllValid()
	require.Len(t, all, 1)
	assert.Equal(t, "fresh", all[0].SessionID)
}

func TestOpenKeepsFileOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	now := time.Now()
	content := fmt.Sprintf(`{
  "second": {"cookies":["ezproxy=2"],"lastAuthenticated":%d},
  "first":  {"cookies":["ezproxy=1"],"lastAuthenticated":%d}
}`, now.Add(-time.Minute).UnixMilli(), now.Add(-time.Hour).UnixMilli())
	require.NoError(t, afero.WriteFile(fsys, sessionsPath, []byte(content), 0o600))

	all := openTest(t, fsys).GetAllValid()
	require.Len(t, all, 2)
	assert.Equal(t, []string{"second", "first"}, ids(all))
}

func TestInsertionOrderSurvivesReopen(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)
	start := time.Now()

	s.Now = func() time.Time { return start.Add(-time.Hour) }
	_, err := s.Store("a", []string{"ezproxy=a"}, "UA")
	require.NoError(t, err)
	_, err = s.Store("b", []string{"ezproxy=b"}, "UA")
	require.NoError(t, err)

	// a is refreshed later than b but keeps its slot.
	s.Now = func() time.Time { return start }
	_, err = s.Store("a", []string{"ezproxy=a2"}, "UA")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(s.GetAllValid()))

	reopened := openTest(t, fsys)
	all := reopened.GetAllValid()
	assert.Equal(t, []string{"a", "b"}, ids(all))
	assert.Equal(t, []string{"ezproxy=a2"}, all[0].Cookies)
}

func TestOpenMissingAndCorruptFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.Empty(t, openTest(t, fsys).GetAllValid())

	for _, bad := range []string{"{not json", `["ezproxy=1"]`, `{"a": 1}`} {
		require.NoError(t, afero.WriteFile(fsys, sessionsPath, []byte(bad), 0o600))
		assert.Empty(t, openTest(t, fsys).GetAllValid(), bad)
	}
	s := openTest(t, fsys)

	_, err := s.Store("a", []string{"auth=1"}, "UA")
	require.NoError(t, err)
	assert.Len(t, openTest(t, fsys).GetAllValid(), 1)
}

func TestGetValidExpiresLazily(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)
	start := time.Now()
	s.Now = func() time.Time { return start }

	_, err := s.Store("a", []string{"ezproxy=1"}, "UA")
	require.NoError(t, err)

	s.Now = func() time.Time { return start.Add(DefaultMaxAge - time.Second) }
	_, ok := s.GetValid("a")
	assert.True(t, ok)

	s.Now = func() time.Time { return start.Add(DefaultMaxAge + time.Second) }
	_, ok = s.GetValid("a")
	assert.False(t, ok)

	data, err := afero.ReadFile(fsys, sessionsPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestGetAllValidInsertionOrderAndSweep(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)
	start := time.Now()

	s.Now = func() time.Time { return start }
	_, err := s.Store("a", []string{"ezproxy=a"}, "UA")
	require.NoError(t, err)

	s.Now = func() time.Time { return start.Add(time.Hour) }
	_, err = s.Store("b", []string{"ezproxy=b"}, "UA")
	require.NoError(t, err)
	_, err = s.Store("c", []string{"ezproxy=c"}, "UA")
	require.NoError(t, err)

	// Re-storing keeps position.
	_, err = s.Store("b", []string{"ezproxy=b2"}, "UA")
	require.NoError(t, err)

	all := s.GetAllValid()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))
	assert.Equal(t, []string{"ezproxy=b2"}, all[1].Cookies)

	s.Now = func() time.Time { return start.Add(DefaultMaxAge + time.Minute) }
	all = s.GetAllValid()
	assert.Equal(t, []string{"b", "c"}, ids(all))

	reopened := openTest(t, fsys)
	reopened.Now = s.Now
	_, ok := reopened.GetValid("a")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := openTest(t, fsys)
	_, err := s.Store("a", []string{"ezproxy=1"}, "UA")
	require.NoError(t, err)

	require.NoError(t, s.Invalidate("a"))
	_, ok := s.GetValid("a")
	assert.False(t, ok)
	assert.Empty(t, openTest(t, fsys).GetAllValid())

	require.NoError(t, s.Invalidate("missing"))
}

func TestReturnedCookiesAreCopies(t *testing.T) {
	s := openTest(t, afero.NewMemMapFs())
	_, err := s.Store("a", []string{"ezproxy=1"}, "UA")
	require.NoError(t, err)

	bs, _ := s.GetValid("a")
	bs.Cookies[0] = "changed"

	again, _ := s.GetValid("a")
	assert.Equal(t, "ezproxy=1", again.Cookies[0])
}

func ids(sessions []types.BrowserSession) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.SessionID
	}
	return out
}
