// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-retriever/internal/browsersession"
	"github.com/pdiddy/pubmed-retriever/internal/metrics"
	"github.com/pdiddy/pubmed-retriever/internal/progress"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/internal/store"
	"github.com/pdiddy/pubmed-retriever/internal/worker"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

const downloadDir = "/home/user/Documents/downloaded_pdfs"

type fakeSearcher struct {
	mu       sync.Mutex
	articles []types.Article
	err      error
	last     pubmed.SearchParams
}

func (f *fakeSearcher) Search(_ context.Context, p pubmed.SearchParams) ([]types.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = p
	return f.articles, f.err
}

func (f *fakeSearcher) set(articles []types.Article, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles, f.err = articles, err
}

func (f *fakeSearcher) lastParams() pubmed.SearchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeAuth struct {
	mu     sync.Mutex
	fail   bool
	authed map[string]bool
}

func (f *fakeAuth) Authenticate(_ context.Context, id, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("dial tcp: connection refused")
	}
	f.authed[id] = true
	return nil
}

func (f *fakeAuth) login(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authed[id] = true
}

func (f *fakeAuth) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeAuth) IsAuthenticated(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed[id]
}

type fakeJobs struct {
	mu       sync.Mutex
	err      error
	enqueued [][]types.QueueItem
	statuses map[string]worker.Status
}

func (f *fakeJobs) Enqueue(_ string, items []types.QueueItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, items)
	return "01JTICKET", nil
}

func (f *fakeJobs) Status(ticket string) (worker.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[ticket]
	return st, ok
}

func (f *fakeJobs) snapshot() [][]types.QueueItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]types.QueueItem(nil), f.enqueued...)
}

type fixture struct {
	srv      *Server
	http     *httptest.Server
	records  store.Store
	searcher *fakeSearcher
	auth     *fakeAuth
	jobs     *fakeJobs
	browser  *browsersession.Store
	fs       afero.Fs
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records:  store.NewMemory(),
		searcher: &fakeSearcher{},
		auth:     &fakeAuth{authed: map[string]bool{}},
		jobs:     &fakeJobs{statuses: map[string]worker.Status{}},
		fs:       afero.NewMemMapFs(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.browser = browsersession.Open(f.fs, "/home/user/.pubmed-auth-sessions.json", browsersession.DefaultMaxAge, nil)
	f.browser.Now = func() time.Time { return f.now }

	f.srv = New(Deps{
		Records:     f.records,
		Searcher:    f.searcher,
		Auth:        f.auth,
		Browser:     f.browser,
		Jobs:        f.jobs,
		Hub:         progress.NewHub(0, nil),
		Metrics:     metrics.New(),
		Fs:          f.fs,
		DownloadDir: downloadDir,
	})
	f.srv.Now = func() time.Time { return f.now }
	f.srv.NewSessionID = func() string { return "11111111-2222-4333-8444-555555555555" }
	f.http = httptest.NewServer(f.srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.http.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/authenticate", map[string]string{"username": "u", "password": "p"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "11111111-2222-4333-8444-555555555555", body["sessionId"])
	assert.Equal(t, "Authentication successful", body["message"])

	sess, err := f.records.GetSession(context.Background(), "11111111-2222-4333-8444-555555555555")
	require.NoError(t, err)
	assert.True(t, sess.IsAuthenticated)
	assert.Equal(t, "u", sess.Username)

	code, body = f.do(t, http.MethodGet, "/api/session/11111111-2222-4333-8444-555555555555", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, true, body["isAuthenticated"])
}

func TestAuthenticateValidationAndFailure(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/authenticate", map[string]string{"username": "u"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Password is required", body["message"])

	code, _ = f.do(t, http.MethodPost, "/api/authenticate", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	f.auth.setFail(true)
	code, body = f.do(t, http.MethodPost, "/api/authenticate", map[string]string{"username": "u", "password": "p"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Authentication failed", body["message"])
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/session/nope", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["exists"])
	assert.Equal(t, false, body["isAuthenticated"])
	assert.Nil(t, body["session"])
}

func TestSearchReplacesStoredResults(t *testing.T) {
	f := newFixture(t)
	_, err := f.records.SaveSearchResults(context.Background(), "old", []types.Article{{PMID: "9"}})
	require.NoError(t, err)
	f.searcher.set([]types.Article{{PMID: "1", Title: "A"}, {PMID: "2", Title: "B"}}, nil)

	code, body := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "cancer", "dateFrom": "2020/01/01"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["count"])
	assert.Equal(t, pubmed.SearchParams{Query: "cancer", DateFrom: "2020/01/01", MaxResults: pubmed.DefaultMaxResults}, f.searcher.lastParams())

	code, body = f.do(t, http.MethodGet, "/api/search-results", nil)
	assert.Equal(t, http.StatusOK, code)
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "cancer", results[0].(map[string]any)["searchQuery"])
}

func TestSearchValidationAndFailure(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "x", "maxResults": 501})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "x", "maxResults": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	f.searcher.set(nil, errors.New("esearch: 500"))
	code, body := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "x"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Search failed", body["message"])
	assert.Equal(t, "esearch: 500", body["error"])
}

func TestQueueLifecycle(t *testing.T) {
	f := newFixture(t)
	_, err := f.records.SaveSearchResults(context.Background(), "q", []types.Article{
		{PMID: "1", Title: "One"}, {PMID: "2", Title: "Two"}, {PMID: "3", Title: "Three"},
	})
	require.NoError(t, err)

	code, body := f.do(t, http.MethodPost, "/api/add-to-queue", map[string]any{"pmids": []string{"3", "1", "404"}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Added 2 articles to queue", body["message"])

	code, body = f.do(t, http.MethodPost, "/api/add-manual-pmids", map[string]any{"pmids": []string{"77"}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Added 1 PMIDs to queue", body["message"])

	_, body = f.do(t, http.MethodGet, "/api/download-queue", nil)
	queue := body["queue"].([]any)
	require.Len(t, queue, 3)
	first := queue[0].(map[string]any)
	assert.Equal(t, "1", first["pmid"])
	assert.Equal(t, "One", first["title"])
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, "Manual PMID: 77", queue[2].(map[string]any)["title"])

	id := int64(first["id"].(float64))
	code, _ = f.do(t, http.MethodDelete, "/api/download-queue/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, code)
	code, body = f.do(t, http.MethodDelete, "/api/download-queue/"+itoa(id), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Item not found", body["message"])
	code, _ = f.do(t, http.MethodDelete, "/api/download-queue/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodDelete, "/api/download-queue", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Queue cleared", body["message"])
	_, body = f.do(t, http.MethodGet, "/api/download-queue", nil)
	assert.Empty(t, body["queue"])
}

func TestAddManualRejectsBadIDs(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/add-manual-pmids", map[string]any{"pmids": []string{"123", "12a"}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/add-manual-pmids", map[string]any{"pmids": "123"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/add-to-queue", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	queue, err := f.records.ListQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, body := f.do(t, http.MethodPost, "/api/download", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Session ID required", body["message"])

	code, body = f.do(t, http.MethodPost, "/api/download", map[string]string{"sessionId": "s1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Session not authenticated", body["message"])

	f.auth.login("s1")
	code, body = f.do(t, http.MethodPost, "/api/download", map[string]string{"sessionId": "s1"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "No items to download", body["message"])
	assert.Empty(t, f.jobs.snapshot())

	items, err := f.records.AddToQueue(ctx, types.QueueItem{PMID: "1"}, types.QueueItem{PMID: "2"})
	require.NoError(t, err)
	done := types.StatusCompleted
	_, err = f.records.UpdateQueueItem(ctx, items[0].ID, types.QueueUpdate{Status: &done})
	require.NoError(t, err)

	code, body = f.do(t, http.MethodPost, "/api/download", map[string]string{"sessionId": "s1"})
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "Download started", body["message"])
	assert.Equal(t, 1.0, body["total"])
	assert.Equal(t, "01JTICKET", body["ticket"])
	enqueued := f.jobs.snapshot()
	require.Len(t, enqueued, 1)
	assert.Equal(t, "2", enqueued[0][0].PMID)

	f.jobs.mu.Lock()
	f.jobs.err = worker.ErrBusy
	f.jobs.mu.Unlock()
	code, _ = f.do(t, http.MethodPost, "/api/download", map[string]string{"sessionId": "s1"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestJobStatus(t *testing.T) {
	f := newFixture(t)
	f.jobs.mu.Lock()
	f.jobs.statuses["T1"] = worker.Status{Ticket: "T1", State: worker.StateRunning, Total: 3, Processed: 1}
	f.jobs.mu.Unlock()

	code, body := f.do(t, http.MethodGet, "/api/download/T1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, 3.0, body["total"])

	code, _ = f.do(t, http.MethodGet, "/api/download/T2", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDownloadFolder(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/api/download-folder", nil)
	assert.Equal(t, downloadDir, body["path"])
}

func TestSaveBrowserSession(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/browser-session-status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["hasValidSession"])
	assert.Equal(t, 0.0, body["sessionCount"])

	code, body = f.do(t, http.MethodPost, "/api/save-browser-session", map[string]any{
		"cookies":   "ezproxy=abc; theme=dark",
		"timestamp": f.now.Add(-time.Minute).UnixMilli(),
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "browser-1772366400000", body["sessionId"])

	bs, ok := f.browser.GetValid("browser-1772366400000")
	require.True(t, ok)
	assert.Equal(t, []string{"ezproxy=abc; theme=dark"}, bs.Cookies)
	assert.Equal(t, browsersession.DefaultUserAgent, bs.UserAgent)

	snapshot, err := afero.ReadFile(f.fs, filepath.Join(downloadDir, browsersession.SnapshotFile))
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "ezproxy=abc")

	_, body = f.do(t, http.MethodGet, "/api/browser-session-status", nil)
	assert.Equal(t, true, body["hasValidSession"])
	assert.Equal(t, 1.0, body["sessionCount"])
}

func TestSaveBrowserSessionRejects(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing cookies", map[string]any{"timestamp": f.now.UnixMilli()}, "Missing required session data"},
		{"missing timestamp", map[string]any{"cookies": "ezproxy=a"}, "Missing required session data"},
		{"not json", "nope", "Missing required session data"},
		{"too old", map[string]any{"cookies": []string{"ezproxy=a"}, "timestamp": f.now.Add(-3 * time.Hour).UnixMilli()}, "Session has expired. Please log in again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/api/save-browser-session", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.want, body["error"])
		})
	}
	assert.Empty(t, f.browser.GetAllValid())
}

func TestHealthMetricsAndWebSocketRoutes(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.http.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(data), `route="/healthz"`)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
