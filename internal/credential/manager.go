// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package credential performs the EZProxy username/password login and keeps
// the resulting cookie sessions in memory.
//
// A session is marked authenticated as soon as the login POST completes at
// the transport level. The response body is not inspected, so wrong
// credentials surface later as failed downloads rather than here.
package credential

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/candidate"
	"github.com/pdiddy/pubmed-retriever/internal/httputil"
	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Browser-like headers sent with both login requests.
const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
	formType       = "application/x-www-form-urlencoded"
)

// Manager owns the credential sessions.
type Manager struct {
	LoginURL  string
	UserAgent string

	client httputil.Doer
	repo   Repository
	log    *zap.Logger
}

// NewManager returns a Manager posting to loginURL. The client must not
// follow redirects; see httputil.WithoutRedirects. A nil repo gets an
// in-memory one.
func NewManager(client httputil.Doer, loginURL, userAgent string, repo Repository, log *zap.Logger) *Manager {
	if loginURL == "" {
		loginURL = candidate.DefaultProxyLoginBase
	}
	if repo == nil {
		repo = NewMemoryRepository()
	}
	return &Manager{
		LoginURL:  loginURL,
		UserAgent: userAgent,
		client:    client,
		repo:      repo,
		log:       logging.OrNop(log),
	}
}

// Authenticate runs the two-step login for sessionID and stores the
// session. It returns an error only when a request cannot be sent.
func (m *Manager) Authenticate(ctx context.Context, sessionID, username, password string) error {
	m.log.Info("starting proxy authentication", zap.String("session", sessionID))

	initial, err := m.getLoginPage(ctx)
	if err != nil {
		return fmt.Errorf("fetching login page: %w", err)
	}

	posted, err := m.postLogin(ctx, username, password, initial, true)
	if err != nil {
		return fmt.Errorf("posting login form: %w", err)
	}

	m.repo.Put(types.CredentialSession{
		SessionID:       sessionID,
		Username:        username,
		Password:        password,
		IsAuthenticated: true,
		Cookies:         append(initial, posted...),
	})
	m.log.Info("proxy session configured",
		zap.String("session", sessionID),
		zap.Int("cookies", len(initial)+len(posted)))
	return nil
}

// IsAuthenticated reports whether sessionID holds an authenticated session.
func (m *Manager) IsAuthenticated(sessionID string) bool {
	s, ok := m.repo.Get(sessionID)
	return ok && s.IsAuthenticated
}

// Session returns a copy of the session for sessionID.
func (m *Manager) Session(sessionID string) (types.CredentialSession, bool) {
	return m.repo.Get(sessionID)
}

// Reauthenticate replays the login POST with the stored credentials and
// replaces the cookie list with the POST's Set-Cookie values. Failures are
// logged; the stale cookies stay in place.
func (m *Manager) Reauthenticate(ctx context.Context, sessionID string) {
	s, ok := m.repo.Get(sessionID)
	if !ok || !s.HasCredentials() {
		return
	}
	cookies, err := m.postLogin(ctx, s.Username, s.Password, nil, false)
	if err != nil {
		m.log.Warn("re-authentication failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	s.Cookies = cookies
	m.repo.Put(s)
	m.log.Debug("re-authenticated", zap.String("session", sessionID), zap.Int("cookies", len(cookies)))
}

// Forget drops sessionID.
func (m *Manager) Forget(sessionID string) {
	m.repo.Delete(sessionID)
}

// CookieHeader renders the stored cookies of sessionID as a Cookie header
// value. Unknown sessions yield "".
func (m *Manager) CookieHeader(sessionID string) string {
	s, ok := m.repo.Get(sessionID)
	if !ok {
		return ""
	}
	return CookieHeader(s.Cookies)
}

func (m *Manager) getLoginPage(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.LoginURL, nil)
	if err != nil {
		return nil, err
	}
	m.setBrowserHeaders(req)
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	return resp.Header.Values("Set-Cookie"), nil
}

// postLogin submits the form. The first login carries the login-page
// cookies and a Referer; the replay sends neither.
func (m *Manager) postLogin(ctx context.Context, username, password string, cookies []string, first bool) ([]string, error) {
	form := url.Values{
		"user": {username},
		"pass": {password},
		"url":  {""},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	m.setBrowserHeaders(req)
	req.Header.Set("Content-Type", formType)
	if origin := originOf(m.LoginURL); origin != "" {
		req.Header.Set("Origin", origin)
	}
	if first {
		req.Header.Set("Referer", m.LoginURL)
		req.Header.Set("Cookie", CookieHeader(cookies))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	return resp.Header.Values("Set-Cookie"), nil
}

func (m *Manager) setBrowserHeaders(req *http.Request) {
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	req.Header.Set("Accept", acceptHTML)
	req.Header.Set("Accept-Language", acceptLanguage)
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

// CookieHeader reduces each raw Set-Cookie value to its name=value pair and
// joins them with "; ". Values that do not parse are passed through.
func CookieHeader(setCookies []string) string {
	pairs := make([]string, 0, len(setCookies))
	for _, raw := range setCookies {
		if c, err := http.ParseSetCookie(raw); err == nil {
			pairs = append(pairs, c.Name+"="+c.Value)
			continue
		}
		pairs = append(pairs, raw)
	}
	return strings.Join(pairs, "; ")
}
