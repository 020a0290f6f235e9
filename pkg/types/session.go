// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"strings"
	"time"
)

// CredentialSession is the proxy login state for one logical session.
// It lives in memory only; Password is never serialized.
type CredentialSession struct {
	SessionID       string   `json:"sessionId"`
	Username        string   `json:"username"`
	Password        string   `json:"-"`
	IsAuthenticated bool     `json:"isAuthenticated"`
	Cookies         []string `json:"-"`
}

// HasCredentials reports whether the session can replay the login form.
func (s CredentialSession) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// BrowserSession is a cookie snapshot exported from an already authenticated
// browser. LastAuthenticated is encoded as Unix milliseconds.
type BrowserSession struct {
	SessionID         string    `json:"sessionId"`
	Cookies           []string  `json:"cookies"`
	UserAgent         string    `json:"userAgent"`
	LastAuthenticated time.Time `json:"-"`
	IsValid           bool      `json:"isValid"`
}

type browserSessionJSON struct {
	SessionID         string   `json:"sessionId"`
	Cookies           []string `json:"cookies"`
	UserAgent         string   `json:"userAgent"`
	LastAuthenticated int64    `json:"lastAuthenticated"`
	IsValid           bool     `json:"isValid"`
}

// MarshalJSON encodes LastAuthenticated as Unix milliseconds.
func (s BrowserSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(browserSessionJSON{
		SessionID:         s.SessionID,
		Cookies:           s.Cookies,
		UserAgent:         s.UserAgent,
		LastAuthenticated: s.LastAuthenticated.UnixMilli(),
		IsValid:           s.IsValid,
	})
}

// UnmarshalJSON decodes the Unix-millisecond LastAuthenticated field.
func (s *BrowserSession) UnmarshalJSON(data []byte) error {
	var raw browserSessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = BrowserSession{
		SessionID:         raw.SessionID,
		Cookies:           raw.Cookies,
		UserAgent:         raw.UserAgent,
		LastAuthenticated: time.UnixMilli(raw.LastAuthenticated),
		IsValid:           raw.IsValid,
	}
	return nil
}

// CookieHeader joins the snapshot cookies into a Cookie header value.
func (s BrowserSession) CookieHeader() string {
	return strings.Join(s.Cookies, "; ")
}

// DownloadSession is the record-store view of a logged-in user session.
// It carries no secrets.
type DownloadSession struct {
	SessionID       string    `json:"sessionId"`
	Username        string    `json:"username,omitempty"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	TotalItems      int       `json:"totalItems"`
	CompletedItems  int       `json:"completedItems"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SessionUpdate carries the DownloadSession fields to change. Nil fields are
// left untouched.
type SessionUpdate struct {
	IsAuthenticated *bool
	TotalItems      *int
	CompletedItems  *int
}
