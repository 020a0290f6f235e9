// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/browsersession"
	"github.com/pdiddy/pubmed-retriever/internal/store"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, failure("Invalid request body"))
		return
	}
	switch {
	case req.Username == "":
		s.writeJSON(w, http.StatusBadRequest, failure("Username is required"))
		return
	case req.Password == "":
		s.writeJSON(w, http.StatusBadRequest, failure("Password is required"))
		return
	}

	id := s.NewSessionID()
	if err := s.d.Auth.Authenticate(r.Context(), id, req.Username, req.Password); err != nil {
		s.log.Warn("authentication failed", zap.String("session", id), zap.Error(err))
		s.writeJSON(w, http.StatusUnauthorized, failure("Authentication failed"))
		return
	}

	if _, err := s.d.Records.CreateSession(r.Context(), types.DownloadSession{
		SessionID:       id,
		Username:        req.Username,
		IsAuthenticated: true,
	}); err != nil {
		s.log.Error("recording session", zap.String("session", id), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, failure("Internal server error"))
		return
	}
	s.writeJSON(w, http.StatusOK, authenticateResponse{Success: true, SessionID: id, Message: "Authentication successful"})
}

type sessionResponse struct {
	Exists          bool                   `json:"exists"`
	IsAuthenticated bool                   `json:"isAuthenticated"`
	Session         *types.DownloadSession `json:"session"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	resp := sessionResponse{IsAuthenticated: s.d.Auth.IsAuthenticated(id)}

	sess, err := s.d.Records.GetSession(r.Context(), id)
	switch {
	case err == nil:
		resp.Exists = true
		resp.Session = &sess
	case !errors.Is(err, store.ErrNotFound):
		s.log.Error("reading session", zap.String("session", id), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, message{Message: "Failed to check session"})
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveBrowserSession(w http.ResponseWriter, r *http.Request) {
	raw, err := readAll(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, message{Error: "Missing required session data"})
		return
	}
	var req browsersession.Snapshot
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Cookies) == 0 || req.Timestamp == 0 {
		s.writeJSON(w, http.StatusBadRequest, message{Error: "Missing required session data"})
		return
	}

	now := s.Now()
	if req.Timestamp < now.Add(-browsersession.DefaultMaxAge).UnixMilli() {
		s.writeJSON(w, http.StatusBadRequest, message{Error: "Session has expired. Please log in again."})
		return
	}

	ua := req.UserAgent
	if ua == "" {
		ua = browsersession.DefaultUserAgent
	}
	id := "browser-" + strconv.FormatInt(now.UnixMilli(), 10)
	if _, err := s.d.Browser.Store(id, req.Cookies, ua); err != nil {
		s.log.Error("saving browser session", zap.String("session", id), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, message{Error: "Failed to save session"})
		return
	}
	s.writeSnapshot(raw)

	s.writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
	}{true, id})
}

// writeSnapshot keeps a copy of the submitted session next to the PDFs so
// the next start can reload it. Failure only costs the copy.
func (s *Server) writeSnapshot(raw []byte) {
	if s.d.DownloadDir == "" {
		return
	}
	if err := s.d.Fs.MkdirAll(s.d.DownloadDir, 0o755); err != nil {
		s.log.Warn("creating download folder", zap.Error(err))
		return
	}
	path := filepath.Join(s.d.DownloadDir, browsersession.SnapshotFile)
	if err := afero.WriteFile(s.d.Fs, path, raw, 0o600); err != nil {
		s.log.Warn("writing session snapshot", zap.String("path", path), zap.Error(err))
	}
}

type browserStatusResponse struct {
	HasValidSession bool `json:"hasValidSession"`
	SessionCount    int  `json:"sessionCount"`
}

func (s *Server) handleBrowserSessionStatus(w http.ResponseWriter, _ *http.Request) {
	n := len(s.d.Browser.GetAllValid())
	s.writeJSON(w, http.StatusOK, browserStatusResponse{HasValidSession: n > 0, SessionCount: n})
}
