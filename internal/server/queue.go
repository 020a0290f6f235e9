// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/acquire"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/internal/store"
	"github.com/pdiddy/pubmed-retriever/internal/worker"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

type searchRequest struct {
	Query      string `json:"query"`
	DateFrom   string `json:"dateFrom"`
	DateTo     string `json:"dateTo"`
	MaxResults *int   `json:"maxResults"`
}

type searchResponse struct {
	Success bool                 `json:"success"`
	Results []types.SearchRecord `json:"results"`
	Count   int                  `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(w, r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, failure("Invalid request body"))
		return
	}
	if req.Query == "" {
		s.writeJSON(w, http.StatusBadRequest, failure("Search query is required"))
		return
	}
	limit := pubmed.DefaultMaxResults
	if req.MaxResults != nil {
		limit = *req.MaxResults
		if limit < 1 || limit > pubmed.MaxResultsLimit {
			s.writeJSON(w, http.StatusBadRequest, failure(fmt.Sprintf("maxResults must be between 1 and %d", pubmed.MaxResultsLimit)))
			return
		}
	}

	ctx := r.Context()
	if err := s.d.Records.ClearSearchResults(ctx); err != nil {
		s.searchFailed(w, err)
		return
	}
	articles, err := s.d.Searcher.Search(ctx, pubmed.SearchParams{
		Query:      req.Query,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		MaxResults: limit,
	})
	if err != nil {
		s.searchFailed(w, err)
		return
	}
	records, err := s.d.Records.SaveSearchResults(ctx, req.Query, articles)
	if err != nil {
		s.searchFailed(w, err)
		return
	}
	if records == nil {
		records = []types.SearchRecord{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Success: true, Results: records, Count: len(records)})
}

func (s *Server) searchFailed(w http.ResponseWriter, err error) {
	s.log.Error("search failed", zap.Error(err))
	m := failure("Search failed")
	m.Error = err.Error()
	s.writeJSON(w, http.StatusInternalServerError, m)
}

func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	records, err := s.d.Records.ListSearchResults(r.Context(), "")
	if err != nil {
		s.log.Error("listing search results", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, message{Message: "Failed to get search results"})
		return
	}
	if records == nil {
		records = []types.SearchRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": records})
}

type pmidsRequest struct {
	PMIDs []string `json:"pmids"`
}

type addedResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Items   []types.QueueItem `json:"items"`
}

func (s *Server) handleAddManual(w http.ResponseWriter, r *http.Request) {
	var req pmidsRequest
	if err := decode(w, r, &req); err != nil || req.PMIDs == nil {
		s.writeJSON(w, http.StatusBadRequest, failure("PMIDs must be an array"))
		return
	}
	items := make([]types.QueueItem, 0, len(req.PMIDs))
	for _, id := range req.PMIDs {
		if !digitsOnly.MatchString(id) {
			s.writeJSON(w, http.StatusBadRequest, failure("Invalid PubMed ID format: "+id))
			return
		}
		items = append(items, types.QueueItem{PMID: id, Title: "Manual PMID: " + id})
	}
	s.addToQueue(w, r, items, fmt.Sprintf("Added %d PMIDs to queue", len(items)))
}

func (s *Server) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	var req pmidsRequest
	if err := decode(w, r, &req); err != nil || req.PMIDs == nil {
		s.writeJSON(w, http.StatusBadRequest, message{Message: "PMIDs must be an array"})
		return
	}
	wanted := make(map[string]bool, len(req.PMIDs))
	for _, id := range req.PMIDs {
		wanted[id] = true
	}

	records, err := s.d.Records.ListSearchResults(r.Context(), "")
	if err != nil {
		s.log.Error("listing search results", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, failure("Failed to add articles to queue"))
		return
	}
	var items []types.QueueItem
	for _, rec := range records {
		if wanted[rec.PMID] {
			items = append(items, types.QueueItem{PMID: rec.PMID, Title: rec.Title})
		}
	}
	s.addToQueue(w, r, items, "")
}

func (s *Server) addToQueue(w http.ResponseWriter, r *http.Request, items []types.QueueItem, msg string) {
	added := []types.QueueItem{}
	if len(items) > 0 {
		var err error
		added, err = s.d.Records.AddToQueue(r.Context(), items...)
		if err != nil {
			s.log.Error("adding to queue", zap.Error(err))
			s.writeJSON(w, http.StatusInternalServerError, failure("Failed to add articles to queue"))
			return
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("Added %d articles to queue", len(added))
	}
	s.writeJSON(w, http.StatusOK, addedResponse{Success: true, Message: msg, Items: added})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.d.Records.ListQueue(r.Context())
	if err != nil {
		s.log.Error("listing queue", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, message{Message: "Failed to get download queue"})
		return
	}
	if queue == nil {
		queue = []types.QueueItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

func (s *Server) handleRemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, failure("Invalid item id"))
		return
	}
	switch err := s.d.Records.RemoveQueueItem(r.Context(), id); {
	case errors.Is(err, store.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, failure("Item not found"))
	case err != nil:
		s.log.Error("removing queue item", zap.Int64("id", id), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, failure("Failed to remove item"))
	default:
		s.writeJSON(w, http.StatusOK, message{Success: ptrTrue(), Message: "Item removed from queue"})
	}
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Records.ClearQueue(r.Context()); err != nil {
		s.log.Error("clearing queue", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, failure("Failed to clear queue"))
		return
	}
	s.writeJSON(w, http.StatusOK, message{Success: ptrTrue(), Message: "Queue cleared"})
}

type downloadRequest struct {
	SessionID string `json:"sessionId"`
}

type downloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Total   int    `json:"total,omitempty"`
	Ticket  string `json:"ticket,omitempty"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	_ = decode(w, r, &req)
	if req.SessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, message{Message: "Session ID required"})
		return
	}
	if !s.d.Auth.IsAuthenticated(req.SessionID) {
		s.writeJSON(w, http.StatusUnauthorized, message{Message: acquire.MsgNotAuthenticated})
		return
	}

	queue, err := s.d.Records.ListQueue(r.Context())
	if err != nil {
		s.log.Error("listing queue", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, failure("Download failed"))
		return
	}
	var pending []types.QueueItem
	for _, it := range queue {
		if it.Status == types.StatusPending {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		s.writeJSON(w, http.StatusOK, downloadResponse{Success: true, Message: "No items to download"})
		return
	}

	ticket, err := s.d.Jobs.Enqueue(req.SessionID, pending)
	switch {
	case errors.Is(err, worker.ErrBusy), errors.Is(err, worker.ErrStopped):
		s.writeJSON(w, http.StatusServiceUnavailable, failure("Download failed: "+err.Error()))
		return
	case err != nil:
		s.log.Error("enqueueing download", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, failure("Download failed"))
		return
	}
	s.writeJSON(w, http.StatusAccepted, downloadResponse{
		Success: true,
		Message: "Download started",
		Total:   len(pending),
		Ticket:  ticket,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.d.Jobs.Status(mux.Vars(r)["ticket"])
	if !ok {
		s.writeJSON(w, http.StatusNotFound, failure("Unknown download ticket"))
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDownloadFolder(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"path": s.d.DownloadDir})
}

func ptrTrue() *bool {
	t := true
	return &t
}
