package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/scheduler"
	"github.com/wesm/pushvault/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxPushBytes    = 1 << 20
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ListResponse is one page of messages. NextBefore is the cursor for the
// following page, absent on the last one.
type ListResponse struct {
	Messages   []store.Message `json:"messages"`
	NextBefore *float64        `json:"next_before,omitempty"`
}

// SearchResponse is one page of search matches.
type SearchResponse struct {
	Query      string          `json:"query"`
	Total      int64           `json:"total"`
	Messages   []store.Message `json:"messages"`
	NextBefore *float64        `json:"next_before,omitempty"`
}

// GroupsResponse lists each group's newest message with its unread count.
type GroupsResponse struct {
	Groups []store.GroupSummary `json:"groups"`
}

// ReadRequest selects messages to mark read: explicit ids, one group, or
// everything when All is set.
type ReadRequest struct {
	IDs   []string `json:"ids,omitempty"`
	Group *string  `json:"group,omitempty"`
	All   bool     `json:"all,omitempty"`
}

// CountResponse reports how many rows a write touched.
type CountResponse struct {
	Count int64  `json:"count"`
	Group string `json:"group,omitempty"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// requireVault answers 503 and returns false when no store is attached.
func (s *Server) requireVault(w http.ResponseWriter) bool {
	if s.vault == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return false
	}
	return true
}

func (s *Server) requireScheduler(w http.ResponseWriter) bool {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not running")
		return false
	}
	return true
}

// pageParams reads group, limit and before from the query string.
func (s *Server) pageParams(r *http.Request) (group *string, limit int, before *time.Time, err error) {
	q := r.URL.Query()
	if q.Has("group") {
		g := q.Get("group")
		group = &g
	}

	limit = s.cfg.Search.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if v := q.Get("limit"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 1 {
			return nil, 0, nil, errors.New("limit must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}

	if v := q.Get("before"); v != "" {
		sec, perr := strconv.ParseFloat(v, 64)
		if perr != nil || math.IsNaN(sec) || math.IsInf(sec, 0) {
			return nil, 0, nil, errors.New("before must be seconds since the epoch")
		}
		t := time.UnixMilli(int64(math.Round(sec * 1000))).UTC()
		before = &t
	}
	return group, limit, before, nil
}

// nextCursor returns the createDate of the last message when the page is
// full, so the client can ask for the next one.
func nextCursor(msgs []store.Message, limit int) *float64 {
	if len(msgs) == 0 || len(msgs) < limit {
		return nil
	}
	sec := float64(msgs[len(msgs)-1].CreateDate.UnixMilli()) / 1000
	return &sec
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	var group *string
	if q := r.URL.Query(); q.Has("group") {
		g := q.Get("group")
		group = &g
	}
	writeJSON(w, http.StatusOK, s.vault.Counts(r.Context(), group))
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	writeJSON(w, http.StatusOK, GroupsResponse{Groups: s.vault.Groups(r.Context())})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	group, limit, before, err := s.pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	msgs := s.vault.List(r.Context(), query.ListOptions{Group: group, Limit: limit, Before: before})
	writeJSON(w, http.StatusOK, ListResponse{Messages: msgs, NextBefore: nextCursor(msgs, limit)})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	id := pathParam(r, "id")
	msg := s.vault.Get(r.Context(), id)
	if msg == nil {
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	group, limit, before, err := s.pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	text := r.URL.Query().Get("q")
	msgs, total := s.vault.Search(r.Context(), query.SearchOptions{
		Text:   text,
		Group:  group,
		Before: before,
		Limit:  limit,
	})
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:      text,
		Total:      total,
		Messages:   msgs,
		NextBefore: nextCursor(msgs, limit),
	})
}

// handlePushMessage stores an inbound push. Payloads that carry nothing
// to show are accepted and dropped with 204.
func (s *Server) handlePushMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}

	var p messages.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBytes))
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	msg, ok, err := s.vault.Ingest(r.Context(), p)
	if err != nil {
		s.logger.Error("failed to store message", "id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store message")
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}

	var req ReadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var (
		n   int64
		err error
	)
	switch {
	case len(req.IDs) > 0:
		n, err = s.vault.MarkRead(r.Context(), req.IDs...)
	case req.Group != nil || req.All:
		n, err = s.vault.MarkAllRead(r.Context(), req.Group)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "Provide ids, group, or all")
		return
	}
	if err != nil {
		s.logger.Error("failed to mark read", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	id := pathParam(r, "id")
	group, ok, err := s.vault.DeleteMessage(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to delete message", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete message")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: 1, Group: group})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	group := pathParam(r, "group")
	n, err := s.vault.DeleteGroup(r.Context(), group)
	if err != nil {
		s.logger.Error("failed to delete group", "group", group, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete group")
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n, Group: group})
}

// handleSweep starts an expiry sweep in the background.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	if err := s.scheduler.Trigger(scheduler.JobSweep); err != nil {
		s.logger.Warn("failed to trigger sweep", "error", err)
		writeError(w, http.StatusConflict, "sweep_error", err.Error())
		return
	}
	s.logger.Info("sweep triggered via API")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Sweep started",
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Jobs:    s.scheduler.Status(),
	})
}
