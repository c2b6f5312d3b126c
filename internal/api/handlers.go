package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

type userSummary struct {
	UserID               string `json:"user_id"`
	SubscriptionCount    int    `json:"subscription_count"`
	UndeliveredCount     int    `json:"undelivered_count"`
	EnabledSubscriptions int    `json:"enabled_subscriptions"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	includeEmpty, _ := strconv.ParseBool(r.URL.Query().Get("include_empty"))

	subs, err := s.store.ListSubscriptions(r.Context(), "")
	if err != nil {
		writeStoreError(w, err)
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	summaries := map[string]*userSummary{}
	for _, sub := range subs {
		sum, ok := summaries[sub.UserID]
		if !ok {
			sum = &userSummary{UserID: sub.UserID}
			summaries[sub.UserID] = sum
		}
		sum.SubscriptionCount++
		if sub.Enabled {
			sum.EnabledSubscriptions++
		}
	}
	for userID, count := range stats.PerUser {
		sum, ok := summaries[userID]
		if !ok {
			sum = &userSummary{UserID: userID}
			summaries[userID] = sum
		}
		sum.UndeliveredCount = count
	}

	out := make([]*userSummary, 0, len(summaries))
	for _, sum := range summaries {
		if !includeEmpty && sum.UndeliveredCount == 0 {
			continue
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	eventType := domain.EventType(r.URL.Query().Get("event_type"))
	limit := parseIntParam(r, "limit", 0)

	events, err := s.store.GetUndeliveredEvents(r.Context(), uid, eventType, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	mid := r.PathValue("mid")
	event, err := s.store.GetEvent(r.Context(), mid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if event.UserID != r.PathValue("uid") {
		writeError(w, http.StatusNotFound, "message not found for this user")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleDeleteUserMessages(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if mid := r.PathValue("mid"); mid != "" {
		count, err := s.store.DeleteUndelivered(r.Context(), []string{mid}, uid)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": count})
		return
	}

	if before := r.URL.Query().Get("before_timestamp"); before != "" {
		ts, err := time.Parse(time.RFC3339, before)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before_timestamp, expected RFC3339")
			return
		}
		count, err := s.store.ClearEvents(r.Context(), uid, ts)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": count})
		return
	}

	count, err := s.store.DeleteUndelivered(r.Context(), nil, uid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleListUndelivered(w http.ResponseWriter, r *http.Request) {
	eventType := domain.EventType(r.URL.Query().Get("event_type"))
	limit := parseIntParam(r, "limit", 0)

	events, err := s.store.GetUndeliveredEvents(r.Context(), "", eventType, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleUndeliveredStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type deleteUndeliveredRequest struct {
	EventIDs []string `json:"event_ids,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
}

func (s *Server) handleDeleteUndelivered(w http.ResponseWriter, r *http.Request) {
	var req deleteUndeliveredRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if len(req.EventIDs) == 0 && req.UserID == "" {
		writeError(w, http.StatusBadRequest, "event_ids or user_id is required")
		return
	}
	count, err := s.store.DeleteUndelivered(r.Context(), req.EventIDs, req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var sub domain.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	sub.UserID = r.PathValue("uid")
	if sub.SubscriptionID == "" {
		sub.SubscriptionID = uuid.NewString()
	}
	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpsertSubscription(r.Context(), sub); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.GetSubscription(r.Context(), r.PathValue("sid"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sub.UserID != r.PathValue("uid") {
		writeError(w, http.StatusNotFound, "subscription not found for this user")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var sub domain.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	sub.UserID = r.PathValue("uid")
	sub.SubscriptionID = r.PathValue("sid")
	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpsertSubscription(r.Context(), sub); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSubscription(r.Context(), r.PathValue("sid")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type flushRequest struct {
	UserID        string `json:"user_id,omitempty"`
	DryRun        bool   `json:"dry_run"`
	ForceDelivery bool   `json:"force_delivery"`
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	report, err := s.flush.Flush(r.Context(), req.UserID, req.DryRun, req.ForceDelivery)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
