package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/teemulinna/council/internal/catalog"
	"github.com/teemulinna/council/internal/db"
)

const modelsCacheTTL = 24 * time.Hour

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimit extracts a "limit" query param with a default, rejecting
// non-integers and values below 1.
func parseLimit(r *http.Request, defaultLimit int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return n, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "council",
		"status":  "ok",
	})
}

// handleModels serves GET /api/models?refresh=bool. It persists the
// built-in catalog into the cached_models table on first use or when the
// cache has gone stale (or refresh=true is supplied), and reports the
// caller's favourites alongside the tier/pricing data.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	cachedAt, hasCache, err := s.db.CacheAge()
	if err != nil {
		log.Printf("handleModels: cache age: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	stale := !hasCache || time.Since(cachedAt) > modelsCacheTTL
	if stale || forceRefresh {
		if err := s.refreshModelCache(); err != nil {
			log.Printf("handleModels: refresh: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		cachedAt = time.Now()
		stale = false
	}

	rows, err := s.db.ListCachedModels()
	if err != nil {
		log.Printf("handleModels: list: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	favourites, err := s.db.ListFavouriteModels()
	if err != nil {
		log.Printf("handleModels: favourites: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	isFavourite := make(map[string]bool, len(favourites))
	for _, id := range favourites {
		isFavourite[id] = true
	}

	models := make([]APIModel, 0, len(rows))
	for _, row := range rows {
		info, _ := catalog.ModelByID(row.ID)
		models = append(models, APIModel{
			ID:               row.ID,
			Provider:         row.Provider,
			Tier:             row.Tier,
			ContextLength:    row.ContextLength,
			InputPricePer1M:  info.InputPricePer1M,
			OutputPricePer1M: info.OutputPricePer1M,
			Favourite:        isFavourite[row.ID],
		})
	}

	writeJSON(w, http.StatusOK, APIModelsResponse{
		Models:   models,
		CachedAt: cachedAt.Format(time.RFC3339),
		Stale:    false,
	})
}

func (s *Server) refreshModelCache() error {
	rows := make([]db.CachedModel, 0, len(catalog.Models))
	for _, m := range catalog.Models {
		pricing, err := json.Marshal(map[string]float64{
			"inputPer1M":  m.InputPricePer1M,
			"outputPer1M": m.OutputPricePer1M,
		})
		if err != nil {
			return fmt.Errorf("marshal pricing for %q: %w", m.ID, err)
		}
		rows = append(rows, db.CachedModel{
			ID:            m.ID,
			Name:          m.ID,
			Provider:      m.Provider,
			Tier:          m.Tier,
			ContextLength: m.ContextLength,
			Pricing:       string(pricing),
		})
	}
	return s.db.ReplaceCachedModels(rows)
}

// handleRoles serves GET /api/roles, merging the built-in role catalog with
// any persisted custom roles.
func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles := make([]APIRole, 0, len(catalog.Roles))
	for _, role := range catalog.Roles {
		roles = append(roles, APIRole{ID: role.ID, Name: role.Name, Description: role.Description})
	}

	custom, err := s.db.ListCustomRoles()
	if err != nil {
		log.Printf("handleRoles: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	for _, role := range custom {
		roles = append(roles, APIRole{ID: role.ID, Name: role.Name, Description: role.Description, Custom: true})
	}

	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// handlePatterns serves GET /api/patterns, optionally filtered by category.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	patterns := make([]APIPattern, 0, len(catalog.Patterns))
	for _, p := range catalog.Patterns {
		if category != "" && p.Category != category {
			continue
		}
		patterns = append(patterns, APIPattern{ID: p.ID, Name: p.Name, Category: p.Category, Temperature: p.Temperature})
	}

	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

// handleHistory serves GET /api/history?limit=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.db.ListConversations(limit)
	if err != nil {
		log.Printf("handleHistory: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	summaries := make([]APIConversationSummary, 0, len(rows))
	for _, c := range rows {
		summaries = append(summaries, APIConversationSummary{
			ID:          c.ID,
			Query:       c.Query,
			TotalTokens: c.TotalTokens,
			TotalCost:   c.TotalCost,
			CreatedAt:   c.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, APIHistoryResponse{Conversations: summaries})
}

// handleLogs serves GET /api/logs/{conv}?round_number=.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	conv := r.PathValue("conv")
	if conv == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	var roundFilter *int
	if v := r.URL.Query().Get("round_number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "round_number must be an integer")
			return
		}
		roundFilter = &n
	}

	rows, err := s.db.ListExecutionLogs(conv, roundFilter)
	if err != nil {
		log.Printf("handleLogs: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	logs := make([]APIExecutionLog, 0, len(rows))
	for _, e := range rows {
		logs = append(logs, APIExecutionLog{
			ID:            e.ID,
			RoundNumber:   e.RoundNumber,
			Stage:         e.Stage,
			NodeID:        e.NodeID,
			Model:         derefOr(e.Model, ""),
			Role:          derefOr(e.Role, ""),
			OutputContent: derefOr(e.OutputContent, ""),
			TokensUsed:    e.TokensUsed,
			Cost:          e.Cost,
			DurationMs:    e.DurationMs,
			Timestamp:     e.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, APILogsResponse{ConversationID: conv, Logs: logs})
}

// handleDecisionTree serves GET /api/logs/{conv}/decision-tree.
func (s *Server) handleDecisionTree(w http.ResponseWriter, r *http.Request) {
	conv := r.PathValue("conv")
	if conv == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	rows, err := s.db.ListDecisionTree(conv)
	if err != nil {
		log.Printf("handleDecisionTree: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	entries := make([]APIDecisionEntry, 0, len(rows))
	for _, e := range rows {
		entries = append(entries, APIDecisionEntry{
			ID:           e.ID,
			RoundNumber:  e.RoundNumber,
			ParentNodeID: derefOr(e.ParentNodeID, ""),
			NodeID:       e.NodeID,
			DecisionType: e.DecisionType,
			DecisionData: derefOr(e.DecisionData, ""),
			Timestamp:    e.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, APIDecisionTreeResponse{ConversationID: conv, Entries: entries})
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
