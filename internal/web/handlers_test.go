package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemulinna/council/internal/db"
)

func doGET(t *testing.T, e *testEnv, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.srv.mux.ServeHTTP(w, req)
	return w
}

func TestHandleIndexReturnsOK(t *testing.T) {
	e := newTestEnv(t)
	w := doGET(t, e, "/")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleModelsPopulatesCacheOnFirstCall(t *testing.T) {
	e := newTestEnv(t)
	w := doGET(t, e, "/api/models")
	require.Equal(t, http.StatusOK, w.Code)

	var resp APIModelsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Models)
	require.False(t, resp.Stale)

	rows, err := e.db.ListCachedModels()
	require.NoError(t, err)
	require.Len(t, rows, len(resp.Models))
}

func TestHandleModelsReportsFavourites(t *testing.T) {
	e := newTestEnv(t)
	doGET(t, e, "/api/models")
	require.NoError(t, e.db.AddFavouriteModel("claude-sonnet-4-5"))

	w := doGET(t, e, "/api/models")
	var resp APIModelsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	found := false
	for _, m := range resp.Models {
		if m.ID == "claude-sonnet-4-5" {
			found = true
			require.True(t, m.Favourite)
		}
	}
	require.True(t, found)
}

func TestHandleRolesIncludesBuiltinAndCustom(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.InsertCustomRole(&db.CustomRole{ID: "my-role", Name: "Mine", Description: "desc", Prompt: "p"}))

	w := doGET(t, e, "/api/roles")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Roles []APIRole `json:"roles"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	var sawBuiltin, sawCustom bool
	for _, r := range resp.Roles {
		if r.ID == "generalist" && !r.Custom {
			sawBuiltin = true
		}
		if r.ID == "my-role" && r.Custom {
			sawCustom = true
		}
	}
	require.True(t, sawBuiltin)
	require.True(t, sawCustom)
}

func TestHandlePatternsFiltersByCategory(t *testing.T) {
	e := newTestEnv(t)
	w := doGET(t, e, "/api/patterns?category=reasoning")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Patterns []APIPattern `json:"patterns"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Patterns)
	for _, p := range resp.Patterns {
		require.Equal(t, "reasoning", p.Category)
	}
}

func TestHandleHistoryOrdersMostRecentFirst(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.InsertConversation(&db.Conversation{ID: "c1", Query: "q1", Config: "{}"}))
	require.NoError(t, e.db.InsertConversation(&db.Conversation{ID: "c2", Query: "q2", Config: "{}"}))
	_, err := e.db.Conn().Exec(`UPDATE conversations SET created_at = '2000-01-01 00:00:00' WHERE id = 'c1'`)
	require.NoError(t, err)

	w := doGET(t, e, "/api/history")
	require.Equal(t, http.StatusOK, w.Code)

	var resp APIHistoryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 2)
	require.Equal(t, "c2", resp.Conversations[0].ID)
	require.Equal(t, "c1", resp.Conversations[1].ID)
}

func TestHandleLogsFiltersByRoundNumber(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.InsertConversation(&db.Conversation{ID: "c1", Query: "q1", Config: "{}"}))
	_, err := e.db.InsertExecutionLog(&db.ExecutionLog{ConversationID: "c1", RoundNumber: 1, Stage: 1, NodeID: "n1"})
	require.NoError(t, err)
	_, err = e.db.InsertExecutionLog(&db.ExecutionLog{ConversationID: "c1", RoundNumber: 2, Stage: 1, NodeID: "n1"})
	require.NoError(t, err)

	w := doGET(t, e, "/api/logs/c1?round_number=1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp APILogsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Logs, 1)
	require.Equal(t, 1, resp.Logs[0].RoundNumber)
}

func TestHandleDecisionTreeReturnsAppendOnlyOrder(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.InsertConversation(&db.Conversation{ID: "c1", Query: "q1", Config: "{}"}))
	_, err := e.db.InsertDecisionTreeEntry(&db.DecisionTreeEntry{ConversationID: "c1", RoundNumber: 1, NodeID: "n1", DecisionType: "response_generated"})
	require.NoError(t, err)

	w := doGET(t, e, "/api/logs/c1/decision-tree")
	require.Equal(t, http.StatusOK, w.Code)

	var resp APIDecisionTreeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "response_generated", resp.Entries[0].DecisionType)
}

func TestHandleHistoryRejectsInvalidLimit(t *testing.T) {
	e := newTestEnv(t)
	w := doGET(t, e, "/api/history?limit=-1")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
