package web

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemulinna/council/internal/cache"
	"github.com/teemulinna/council/internal/config"
	"github.com/teemulinna/council/internal/cost"
	"github.com/teemulinna/council/internal/db"
	"github.com/teemulinna/council/internal/ratelimit"
	"github.com/teemulinna/council/internal/streaming"
)

type fakeExecutor struct {
	calls int
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, conversationID, query string, cfg streaming.CouncilConfig, emit streaming.Emitter) error {
	f.calls++
	emit.Emit(streaming.StageUpdate(conversationID, 1))
	emit.Emit(streaming.Response(conversationID, "n1", "reply", 10, 5, 0.01))
	emit.Emit(streaming.FinalAnswer(conversationID, "final", 10, 5, 0.01))
	emit.Emit(streaming.Complete(conversationID, 30, 0.02))
	return f.err
}

type testEnv struct {
	srv *Server
	db  *db.DB
	exec *fakeExecutor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "council.db")
	database, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	respCache := cache.NewMemoryCache()
	acct := cost.New(100)
	limiter := ratelimit.New()
	exec := &fakeExecutor{}

	cfg := config.Config{Host: "127.0.0.1", Port: 0}
	srv := New(cfg, database, respCache, acct, limiter, exec)

	return &testEnv{srv: srv, db: database, exec: exec}
}
