package web

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemulinna/council/internal/streaming"
)

func TestPersistingExecutorRecordsConversationAndResult(t *testing.T) {
	e := newTestEnv(t)
	pe := newPersistingExecutor(e.exec, e.db)

	var events []streaming.Event
	emit := streaming.EmitterFunc(func(ev streaming.Event) { events = append(events, ev) })

	cfg := streaming.CouncilConfig{Name: "test", Nodes: []streaming.NodeConfig{{ID: "n1", ModelID: "claude-haiku-4-5", RoleID: "generalist"}}}
	err := pe.Execute(context.Background(), "conv-1", "what is go", cfg, emit)
	require.NoError(t, err)
	require.Equal(t, 1, e.exec.calls)
	require.NotEmpty(t, events)

	stored, err := e.db.GetConversation("conv-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "what is go", stored.Query)
	require.NotNil(t, stored.FinalAnswer)
	require.Equal(t, "final", *stored.FinalAnswer)
	require.Equal(t, 30, stored.TotalTokens)
	require.InDelta(t, 0.02, stored.TotalCost, 0.0001)
}

func TestPersistingExecutorPropagatesUnderlyingError(t *testing.T) {
	e := newTestEnv(t)
	e.exec.err = context.DeadlineExceeded
	pe := newPersistingExecutor(e.exec, e.db)

	emit := streaming.EmitterFunc(func(streaming.Event) {})
	cfg := streaming.CouncilConfig{Name: "test"}
	err := pe.Execute(context.Background(), "conv-2", "q", cfg, emit)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := e.db.GetConversation("conv-2")
	require.NoError(t, err)
	require.NotNil(t, stored)
}
