package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemulinna/council/internal/ratelimit"
)

// fakeConn implements Conn over in-memory frame queues so Session.Run can
// be driven deterministically in tests without a real socket.
type fakeConn struct {
	mu      sync.Mutex
	inbound []any
	read    int
	written []Event
}

func (c *fakeConn) ReadJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.read >= len(c.inbound) {
		return io.EOF
	}
	raw, err := json.Marshal(c.inbound[c.read])
	if err != nil {
		return err
	}
	c.read++
	return json.Unmarshal(raw, v)
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := v.(Event)
	if !ok {
		return nil
	}
	c.written = append(c.written, e)
	return nil
}

func (c *fakeConn) Close() error { return nil }

type fakeExecutor struct {
	calls int
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, conversationID, query string, _ CouncilConfig, emit Emitter) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	emit.Emit(Response(conversationID, "n1", "answer to "+query, 5, 5, 0.01))
	return nil
}

func TestSessionRunDispatchesExecuteFrames(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{inbound: []any{
		map[string]any{"type": "execute", "query": "what is go"},
	}}
	exec := &fakeExecutor{}
	limiter := ratelimit.New()
	s := NewSession(conn, exec, limiter, "client-a")

	err := s.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, exec.calls)
	require.Len(t, conn.written, 1)
	require.Equal(t, "response", conn.written[0].Type)
	require.Equal(t, s.ConversationID(), conn.written[0].ConversationID)
}

func TestSessionRunIgnoresUnknownFrameTypes(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{inbound: []any{
		map[string]any{"type": "ping"},
		map[string]any{"type": "execute", "query": "hi"},
	}}
	exec := &fakeExecutor{}
	s := NewSession(conn, exec, ratelimit.New(), "client-a")

	_ = s.Run(context.Background())
	require.Equal(t, 1, exec.calls)
}

func TestSessionRunEmitsErrorOnExecutorFailure(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{inbound: []any{
		map[string]any{"type": "execute", "query": "hi"},
	}}
	exec := &fakeExecutor{err: errors.New("boom")}
	s := NewSession(conn, exec, ratelimit.New(), "client-a")

	_ = s.Run(context.Background())
	require.Len(t, conn.written, 1)
	require.Equal(t, "error", conn.written[0].Type)
	require.Contains(t, conn.written[0].Error, "boom")
}

func TestSessionRunRejectsWhenConnectionCapExceeded(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(ratelimit.WithMaxConnections(1))
	ok, _ := limiter.CheckConnection("client-a")
	require.True(t, ok)

	conn := &fakeConn{}
	s := NewSession(conn, &fakeExecutor{}, limiter, "client-a")

	err := s.Run(context.Background())
	require.Error(t, err)
	require.Len(t, conn.written, 1)
	require.Equal(t, "error", conn.written[0].Type)
}

func TestSessionRunRejectsWhenRateLimited(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(ratelimit.WithMaxRequests(0))
	conn := &fakeConn{inbound: []any{
		map[string]any{"type": "execute", "query": "hi"},
	}}
	exec := &fakeExecutor{}
	s := NewSession(conn, exec, limiter, "client-a")

	_ = s.Run(context.Background())
	require.Equal(t, 0, exec.calls)
	require.Len(t, conn.written, 1)
	require.Equal(t, "error", conn.written[0].Type)
	require.Contains(t, conn.written[0].Error, "rate limit")
}

func TestEmitSerializesConcurrentWrites(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	s := NewSession(conn, &fakeExecutor{}, ratelimit.New(), "client-a")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Emit(Response(s.ConversationID(), "n1", "x", 1, 1, 0))
		}()
	}
	wg.Wait()
	require.Len(t, conn.written, 20)
}
