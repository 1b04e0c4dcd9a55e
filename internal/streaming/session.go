// Package streaming implements the per-connection Streaming Session: it
// upgrades an HTTP request to a WebSocket, reads inbound execute frames,
// drives an Executor, and relays outbound typed JSON event frames in
// order, enforcing the connection's rate and cost limits along the way.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teemulinna/council/internal/ratelimit"
)

// NodeConfig is the wire representation of one agent node in an inbound
// execute frame's council configuration.
type NodeConfig struct {
	ID                 string  `json:"id"`
	ModelID            string  `json:"modelId"`
	RoleID             string  `json:"roleId"`
	PatternID          string  `json:"patternId,omitempty"`
	UserOverridePrompt string  `json:"userOverridePrompt,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	SpeakingOrder      int     `json:"speakingOrder"`
	IsChairman         bool    `json:"isChairman,omitempty"`
}

// EdgeConfig is the wire representation of one council edge.
type EdgeConfig struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// CouncilConfig is the wire representation of an execute frame's council.
type CouncilConfig struct {
	Name  string       `json:"name"`
	Nodes []NodeConfig `json:"nodes"`
	Edges []EdgeConfig `json:"edges"`
}

type inboundFrame struct {
	Type   string        `json:"type"`
	Query  string        `json:"query"`
	Config CouncilConfig `json:"config"`
}

// Executor drives one end-to-end council execution, publishing progress
// through emit. It must emit events in the order the protocol requires
// and must not emit after returning.
type Executor interface {
	Execute(ctx context.Context, conversationID, query string, cfg CouncilConfig, emit Emitter) error
}

// Conn is the subset of *websocket.Conn a Session needs, to allow
// substitution in tests.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Session is one client's WebSocket connection to /ws/execute.
type Session struct {
	conn           Conn
	executor       Executor
	limiter        *ratelimit.Limiter
	clientID       string
	conversationID string

	writeMu sync.Mutex
}

// NewSession builds a Session bound to an already-upgraded connection.
// conversationID is generated fresh per connection.
func NewSession(conn Conn, executor Executor, limiter *ratelimit.Limiter, clientID string) *Session {
	return &Session{
		conn:           conn,
		executor:       executor,
		limiter:        limiter,
		clientID:       clientID,
		conversationID: uuid.New().String(),
	}
}

// ConversationID returns the id stamped on every event frame this session
// emits.
func (s *Session) ConversationID() string { return s.conversationID }

// Emit writes one event frame. Safe for concurrent use; the Stage
// Orchestrator may call it from multiple goroutines during parallel
// fan-out, so writes are serialized.
func (s *Session) Emit(e Event) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteJSON(e)
}

// estimatedCostPerExecution is a conservative per-request cost estimate
// used by the rate limiter before the real cost is known; the Cost
// Accountant enforces the precise budget once execution begins.
const estimatedCostPerExecution = 0.05

// Run reads inbound frames until the connection closes or ctx is
// cancelled, dispatching each "execute" frame to the Executor in turn.
// Frames of other types are ignored. Only one execution runs at a time
// per session, preserving the protocol's ordering guarantees.
func (s *Session) Run(ctx context.Context) error {
	if ok, reason := s.limiter.CheckConnection(s.clientID); !ok {
		s.Emit(Error(s.conversationID, "", reason))
		return errors.New(reason)
	}
	defer s.limiter.ReleaseConnection(s.clientID)

	for {
		var frame inboundFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return err
		}

		if frame.Type != "execute" {
			continue
		}

		if ok, reason := s.limiter.CheckRequest(s.clientID, estimatedCostPerExecution, time.Now()); !ok {
			s.Emit(Error(s.conversationID, "", reason))
			continue
		}

		if err := s.executor.Execute(ctx, s.conversationID, frame.Query, frame.Config, s); err != nil {
			s.Emit(Error(s.conversationID, "", fmt.Sprintf("execution failed: %v", err)))
		}
	}
}

// Upgrader wraps gorilla/websocket.Upgrader with the CORS origin check the
// HTTP surface configures at startup.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader builds an Upgrader that accepts connections only from the
// given allowed origins; an empty list allows any origin (local/dev use,
// matching the teacher's permissive default).
func NewUpgrader(allowedOrigins []string) *Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Upgrade promotes an HTTP request to a WebSocket connection.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, nil)
}
