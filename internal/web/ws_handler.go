package web

import (
	"log"
	"net/http"

	"github.com/teemulinna/council/internal/ratelimit"
	"github.com/teemulinna/council/internal/streaming"
)

// handleWSExecute upgrades to a WebSocket and drives one Streaming Session
// for the connection's lifetime.
func (s *Server) handleWSExecute(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		log.Printf("handleWSExecute: upgrade: %v", err)
		return
	}

	clientID := ratelimit.ClientIDFromForwardedFor(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
	session := streaming.NewSession(conn, s.executor, s.limiter, clientID)

	if err := session.Run(r.Context()); err != nil {
		log.Printf("handleWSExecute: session %s ended: %v", session.ConversationID(), err)
	}
	_ = conn.Close()
}
