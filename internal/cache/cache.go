// Package cache implements the Response Cache component: a key/value store
// mapping a canonical (model, messages) request to a previously-seen
// Response, with TTL-based expiry. Two backends are provided — an
// in-process map and a Redis-backed store — both deriving entry keys from
// the same Key function; the two stores do not share entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/teemulinna/council/internal/modelclient"
)

// Entry is a cached response plus the metadata needed to report staleness.
type Entry struct {
	Response modelclient.Response
	StoredAt time.Time
}

// Stats reports cumulative hit/miss counters for a cache instance.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache is the Response Cache interface used by the orchestrator.
type Cache interface {
	// Get returns the cached response for (modelID, messages) if present
	// and not expired. ok is false on a miss or expiry.
	Get(ctx context.Context, modelID string, messages []modelclient.Message) (modelclient.Response, bool, error)
	// Set stores a response under the key derived from (modelID, messages),
	// expiring after ttl. ttl <= 0 means the entry never expires.
	Set(ctx context.Context, modelID string, messages []modelclient.Message, resp modelclient.Response, ttl time.Duration) error
	// Stats returns current hit/miss counters.
	Stats() Stats
}

// canonicalRequest is the JSON shape hashed to form a cache key.
// encoding/json emits struct fields in declaration order, so the fields of
// both structs are declared in lexical key order to give a sorted-key
// encoding, and the same logical request always serializes byte-identically.
type canonicalRequest struct {
	Messages []canonicalMessage `json:"messages"`
	Model    string             `json:"model"`
}

type canonicalMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Key computes the canonical cache key for a (modelID, messages) request:
// sha256 of the compact, sorted-field JSON encoding of {model, messages}.
func Key(modelID string, messages []modelclient.Message) string {
	cm := make([]canonicalMessage, len(messages))
	for i, m := range messages {
		cm[i] = canonicalMessage{Role: m.Role, Content: m.Content}
	}
	req := canonicalRequest{Model: modelID, Messages: cm}

	// json.Marshal on a struct already emits fields in declaration order
	// with no extraneous whitespace, giving the required compact,
	// deterministic encoding without a custom encoder.
	b, err := json.Marshal(req)
	if err != nil {
		// Messages and modelID are plain strings; Marshal cannot fail here.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
