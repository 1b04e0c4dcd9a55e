package orchestrator

import (
	"fmt"
	"strings"

	"github.com/teemulinna/council/internal/catalog"
	"github.com/teemulinna/council/internal/graph"
)

const defaultTemperature = 0.7

// resolvePattern returns the node's reasoning pattern, or the zero-value
// "none" baseline if it has none set or the id is unknown.
func resolvePattern(node graph.Node) catalog.Pattern {
	if node.PatternID == "" {
		return catalog.Pattern{Temperature: defaultTemperature}
	}
	if p, ok := catalog.PatternByID(node.PatternID); ok {
		return p
	}
	return catalog.Pattern{Temperature: defaultTemperature}
}

// resolveTemperature implements §4.7's precedence: reasoning pattern, then
// the node's own temperature, then the 0.7 baseline.
func resolveTemperature(node graph.Node, pattern catalog.Pattern) float64 {
	if node.PatternID != "" {
		return pattern.Temperature
	}
	if node.Temperature != 0 {
		return node.Temperature
	}
	return defaultTemperature
}

// effectiveSystemPrompt is the node's override if set, else its role's
// prompt fragment with the reasoning pattern's prefix appended.
func effectiveSystemPrompt(node graph.Node, pattern catalog.Pattern) string {
	if node.UserOverridePrompt != "" {
		return node.UserOverridePrompt
	}
	role, ok := catalog.RoleByID(node.RoleID)
	prompt := ""
	if ok {
		prompt = role.Prompt
	}
	return prompt + pattern.Prefix
}

// effectiveUserMessage composes the query, the pattern's suffix, and any
// upstream context gathered from predecessor nodes.
func effectiveUserMessage(query string, pattern catalog.Pattern, upstreamContext string) string {
	return query + pattern.Suffix + upstreamContext
}

// upstreamContextFor builds the "{display_name}'s response:" blocks for
// every incoming edge of node, in edge order, reading from already-computed
// Stage 1 results.
func upstreamContextFor(nodeID string, incoming map[string][]string, responses map[string]NodeResult) string {
	var b strings.Builder
	for _, producerID := range incoming[nodeID] {
		res, ok := responses[producerID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s's response:\n%s\n", res.NodeID, res.Content)
	}
	return b.String()
}

// chairmanRolePrompt returns the catalog's "chairman" role prompt, or a
// built-in default if that role is missing. The chairman node's own RoleID
// is not consulted.
func chairmanRolePrompt() string {
	if role, ok := catalog.RoleByID("chairman"); ok {
		return role.Prompt
	}
	return "You are the chairman of a council of advisors. Synthesize the responses below into a single, coherent answer."
}
