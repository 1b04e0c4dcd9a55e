// Package graph implements the Graph Compiler: it turns a council's flat
// node and edge lists into adjacency maps and a deterministic execution
// order via Kahn's algorithm, falling back to a speaking-order-only
// schedule when the graph contains a cycle.
package graph

import (
	"log"
	"sort"
)

// Node is one agent node in a council.
type Node struct {
	ID                 string
	ModelID            string
	RoleID             string
	PatternID          string
	UserOverridePrompt string
	Temperature        float64
	SpeakingOrder      int
	IsChairman         bool
}

// Edge is a directed pair (source, target); both ids must reference nodes
// in the same council. Self-loops are invalid and duplicate edges collapse
// to one, per the caller's responsibility at construction time.
type Edge struct {
	Source string
	Target string
}

// Compiled is the output of Compile: lookup maps plus a deterministic
// execution order over non-chairman participant nodes.
type Compiled struct {
	NodeMap        map[string]Node
	Incoming       map[string][]string
	Outgoing       map[string][]string
	ExecutionOrder []string
	Chairman       *Node
	UsedFallback   bool
}

// Compile builds a Compiled schedule from nodes and edges. The chairman
// node, if any, is excluded from ExecutionOrder; it is scheduled
// separately by the orchestrator's Stage 3.
func Compile(nodes []Node, edges []Edge) Compiled {
	nodeMap := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		nodeMap[n.ID] = n
	}

	incoming := make(map[string][]string)
	outgoing := make(map[string][]string)
	for _, n := range nodes {
		incoming[n.ID] = nil
		outgoing[n.ID] = nil
	}
	for _, e := range edges {
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	var chairman *Node
	participants := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsChairman {
			c := n
			chairman = &c
			continue
		}
		participants = append(participants, n)
	}

	order, ok := kahnOrder(participants, incoming, outgoing)
	usedFallback := false
	if !ok {
		log.Printf("graph compiler: cycle detected among %d nodes, falling back to speaking-order", len(participants))
		order = speakingOrderFallback(participants)
		usedFallback = true
	}

	return Compiled{
		NodeMap:        nodeMap,
		Incoming:       incoming,
		Outgoing:       outgoing,
		ExecutionOrder: order,
		Chairman:       chairman,
		UsedFallback:   usedFallback,
	}
}

// kahnOrder computes a topological order over participants using Kahn's
// algorithm. Ties among nodes with equal in-degree are broken by ascending
// speaking-order hint, then by node id. Only edges between participants
// are counted, so a cycle that passes through the excluded chairman node is
// not detected. ok is false if the result omits any participant (a cycle
// among participants is present).
func kahnOrder(participants []Node, incoming, outgoing map[string][]string) ([]string, bool) {
	participantSet := make(map[string]bool, len(participants))
	for _, n := range participants {
		participantSet[n.ID] = true
	}

	remaining := make(map[string]int, len(participants))
	for _, n := range participants {
		count := 0
		for _, src := range incoming[n.ID] {
			if participantSet[src] {
				count++
			}
		}
		remaining[n.ID] = count
	}

	byID := make(map[string]Node, len(participants))
	for _, n := range participants {
		byID[n.ID] = n
	}

	var ready []string
	for id, count := range remaining {
		if count == 0 {
			ready = append(ready, id)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			ni, nj := byID[ready[i]], byID[ready[j]]
			if ni.SpeakingOrder != nj.SpeakingOrder {
				return ni.SpeakingOrder < nj.SpeakingOrder
			}
			return ni.ID < nj.ID
		})

		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, target := range outgoing[next] {
			if !participantSet[target] {
				continue
			}
			remaining[target]--
			if remaining[target] == 0 {
				ready = append(ready, target)
			}
		}
	}

	return order, len(order) == len(participants)
}

// speakingOrderFallback sorts all participants by speaking-order hint, then
// by id, ignoring edges entirely.
func speakingOrderFallback(participants []Node) []string {
	sorted := make([]Node, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SpeakingOrder != sorted[j].SpeakingOrder {
			return sorted[i].SpeakingOrder < sorted[j].SpeakingOrder
		}
		return sorted[i].ID < sorted[j].ID
	})
	ids := make([]string, len(sorted))
	for i, n := range sorted {
		ids[i] = n.ID
	}
	return ids
}
