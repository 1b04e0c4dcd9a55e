// Package catalog holds the static tables spec.md treats as an external
// collaborator: built-in roles, reasoning patterns, and a model pricing/tier
// table. The engine needs a concrete instance of these to drive the Stage
// Orchestrator and Cost Accountant. Custom roles persisted in internal/db's
// custom_roles table are listed beside these by the web API but are not
// looked up here.
package catalog

// Role describes a role-prompt fragment bindable to an agent node.
type Role struct {
	ID          string
	Name        string
	Description string
	Prompt      string
}

// Pattern describes a reasoning pattern: a prefix injected into the system
// prompt, a suffix appended to the user message, and a suggested sampling
// temperature.
type Pattern struct {
	ID          string
	Name        string
	Category    string
	Prefix      string
	Suffix      string
	Temperature float64
}

// ModelInfo describes a catalog entry for a model: provider routing plus
// per-1M-token pricing used by the Cost Accountant.
type ModelInfo struct {
	ID              string
	Provider        string // "anthropic", "openai", "bedrock"
	Tier            string // "budget", "standard", "premium"
	ContextLength   int
	InputPricePer1M float64
	OutputPricePer1M float64
}

// Roles is the built-in role table. IDs are stable and referenced by agent
// nodes. Node role prompts are resolved from this table only; persisted
// custom roles are not consulted.
var Roles = []Role{
	{
		ID:          "generalist",
		Name:        "Generalist",
		Description: "Balanced, broadly-informed responder",
		Prompt:      "You are a knowledgeable generalist. Answer the user's question directly and concisely, drawing on broad domain knowledge.",
	},
	{
		ID:          "skeptic",
		Name:        "Skeptic",
		Description: "Challenges assumptions and looks for flaws",
		Prompt:      "You are a rigorous skeptic. Identify weak assumptions, edge cases, and risks in the question and in any proposed answer before committing to a position.",
	},
	{
		ID:          "optimist",
		Name:        "Optimist",
		Description: "Looks for the strongest version of the answer",
		Prompt:      "You are a constructive optimist. Find the most promising angle on the question and argue for it while acknowledging real constraints.",
	},
	{
		ID:          "domain-expert",
		Name:        "Domain Expert",
		Description: "Deep technical specialist",
		Prompt:      "You are a deep domain expert. Give a technically precise, well-grounded answer, citing specific mechanisms or reasoning rather than generalities.",
	},
	{
		ID:          "chairman",
		Name:        "Chairman",
		Description: "Synthesizes peer responses into one final answer",
		Prompt:      "You are the chairman of a council of advisors. Synthesize the responses below into a single, coherent, well-organized final answer. Resolve disagreements explicitly and state your reasoning when you favor one view over another.",
	},
}

// Patterns is the built-in reasoning-pattern table.
var Patterns = []Pattern{
	{
		ID:          "none",
		Name:        "Direct",
		Category:    "baseline",
		Prefix:      "",
		Suffix:      "",
		Temperature: 0.7,
	},
	{
		ID:          "chain-of-thought",
		Name:        "Chain of Thought",
		Category:    "reasoning",
		Prefix:      " Think step by step before giving your final answer.",
		Suffix:      "\n\nWork through this step by step, then give your final answer.",
		Temperature: 0.5,
	},
	{
		ID:          "devils-advocate",
		Name:        "Devil's Advocate",
		Category:    "critique",
		Prefix:      " Before answering, argue against the most obvious answer to stress-test it.",
		Suffix:      "\n\nFirst argue against the obvious answer, then give your real answer.",
		Temperature: 0.8,
	},
	{
		ID:          "first-principles",
		Name:        "First Principles",
		Category:    "reasoning",
		Prefix:      " Reason from first principles rather than analogy or precedent.",
		Suffix:      "\n\nDerive your answer from first principles.",
		Temperature: 0.4,
	},
}

// Models is the built-in model catalog used for cost estimation and tier
// classification. Prices are USD per 1,000,000 tokens.
var Models = []ModelInfo{
	{ID: "claude-haiku-4-5", Provider: "anthropic", Tier: "budget", ContextLength: 200000, InputPricePer1M: 1.0, OutputPricePer1M: 5.0},
	{ID: "claude-sonnet-4-5", Provider: "anthropic", Tier: "standard", ContextLength: 200000, InputPricePer1M: 3.0, OutputPricePer1M: 15.0},
	{ID: "claude-opus-4-5", Provider: "anthropic", Tier: "premium", ContextLength: 200000, InputPricePer1M: 15.0, OutputPricePer1M: 75.0},
	{ID: "gpt-4o-mini", Provider: "openai", Tier: "budget", ContextLength: 128000, InputPricePer1M: 0.15, OutputPricePer1M: 0.6},
	{ID: "gpt-4o", Provider: "openai", Tier: "standard", ContextLength: 128000, InputPricePer1M: 2.5, OutputPricePer1M: 10.0},
	{ID: "gpt-4.1", Provider: "openai", Tier: "premium", ContextLength: 1000000, InputPricePer1M: 5.0, OutputPricePer1M: 15.0},
	{ID: "amazon.titan-text-premier-v1", Provider: "bedrock", Tier: "standard", ContextLength: 32000, InputPricePer1M: 0.5, OutputPricePer1M: 1.5},
}

// RoleByID looks up a built-in role by ID. ok is false when absent.
func RoleByID(id string) (Role, bool) {
	for _, r := range Roles {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// PatternByID looks up a built-in reasoning pattern by ID. ok is false when absent.
func PatternByID(id string) (Pattern, bool) {
	for _, p := range Patterns {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}

// ModelByID looks up a catalog model entry by ID. ok is false when absent.
func ModelByID(id string) (ModelInfo, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ModelsByTier returns the ordered pool of model IDs for a given tier,
// used by the complexity classifier's smart-selection path.
func ModelsByTier(tier string) []string {
	var ids []string
	for _, m := range Models {
		if m.Tier == tier {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
