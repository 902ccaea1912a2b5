package capability

// Role identifies the speaker of a Message in an emulation IR conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a minimal, opaque-content conversation entry that
// emulation strategies mutate. Content is left as free-form text; the
// backend adapter is responsible for mapping it into a vendor shape.
type Message struct {
	Role    Role
	Content string
}

// Conversation is the IR a work order is lowered into before dispatch.
// Emulation strategies are pure functions over this IR; they never
// perform I/O (spec §4.3).
type Conversation struct {
	Messages    []Message
	ToolSchemas []ToolSchema
}

// ToolSchema is an opaque, named JSON-schema blob describing one tool
// a work order may invoke. Emulation strategies that "wrap tool
// schemas" (spec §4.3) rewrite entries here.
type ToolSchema struct {
	Name   string
	Schema map[string]any
}

// Fidelity labels how faithfully an emulation strategy reproduces the
// capability it stands in for.
type Fidelity string

const (
	FidelityLossless           Fidelity = "lossless"
	FidelityPartialWithCaveats Fidelity = "partial_with_caveats"
	FidelityBestEffort         Fidelity = "best_effort"
)

// Strategy mutates a Conversation to emulate cap and reports the
// fidelity of the emulation. Strategies never perform I/O.
type Strategy func(cap Name, conv Conversation) (Conversation, Fidelity)

// Strategies is the default (capability, strategy) mapping consumed by
// the orchestrator's emulation decisioning (spec §4.3).
var Strategies = map[Name]Strategy{
	ToolUse:          prependToolDirective,
	StructuredOutput: prependStructuredOutputDirective,
	ExtendedThinking: prependThinkingDirective,
	CodeExecution:    wrapCodeExecutionTool,
}

// StrategyFor returns the registered strategy for cap, or a best-effort
// no-op strategy if none is registered.
func StrategyFor(cap Name) Strategy {
	if s, ok := Strategies[cap]; ok {
		return s
	}
	return noopStrategy
}

func noopStrategy(cap Name, conv Conversation) (Conversation, Fidelity) {
	return conv, FidelityBestEffort
}

func prependToolDirective(cap Name, conv Conversation) (Conversation, Fidelity) {
	directive := Message{
		Role:    RoleSystem,
		Content: "You do not have native tool-calling. When you need a tool, describe the call as a JSON object instead.",
	}
	conv.Messages = append([]Message{directive}, conv.Messages...)
	return conv, FidelityPartialWithCaveats
}

func prependStructuredOutputDirective(cap Name, conv Conversation) (Conversation, Fidelity) {
	directive := Message{
		Role:    RoleSystem,
		Content: "Respond with a single JSON object matching the requested schema and nothing else.",
	}
	conv.Messages = append([]Message{directive}, conv.Messages...)
	return conv, FidelityPartialWithCaveats
}

func prependThinkingDirective(cap Name, conv Conversation) (Conversation, Fidelity) {
	directive := Message{
		Role:    RoleSystem,
		Content: "Think step by step before answering, but present only your final answer.",
	}
	conv.Messages = append([]Message{directive}, conv.Messages...)
	return conv, FidelityBestEffort
}

// wrapCodeExecutionTool rewrites tool schemas so a sandboxed
// "run_code" tool is always present, letting a backend without native
// code execution still honor the capability via an ordinary tool call.
func wrapCodeExecutionTool(cap Name, conv Conversation) (Conversation, Fidelity) {
	for _, ts := range conv.ToolSchemas {
		if ts.Name == "run_code" {
			return conv, FidelityPartialWithCaveats
		}
	}
	conv.ToolSchemas = append(conv.ToolSchemas, ToolSchema{
		Name: "run_code",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"language": map[string]any{"type": "string"},
				"source":   map[string]any{"type": "string"},
			},
			"required": []any{"language", "source"},
		},
	})
	return conv, FidelityPartialWithCaveats
}

// Emulate applies the strategy for every capability decision marked
// DecisionEmulate in reports, in the order reports lists them (Negotiate
// returns them sorted by capability name), and returns
// the mutated conversation plus the weakest fidelity observed.
func Emulate(reports []CapabilityReport, conv Conversation) (Conversation, Fidelity) {
	overall := FidelityLossless
	for _, rep := range reports {
		if rep.Decision != DecisionEmulate {
			continue
		}
		strategy := StrategyFor(rep.Capability)
		var fid Fidelity
		conv, fid = strategy(rep.Capability, conv)
		overall = weakerFidelity(overall, fid)
	}
	return conv, overall
}

var fidelityRank = map[Fidelity]int{
	FidelityLossless:           0,
	FidelityPartialWithCaveats: 1,
	FidelityBestEffort:         2,
}

func weakerFidelity(a, b Fidelity) Fidelity {
	if fidelityRank[b] > fidelityRank[a] {
		return b
	}
	return a
}
