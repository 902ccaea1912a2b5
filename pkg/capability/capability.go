// Package capability implements the capability manifest and negotiator
// (spec §3, §4.3): matching what a work order demands against what a
// backend advertises.
package capability

import "sort"

// Name is an enumerated feature name. The set is extensible; callers
// may define additional names beyond the well-known constants.
type Name string

const (
	Streaming         Name = "streaming"
	ToolUse           Name = "tool-use"
	ImageInput        Name = "image-input"
	ExtendedThinking  Name = "extended-thinking"
	StructuredOutput  Name = "structured-output"
	CodeExecution     Name = "code-execution"
	MCPClient         Name = "mcp-client"
)

// SupportLevel is an ordered lattice: Unsupported < Emulated < Native.
type SupportLevel int

const (
	Unsupported SupportLevel = iota
	Emulated
	Native
)

func (s SupportLevel) String() string {
	switch s {
	case Unsupported:
		return "unsupported"
	case Emulated:
		return "emulated"
	case Native:
		return "native"
	default:
		return "unknown"
	}
}

// MinSupport mirrors SupportLevel; requirements express a minimum
// acceptable level using this alias for readability at call sites.
type MinSupport = SupportLevel

// Requirement is a single capability demand from a work order.
type Requirement struct {
	Capability Name
	MinSupport MinSupport
}

// Manifest maps a capability to the level a backend advertises.
// Absence of a key means Unsupported.
type Manifest map[Name]SupportLevel

// Get returns the support level for cap, defaulting to Unsupported.
func (m Manifest) Get(cap Name) SupportLevel {
	if m == nil {
		return Unsupported
	}
	if lvl, ok := m[cap]; ok {
		return lvl
	}
	return Unsupported
}

// Decision is the outcome of checking one requirement against a manifest.
type Decision string

const (
	DecisionSatisfy Decision = "satisfy"
	DecisionEmulate Decision = "emulate"
	DecisionReject  Decision = "reject"
)

// CapabilityReport is the per-capability line of a negotiation report.
type CapabilityReport struct {
	Capability Name
	Required   MinSupport
	Advertised SupportLevel
	Decision   Decision
	Rationale  string
}

// Result is the outcome of negotiating a full requirement list against
// a manifest.
type Result struct {
	Compatible bool
	Reports    []CapabilityReport
}

// resolve computes the effective status (Native/Emulated/Unsupported)
// of advertised against a requirement's minimum, per spec §4.3.
func resolve(advertised SupportLevel, min MinSupport) SupportLevel {
	switch {
	case advertised == Native && min <= Native:
		if min == Emulated {
			return Emulated
		}
		return Native
	case advertised == Emulated:
		return Emulated
	default:
		return Unsupported
	}
}

// Negotiate evaluates requirements against manifest and produces a
// Result. strict, when true, rejects any requirement that resolves
// Emulated when MinSupport == Native (spec §4.3: "Strict mode rejects
// any Emulated where min_support == Native").
func Negotiate(requirements []Requirement, manifest Manifest, strict bool) Result {
	res := Result{Compatible: true}

	for _, req := range requirements {
		advertised := manifest.Get(req.Capability)
		status := resolve(advertised, req.MinSupport)

		var decision Decision
		var rationale string

		switch {
		case status == Native:
			decision = DecisionSatisfy
			rationale = "backend advertises native support"
		case status == Emulated && req.MinSupport == Native && strict:
			decision = DecisionReject
			rationale = "strict mode rejects emulated support when native is required"
			res.Compatible = false
		case status == Emulated:
			decision = DecisionEmulate
			rationale = "backend support emulated to required level"
		default:
			decision = DecisionReject
			rationale = "backend does not advertise sufficient support"
			res.Compatible = false
		}

		res.Reports = append(res.Reports, CapabilityReport{
			Capability: req.Capability,
			Required:   req.MinSupport,
			Advertised: advertised,
			Decision:   decision,
			Rationale:  rationale,
		})
	}

	sort.Slice(res.Reports, func(i, j int) bool {
		return res.Reports[i].Capability < res.Reports[j].Capability
	})

	return res
}

// GenerateReport is an alias for Negotiate kept for call sites that
// only want the report, mirroring spec §4.3's generate_report name.
func GenerateReport(requirements []Requirement, manifest Manifest, strict bool) []CapabilityReport {
	return Negotiate(requirements, manifest, strict).Reports
}

// Unsatisfied returns the capability names whose decision is reject.
func (r Result) Unsatisfied() []Name {
	var names []Name
	for _, rep := range r.Reports {
		if rep.Decision == DecisionReject {
			names = append(names, rep.Capability)
		}
	}
	return names
}
