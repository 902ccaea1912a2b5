// Package vendorshape types the vendor request/response shapes a
// sidecar boundary treats as opaque (spec §1: vendor payloads pass
// through the wire envelope untouched). The core never constructs a
// live vendor client or performs network I/O here; these types only
// document, and let tests exercise, the JSON shape a sidecar adapter
// on the other side of the boundary would populate.
package vendorshape

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// AnthropicRequestShape documents the Messages API request a Claude
// sidecar adapter builds from a work order, using the SDK's own
// request type rather than a hand-rolled struct so the JSON shape
// tracks the vendor's wire format exactly.
type AnthropicRequestShape struct {
	Params sdk.MessageNewParams
}

// NewAnthropicRequestShape builds a minimal, opaque request shape for
// model/maxTokens; callers that need system prompts, tools, or
// thinking config populate sdk.MessageNewParams directly.
func NewAnthropicRequestShape(model string, maxTokens int64) AnthropicRequestShape {
	return AnthropicRequestShape{
		Params: sdk.MessageNewParams{
			Model:     sdk.Model(model),
			MaxTokens: maxTokens,
		},
	}
}

// MarshalOpaque serializes the shape to the JSON a sidecar would place
// in a work order's config.vendor[backendName] blob or read back as a
// vendor response; the core treats the bytes as opaque.
func (s AnthropicRequestShape) MarshalOpaque() (json.RawMessage, error) {
	raw, err := json.Marshal(s.Params)
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "vendorshape: marshal failed", err)
	}
	return raw, nil
}

// AnthropicResponseShape documents the Messages API response shape a
// Claude sidecar adapter would decode before translating it into an
// AgentEvent trace.
type AnthropicResponseShape struct {
	Message sdk.Message
}

// UnmarshalAnthropicResponse decodes raw opaque bytes into the vendor
// response shape without interpreting their content.
func UnmarshalAnthropicResponse(raw json.RawMessage) (AnthropicResponseShape, error) {
	var msg sdk.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return AnthropicResponseShape{}, bperr.Wrap(bperr.CodeInternal, "vendorshape: unmarshal failed", err)
	}
	return AnthropicResponseShape{Message: msg}, nil
}
