// Package wire implements the JSONL sidecar wire protocol (spec §4.4,
// §6): the tagged Envelope union, line framing, and batch helpers.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/event"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

// Tag is the "t" discriminator of an Envelope frame.
type Tag string

const (
	TagHello Tag = "hello"
	TagRun   Tag = "run"
	TagEvent Tag = "event"
	TagFinal Tag = "final"
	TagFatal Tag = "fatal"
	TagCancel Tag = "cancel"
	TagPing  Tag = "ping"
	TagPong  Tag = "pong"
)

// Hello is the handshake frame a sidecar must send first.
type Hello struct {
	ContractVersion string                      `json:"contract_version"`
	Backend         receipt.BackendIdentity     `json:"backend"`
	Capabilities    capability.Manifest         `json:"capabilities"`
	Mode            string                      `json:"mode,omitempty"`
}

// Run dispatches a work order to a backend.
type Run struct {
	ID        string             `json:"id"`
	WorkOrder workorder.WorkOrder `json:"work_order"`
}

// EventFrame carries one streamed AgentEvent for run ref_id.
type EventFrame struct {
	RefID string     `json:"ref_id"`
	Event event.Event `json:"event"`
}

// Final carries the terminal receipt for run ref_id.
type Final struct {
	RefID   string          `json:"ref_id"`
	Receipt receipt.Receipt `json:"receipt"`
}

// FatalError carries an unrecoverable error, optionally tied to a run.
type FatalError struct {
	RefID string `json:"ref_id,omitempty"`
	Error string `json:"error"`
}

// Cancel requests cooperative cancellation of run ref_id.
type Cancel struct {
	RefID  string `json:"ref_id"`
	Reason string `json:"reason,omitempty"`
}

// Ping/Pong are keepalive frames correlated by an opaque sequence number.
type Ping struct {
	Seq int64 `json:"seq"`
}

type Pong struct {
	Seq int64 `json:"seq"`
}

// Envelope is the tagged union transported between host and sidecar.
// Exactly one of the variant fields is non-nil, matching Tag.
type Envelope struct {
	Tag Tag `json:"t"`

	Hello  *Hello      `json:"-"`
	Run    *Run        `json:"-"`
	Event  *EventFrame `json:"-"`
	Final  *Final      `json:"-"`
	Fatal  *FatalError `json:"-"`
	Cancel *Cancel     `json:"-"`
	Ping   *Ping       `json:"-"`
	Pong   *Pong       `json:"-"`
}

func Of(v any) (Envelope, error) {
	switch t := v.(type) {
	case Hello:
		return Envelope{Tag: TagHello, Hello: &t}, nil
	case Run:
		return Envelope{Tag: TagRun, Run: &t}, nil
	case EventFrame:
		return Envelope{Tag: TagEvent, Event: &t}, nil
	case Final:
		return Envelope{Tag: TagFinal, Final: &t}, nil
	case FatalError:
		return Envelope{Tag: TagFatal, Fatal: &t}, nil
	case Cancel:
		return Envelope{Tag: TagCancel, Cancel: &t}, nil
	case Ping:
		return Envelope{Tag: TagPing, Ping: &t}, nil
	case Pong:
		return Envelope{Tag: TagPong, Pong: &t}, nil
	default:
		return Envelope{}, fmt.Errorf("wire: unsupported envelope payload type %T", v)
	}
}

// MarshalJSON flattens the active variant's fields alongside the "t"
// discriminator, so wire frames look like {"t":"hello", ...fields}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Tag {
	case TagHello:
		payload = e.Hello
	case TagRun:
		payload = e.Run
	case TagEvent:
		payload = e.Event
	case TagFinal:
		payload = e.Final
	case TagFatal:
		payload = e.Fatal
	case TagCancel:
		payload = e.Cancel
	case TagPing:
		payload = e.Ping
	case TagPong:
		payload = e.Pong
	default:
		return nil, bperr.Newf(bperr.CodeProtocolInvalidEnvelope, "wire: unknown envelope tag %q", e.Tag)
	}
	if payload == nil {
		return nil, bperr.Newf(bperr.CodeProtocolInvalidEnvelope, "wire: envelope tagged %q has no payload", e.Tag)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "wire: marshal envelope payload failed", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadBytes, &fields); err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "wire: flatten envelope payload failed", err)
	}

	tagBytes, _ := json.Marshal(e.Tag)
	fields["t"] = tagBytes

	return json.Marshal(fields)
}

// UnmarshalJSON dispatches on the "t" discriminator to populate the
// matching variant field. Unknown tags return a Violation error
// (spec §4.4).
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Tag Tag `json:"t"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid json", err)
	}

	e.Tag = head.Tag
	switch head.Tag {
	case TagHello:
		var v Hello
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid hello frame", err)
		}
		e.Hello = &v
	case TagRun:
		var v Run
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid run frame", err)
		}
		e.Run = &v
	case TagEvent:
		var v EventFrame
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid event frame", err)
		}
		e.Event = &v
	case TagFinal:
		var v Final
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid final frame", err)
		}
		e.Final = &v
	case TagFatal:
		var v FatalError
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid fatal frame", err)
		}
		e.Fatal = &v
	case TagCancel:
		var v Cancel
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid cancel frame", err)
		}
		e.Cancel = &v
	case TagPing:
		var v Ping
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid ping frame", err)
		}
		e.Ping = &v
	case TagPong:
		var v Pong
		if err := json.Unmarshal(data, &v); err != nil {
			return bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid pong frame", err)
		}
		e.Pong = &v
	default:
		return bperr.Newf(bperr.CodeProtocolInvalidEnvelope, "wire: unknown envelope tag %q", head.Tag)
	}
	return nil
}

// Equal reports structural equality between two envelopes, used by
// the encode/decode round-trip property (spec §8).
func Equal(a, b Envelope) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
