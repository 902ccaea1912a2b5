// Package validate implements the envelope shape validator and the
// stateful per-connection sequence validator (spec §4.5).
package validate

import (
	"github.com/google/uuid"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/contractver"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/wire"
)

// Shape performs stateless, per-frame validation of env: field
// presence and basic type invariants. It does not track protocol
// state across frames; see SequenceValidator for that.
func Shape(env wire.Envelope) error {
	switch env.Tag {
	case wire.TagHello:
		if env.Hello == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "hello: missing payload")
		}
		if env.Hello.Backend.ID == "" {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "hello: backend.id must be non-empty")
		}
		if _, ok := contractver.Parse(env.Hello.ContractVersion); !ok {
			return bperr.Newf(bperr.CodeProtocolInvalidEnvelope, "hello: contract_version %q does not parse", env.Hello.ContractVersion)
		}
	case wire.TagRun:
		if env.Run == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "run: missing payload")
		}
		if _, err := uuid.Parse(env.Run.ID); err != nil {
			return bperr.Newf(bperr.CodeProtocolInvalidEnvelope, "run: id %q is not a valid UUID", env.Run.ID)
		}
	case wire.TagEvent:
		if env.Event == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "event: missing payload")
		}
		if env.Event.RefID == "" {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "event: ref_id must be non-empty")
		}
	case wire.TagFinal:
		if env.Final == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "final: missing payload")
		}
		if env.Final.RefID == "" {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "final: ref_id must be non-empty")
		}
	case wire.TagFatal:
		if env.Fatal == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "fatal: missing payload")
		}
		if env.Fatal.Error == "" {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "fatal: error must be non-empty")
		}
	case wire.TagCancel:
		if env.Cancel == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "cancel: missing payload")
		}
		if env.Cancel.RefID == "" {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "cancel: ref_id must be non-empty")
		}
	case wire.TagPing:
		if env.Ping == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "ping: missing payload")
		}
	case wire.TagPong:
		if env.Pong == nil {
			return bperr.New(bperr.CodeProtocolInvalidEnvelope, "pong: missing payload")
		}
	default:
		return bperr.Newf(bperr.CodeProtocolInvalidEnvelope, "unknown envelope tag %q", env.Tag)
	}
	return nil
}
