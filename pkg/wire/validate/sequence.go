package validate

import (
	"fmt"
	"sync"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/contractver"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/wire"
)

// connState is the SequenceValidator's internal state machine position
// (spec §4.5): Fresh -> Greeted -> Running(runID) -> Terminal.
type connState int

const (
	stateFresh connState = iota
	stateGreeted
	stateRunning
	stateTerminal
)

// SeqErrorKind names a sequence-validation failure distinct from the
// stateless Shape errors.
type SeqErrorKind string

const (
	HelloAfterGreet         SeqErrorKind = "hello_after_greet"
	MultipleHellos          SeqErrorKind = "multiple_hellos"
	RunBeforeHello          SeqErrorKind = "run_before_hello"
	EventBeforeRun          SeqErrorKind = "event_before_run"
	RefIDMismatch           SeqErrorKind = "ref_id_mismatch"
	FinalWithoutRun         SeqErrorKind = "final_without_run"
	DoubleFinal             SeqErrorKind = "double_final"
	UnexpectedAfterTerminal SeqErrorKind = "unexpected_after_terminal"
	VersionMismatch         SeqErrorKind = "version_mismatch"
)

// SeqError is a fatal sequence-validation failure. Expected/Got are
// populated for RefIDMismatch and VersionMismatch; empty otherwise.
type SeqError struct {
	Kind     SeqErrorKind
	Expected string
	Got      string
}

func (e *SeqError) Error() string {
	switch e.Kind {
	case RefIDMismatch:
		return fmt.Sprintf("sequence: ref_id mismatch, expected %q got %q", e.Expected, e.Got)
	case VersionMismatch:
		return fmt.Sprintf("sequence: contract version mismatch, wanted %q got %q", e.Expected, e.Got)
	default:
		return fmt.Sprintf("sequence: %s", e.Kind)
	}
}

// Warning is a recoverable sequence anomaly: the stream may continue.
type Warning struct {
	Kind    SeqErrorKind
	Message string
}

func (w Warning) Error() string { return w.Message }

// SequenceValidator tracks per-connection envelope ordering. Its
// methods are serialized by an internal mutex, each call holding it
// for its whole duration.
type SequenceValidator struct {
	mu              sync.Mutex
	state           connState
	runID           string
	wantMajorMinor  string // expected contract version, once greeted
	sawHello        bool
	lastWarnings    []Warning
}

// NewSequenceValidator returns a validator in state Fresh, expecting
// contract version want (e.g. "abp/v0.1") at handshake time. An empty
// want skips version checking.
func NewSequenceValidator(want string) *SequenceValidator {
	return &SequenceValidator{state: stateFresh, wantMajorMinor: want}
}

// Warnings returns and clears warnings accumulated since the last call.
func (v *SequenceValidator) Warnings() []Warning {
	v.mu.Lock()
	defer v.mu.Unlock()
	w := v.lastWarnings
	v.lastWarnings = nil
	return w
}

func (v *SequenceValidator) warn(w Warning) {
	v.lastWarnings = append(v.lastWarnings, w)
}

// Accept feeds the next envelope through the state machine. It returns
// a fatal *SeqError if the transition is disallowed; the stream must
// close on such an error. Recoverable anomalies (e.g. a dropped frame
// for an unknown ref_id) are recorded as warnings, retrievable via
// Warnings, and Accept returns nil.
func (v *SequenceValidator) Accept(env wire.Envelope) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Ping/pong interleave freely in any state and never change it.
	if env.Tag == wire.TagPing || env.Tag == wire.TagPong {
		return nil
	}

	// A fatal frame is accepted from any state and terminates the
	// connection.
	if env.Tag == wire.TagFatal {
		v.state = stateTerminal
		return nil
	}

	switch v.state {
	case stateFresh:
		if env.Tag != wire.TagHello {
			return &SeqError{Kind: RunBeforeHello}
		}
		if v.wantMajorMinor != "" && env.Hello != nil {
			if !contractver.IsCompatible(v.wantMajorMinor, env.Hello.ContractVersion) {
				return &SeqError{Kind: VersionMismatch, Expected: v.wantMajorMinor, Got: env.Hello.ContractVersion}
			}
		}
		v.sawHello = true
		v.state = stateGreeted
		return nil

	case stateGreeted:
		switch env.Tag {
		case wire.TagHello:
			if v.sawHello {
				return &SeqError{Kind: MultipleHellos}
			}
			return &SeqError{Kind: HelloAfterGreet}
		case wire.TagRun:
			if env.Run == nil {
				return bperr.New(bperr.CodeProtocolInvalidEnvelope, "sequence: run envelope missing payload")
			}
			v.runID = env.Run.ID
			v.state = stateRunning
			return nil
		case wire.TagFinal:
			return &SeqError{Kind: FinalWithoutRun}
		case wire.TagEvent, wire.TagCancel:
			return &SeqError{Kind: EventBeforeRun}
		default:
			return &SeqError{Kind: HelloAfterGreet}
		}

	case stateRunning:
		switch env.Tag {
		case wire.TagHello:
			return &SeqError{Kind: HelloAfterGreet}
		case wire.TagRun:
			// A second run while one is in flight is treated like any
			// other unexpected-message case for the active run.
			return &SeqError{Kind: EventBeforeRun}
		case wire.TagEvent:
			if env.Event == nil {
				return bperr.New(bperr.CodeProtocolInvalidEnvelope, "sequence: event envelope missing payload")
			}
			if env.Event.RefID != v.runID {
				return &SeqError{Kind: RefIDMismatch, Expected: v.runID, Got: env.Event.RefID}
			}
			return nil
		case wire.TagCancel:
			if env.Cancel == nil || env.Cancel.RefID != v.runID {
				v.warn(Warning{Kind: RefIDMismatch, Message: "cancel for unknown ref_id dropped"})
				return nil
			}
			return nil
		case wire.TagFinal:
			if env.Final == nil {
				return bperr.New(bperr.CodeProtocolInvalidEnvelope, "sequence: final envelope missing payload")
			}
			if env.Final.RefID != v.runID {
				return &SeqError{Kind: RefIDMismatch, Expected: v.runID, Got: env.Final.RefID}
			}
			v.state = stateTerminal
			return nil
		default:
			return &SeqError{Kind: EventBeforeRun}
		}

	case stateTerminal:
		switch env.Tag {
		case wire.TagFinal:
			return &SeqError{Kind: DoubleFinal}
		default:
			return &SeqError{Kind: UnexpectedAfterTerminal}
		}
	}

	return bperr.New(bperr.CodeInternal, "sequence: unreachable state")
}
