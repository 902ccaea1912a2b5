// Package bperr defines the Agent Backplane's flat, stable error taxonomy.
//
// Codes are dotted strings (category.reason) so callers can match on
// a stable string without importing sentinel values from every
// package that can fail.
package bperr

import (
	"errors"
	"fmt"
)

// Code is a stable, dotted error code (e.g. "protocol.invalid_envelope").
type Code string

const (
	// Protocol errors originate from the wire codec or sequence validator.
	CodeProtocolInvalidEnvelope    Code = "protocol.invalid_envelope"
	CodeProtocolUnexpectedMessage  Code = "protocol.unexpected_message"
	CodeProtocolVersionMismatch    Code = "protocol.version_mismatch"

	// Backend errors originate from the registry or a running backend.
	CodeBackendNotFound Code = "backend.not_found"
	CodeBackendTimeout  Code = "backend.timeout"
	CodeBackendCrashed  Code = "backend.crashed"

	// Capability errors originate from negotiation.
	CodeCapabilityUnsupported     Code = "capability.unsupported"
	CodeCapabilityEmulationFailed Code = "capability.emulation_failed"

	// Policy errors originate from the (external) policy collaborator.
	CodePolicyDenied  Code = "policy.denied"
	CodePolicyInvalid Code = "policy.invalid"

	// Workspace errors originate from the (external) workspace collaborator.
	CodeWorkspaceInitFailed    Code = "workspace.init_failed"
	CodeWorkspaceStagingFailed Code = "workspace.staging_failed"

	// IR errors originate from lowering a work order into an internal form.
	CodeIRLoweringFailed Code = "ir.lowering_failed"
	CodeIRInvalid        Code = "ir.invalid"

	// Receipt errors originate from the receipt model and chain.
	CodeReceiptHashMismatch Code = "receipt.hash_mismatch"
	CodeReceiptChainBroken Code = "receipt.chain_broken"

	// Dialect errors originate from vendor-shape mapping.
	CodeDialectUnknown       Code = "dialect.unknown"
	CodeDialectMappingFailed Code = "dialect.mapping_failed"

	// Config errors originate from runtime configuration resolution.
	CodeConfigInvalid Code = "config.invalid"

	// Internal is the catch-all for bugs, not expected in normal operation.
	CodeInternal Code = "internal"
)

// Error is the taxonomy's error type: a stable code, a human message,
// and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or CodeInternal if err is not
// (or does not wrap) a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
