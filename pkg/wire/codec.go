package wire

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// MaxLineBytes bounds a single JSONL frame (spec §6: default 16 MiB).
const MaxLineBytes = 16 * 1024 * 1024

// Encode renders env as a single JSONL line, trailing newline included.
func Encode(env Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: encode failed", err)
	}
	return string(b) + "\n", nil
}

// Decode parses a single JSONL line into an Envelope. Blank lines are
// not valid input to Decode (callers should skip them before calling,
// per the batch helpers below).
func Decode(line string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		if bperr.CodeOf(err) != bperr.CodeInternal {
			return Envelope{}, err
		}
		return Envelope{}, bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: invalid json", err)
	}
	return env, nil
}

// EncodeBatch renders envs as consecutive JSONL lines.
func EncodeBatch(envs []Envelope) (string, error) {
	var sb strings.Builder
	for _, env := range envs {
		line, err := Encode(env)
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
	}
	return sb.String(), nil
}

// DecodeResult pairs a decoded Envelope with any error for one line of
// a batch decode, so one bad line does not poison the rest.
type DecodeResult struct {
	Envelope Envelope
	Err      error
}

// DecodeBatch splits s into lines, skipping blank lines, and decodes
// each independently.
func DecodeBatch(s string) []DecodeResult {
	var results []DecodeResult
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		env, err := Decode(line)
		results = append(results, DecodeResult{Envelope: env, Err: err})
	}
	return results
}

// LineError pairs a 1-based line number with the error found there.
type LineError struct {
	Line int
	Err  error
}

// ValidateJSONL scans s line by line and returns the (1-based) line
// number and error for every line that fails to decode as an Envelope
// or exceeds MaxLineBytes. Blank lines are skipped. A line longer than
// MaxLineBytes is reported as "line too large" and ends the scan; the
// lines after it are not checked.
func ValidateJSONL(s string) []LineError {
	var errs []LineError
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) > MaxLineBytes {
			errs = append(errs, LineError{Line: lineNo, Err: bperr.New(bperr.CodeProtocolInvalidEnvelope, "wire: line too large")})
			continue
		}
		if _, err := Decode(line); err != nil {
			errs = append(errs, LineError{Line: lineNo, Err: err})
		}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, LineError{Line: lineNo + 1, Err: bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "wire: line too large", err)})
	}
	return errs
}
