// Package canon provides deterministic JSON serialization and content
// hashing used to make receipts and envelopes self-describing.
//
// Serialization uses the package's own canonical form (not RFC 8785):
// object keys sorted by UTF-8 byte order, no insignificant whitespace,
// HTML escaping disabled, numbers preserved via json.Number so each
// number keeps the literal text it was decoded from.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// JSON returns the canonical JSON encoding of v.
//
// v is first marshaled with the standard library (so struct tags and
// custom MarshalJSON methods are respected), then decoded into a
// generic tree and re-encoded deterministically.
func JSON(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "canon: pre-marshal failed", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "canon: intermediate decode failed", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the canonical JSON encoding of v as a string.
func String(v any) (string, error) {
	b, err := JSON(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SHA256Hex returns the SHA-256 hex digest of raw bytes.
func SHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Hash returns the SHA-256 hex digest of the canonical JSON of v.
func Hash(v any) (string, error) {
	b, err := JSON(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return writeNumber(buf, t)
	case string:
		return writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return bperr.Newf(bperr.CodeInternal, "canon: unsupported type %T", v)
	}
}

// writeNumber validates the number is finite (json.Number from
// UseNumber() decoding is always a valid JSON literal already, so this
// mainly guards against NaN/Inf having slipped through a custom
// MarshalJSON).
func writeNumber(buf *bytes.Buffer, n json.Number) error {
	if f, err := n.Float64(); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return bperr.New(bperr.CodeInternal, "canon: non-finite number cannot be serialized")
		}
	}
	buf.WriteString(n.String())
	return nil
}

// writeString encodes s as a standard-escaped JSON string with
// lowercase \uXXXX escapes and no HTML escaping.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canon: string encode failed: %w", err)
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}
