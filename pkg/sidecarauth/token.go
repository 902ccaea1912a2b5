// Package sidecarauth signs and verifies an optional provenance token
// a sidecar can embed in its hello.backend.adapter_version trust
// chain, asserting which build produced the handshake. Key management
// itself is an external collaborator (spec §1); this package only
// signs/verifies against whatever shared secret or key the caller
// supplies, following the teacher's identity/token.go claims shape.
package sidecarauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
)

// ProvenanceClaims asserts which backend build produced a handshake.
type ProvenanceClaims struct {
	jwt.RegisteredClaims
	BackendID      string `json:"backend_id"`
	AdapterVersion string `json:"adapter_version"`
}

// Signer issues provenance tokens with an HMAC secret.
type Signer struct {
	secret []byte
	issuer string
}

// NewSigner builds a Signer. issuer is stamped into every token's
// RegisteredClaims.Issuer (e.g. "abp.sidecarauth").
func NewSigner(secret []byte, issuer string) *Signer {
	return &Signer{secret: secret, issuer: issuer}
}

// Sign issues a provenance token for backendID/adapterVersion, valid
// for ttl from now.
func (s *Signer) Sign(backendID, adapterVersion string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := ProvenanceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
			Subject:   backendID,
		},
		BackendID:      backendID,
		AdapterVersion: adapterVersion,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", bperr.Wrap(bperr.CodeInternal, "sidecarauth: sign failed", err)
	}
	return signed, nil
}

// Verifier validates provenance tokens issued by a Signer holding the
// same secret.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier for the given shared secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates tokenString, returning its claims. It
// fails on a bad signature, expiry, or malformed token.
func (v *Verifier) Verify(tokenString string) (*ProvenanceClaims, error) {
	claims := &ProvenanceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, bperr.Newf(bperr.CodeInternal, "sidecarauth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "sidecarauth: token invalid", err)
	}
	if !token.Valid {
		return nil, bperr.New(bperr.CodeInternal, "sidecarauth: token invalid")
	}
	return claims, nil
}

// VerifyMatchesIdentity verifies tokenString and checks that its
// claims match backendID/adapterVersion exactly, binding the token to
// a specific hello frame's declared identity.
func (v *Verifier) VerifyMatchesIdentity(tokenString, backendID, adapterVersion string) error {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return err
	}
	if claims.BackendID != backendID || claims.AdapterVersion != adapterVersion {
		return bperr.Newf(bperr.CodeInternal,
			"sidecarauth: token identity mismatch (token=%s/%s hello=%s/%s)",
			claims.BackendID, claims.AdapterVersion, backendID, adapterVersion)
	}
	return nil
}
