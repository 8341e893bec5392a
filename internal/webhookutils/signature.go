package webhookutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// SignaturePrefix is prepended to the hex HMAC in X-Hub-Signature-256.
const SignaturePrefix = "sha256="

var (
	// ErrBodyNotCaptured means the raw request bytes were not available.
	ErrBodyNotCaptured = errors.New("raw request body was not captured")
	// ErrSignatureMissing means the signature header was absent or empty.
	ErrSignatureMissing = errors.New("signature header missing")
	// ErrSignatureMalformed means the header did not have the expected shape.
	ErrSignatureMalformed = errors.New("signature header malformed")
	// ErrSignatureMismatch means the HMAC did not match.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Verifier authenticates webhook bodies against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for secret. An empty secret disables
// verification.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Sign returns the header value the provider would send for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the HMAC-SHA256 of rawBody. rawBody must be
// the exact bytes received; nil means they were not captured.
func (v *Verifier) Verify(logger *zerolog.Logger, rawBody []byte, signature string) error {
	if !v.Enabled() {
		logger.Warn().Msg("Webhook secret not configured, skipping signature verification")
		return nil
	}

	if rawBody == nil {
		return ErrBodyNotCaptured
	}

	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return ErrSignatureMalformed
	}

	expected := Sign(v.secret, rawBody)
	if len(signature) != len(expected) {
		return ErrSignatureMalformed
	}

	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
