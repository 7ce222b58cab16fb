package notification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Signature headers sent with every signed approval request.
const (
	HeaderSignature   = "X-Webhook-Signature"
	HeaderTimestamp   = "X-Webhook-Timestamp"
	HeaderSignatureV2 = "X-Webhook-Signature-V2"
)

var (
	// ErrMissingSignature indicates the request carries no signature headers.
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrSignatureMismatch indicates the signature does not match the body.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")

	// ErrStaleTimestamp indicates the timestamp is outside the tolerance window.
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
)

// Signer signs approval payloads with HMAC-SHA256.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign returns "sha256=<hex>" for payload.
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) signTimestamped(payload []byte, ts int64) string {
	return s.Sign(fmt.Appendf(nil, "%d.%s", ts, payload))
}

// Apply sets the signature headers on h for payload signed at ts.
// The V2 signature covers "<unix>.<payload>".
func (s *Signer) Apply(h http.Header, payload []byte, ts time.Time) {
	unix := ts.Unix()
	h.Set(HeaderSignature, s.Sign(payload))
	h.Set(HeaderTimestamp, strconv.FormatInt(unix, 10))
	h.Set(HeaderSignatureV2, s.signTimestamped(payload, unix))
}

// Verify checks the headers against payload. With a positive tolerance the
// timestamped signature is required and must be fresh; otherwise the plain
// signature is accepted.
func (s *Signer) Verify(h http.Header, payload []byte, tolerance time.Duration) error {
	if tolerance <= 0 {
		sig := h.Get(HeaderSignature)
		if sig == "" {
			return ErrMissingSignature
		}
		if !hmac.Equal([]byte(s.Sign(payload)), []byte(sig)) {
			return ErrSignatureMismatch
		}
		return nil
	}

	sig, raw := h.Get(HeaderSignatureV2), h.Get(HeaderTimestamp)
	if sig == "" || raw == "" {
		return ErrMissingSignature
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingSignature, err)
	}

	now := s.now().Unix()
	window := int64(tolerance.Seconds())
	if ts < now-window || ts > now+window {
		return ErrStaleTimestamp
	}
	if !hmac.Equal([]byte(s.signTimestamped(payload, ts)), []byte(sig)) {
		return ErrSignatureMismatch
	}
	return nil
}
