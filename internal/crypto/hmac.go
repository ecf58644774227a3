package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// WebhookSigner signs outbound webhook deliveries so consumers can
// verify origin and freshness. The signature covers timestamp and body
// joined by a dot, HMAC-SHA256 hex-encoded.
type WebhookSigner struct {
	secret []byte
}

// NewWebhookSigner creates a WebhookSigner from the signing secret.
func NewWebhookSigner(secret string) *WebhookSigner {
	return &WebhookSigner{secret: []byte(secret)}
}

// Headers returns the signature headers for one delivery body.
//
// Returned header keys:
//   - X-Payrouter-Timestamp
//   - X-Payrouter-Signature
func (s *WebhookSigner) Headers(body []byte) map[string]string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return map[string]string{
		"X-Payrouter-Timestamp": ts,
		"X-Payrouter-Signature": s.sign(ts, body),
	}
}

// Verify checks a received signature against the body and timestamp,
// rejecting deliveries older than tolerance. Comparison is constant
// time.
func (s *WebhookSigner) Verify(timestamp, signature string, body []byte, tolerance time.Duration) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if tolerance > 0 && age > tolerance {
		return false
	}

	expected := s.sign(timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *WebhookSigner) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
