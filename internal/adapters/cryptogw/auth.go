package cryptogw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// AuthConfig carries the credential pair for the crypto gateway. The
// key travels in the clear on every request; the secret never leaves
// the process and only feeds the signature.
type AuthConfig struct {
	APIKey    string
	APISecret string
}

// CalculateSignature signs an outbound request as the gateway expects:
// hex(HMAC-SHA256(endpoint || payload, secret)). Binding the endpoint
// path into the digest keeps a signed body from being replayed against
// a different route.
func CalculateSignature(apiSecret, endpoint string, payloadBytes []byte) string {
	concat := append([]byte(endpoint), payloadBytes...)

	h := hmac.New(sha256.New, []byte(apiSecret))
	h.Write(concat)

	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature checks the signature on an inbound gateway
// callback. Comparison goes through hmac.Equal so it runs in constant
// time regardless of where the signatures diverge.
func ValidateSignature(apiSecret, endpoint string, payloadBytes []byte, signature string) bool {
	expected := CalculateSignature(apiSecret, endpoint, payloadBytes)
	return hmac.Equal([]byte(expected), []byte(signature))
}
