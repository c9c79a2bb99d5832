package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the X-Hub-Signature-256 header against payload
// using secret, constant-time, matching validators.py's
// verify_webhook_signature. An empty secret or header is always invalid.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	if len(payload) == 0 || signatureHeader == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(signatureHeader, "sha256=") {
		return false
	}
	expected := computeSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

func computeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
