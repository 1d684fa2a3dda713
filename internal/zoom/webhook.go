package zoom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignWebhook computes the signature the provider attaches to webhook
// requests: v0=HMAC-SHA256("v0:{timestamp}:{body}", secret) hex-encoded.
func SignWebhook(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a request signature in constant time.
func VerifyWebhookSignature(secret, timestamp string, body []byte, signature string) bool {
	expected := SignWebhook(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HashValidationToken answers the URL-validation handshake:
// hex(HMAC-SHA256(plainToken, secret)).
func HashValidationToken(secret, plainToken string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(plainToken))
	return hex.EncodeToString(mac.Sum(nil))
}
