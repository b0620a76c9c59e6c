package mentions

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "x-twitter-signature"
	TimestampHeader = "x-twitter-timestamp"
)

// SignWebhook returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func SignWebhook(body []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature compares the header against the expected hex digest.
// The comparison is exact: a differently cased digest does not match.
func VerifyWebhookSignature(body []byte, signature, timestamp, secret string) bool {
	if signature == "" || timestamp == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	expected := SignWebhook(body, timestamp, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// CRCResponseToken answers the platform's webhook registration challenge.
func CRCResponseToken(crcToken, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(crcToken))
	return "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
