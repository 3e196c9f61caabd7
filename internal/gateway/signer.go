package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// Signer produces the HMAC-SHA256 request headers the gateway expects.
type Signer struct {
	ClientID  string
	SecretKey string
}

func (s Signer) Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(hash[:])
}

func (s Signer) Signature(requestID, timestamp, target, digest string) string {
	component := "Client-Id:" + s.ClientID + "\n" +
		"Request-Id:" + requestID + "\n" +
		"Request-Timestamp:" + timestamp + "\n" +
		"Request-Target:" + target + "\n" +
		"Digest:" + digest

	mac := hmac.New(sha256.New, []byte(s.SecretKey))
	mac.Write([]byte(component))
	return "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Headers signs body for target. The same timestamp is used for the header
// and the signed component.
func (s Signer) Headers(target string, body []byte, now time.Time) map[string]string {
	requestID := uuid.New().String()
	timestamp := now.UTC().Format(timestampLayout)
	digest := s.Digest(body)
	return map[string]string{
		"Client-Id":         s.ClientID,
		"Request-Id":        requestID,
		"Request-Timestamp": timestamp,
		"Signature":         s.Signature(requestID, timestamp, target, digest),
		"Content-Type":      "application/json",
		"Digest":            digest,
	}
}

// Verify checks headers produced by Headers.
func (s Signer) Verify(target string, body []byte, headers map[string]string) bool {
	digest := s.Digest(body)
	if !hmac.Equal([]byte(digest), []byte(headers["Digest"])) {
		return false
	}
	want := s.Signature(headers["Request-Id"], headers["Request-Timestamp"], target, digest)
	return hmac.Equal([]byte(want), []byte(headers["Signature"]))
}
