package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of a callback body
const SignatureHeader = "X-Callback-Signature"

// GenerateHMAC signs a callback body with the shared callback secret
func GenerateHMAC(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC checks a hex signature against the body in constant time
func VerifyHMAC(body []byte, secret, signature string) error {
	if secret == "" {
		return fmt.Errorf("callback secret is not configured")
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("signature is not hex: %w", err)
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	if !hmac.Equal(got, h.Sum(nil)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
