package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"mergerdesk.io/internal/apperr"
)

func badSignature(msg string) error {
	return apperr.New(apperr.KindInvalidSignature, "INVALID_SIGNATURE", msg)
}

// VerifySignature checks the hex-encoded HMAC-SHA256 of the raw body against
// the shared secret. Comparison is constant time. An unset secret always
// fails: deliveries must never be accepted unverified.
func VerifySignature(secret string, body []byte, signatureHex string) error {
	if secret == "" {
		return badSignature("webhook secret is not configured")
	}
	if signatureHex == "" {
		return badSignature("signature header missing")
	}
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return badSignature("signature is not valid hex")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return badSignature("signature mismatch")
	}
	return nil
}
