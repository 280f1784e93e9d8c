/**
 * @description
 * This file implements HMAC signature verification for inbound webhooks. The
 * payment provider and the generation pipeline both sign the raw request body
 * with a shared secret; the hex digest arrives in a request header.
 *
 * @notes
 * - Verification runs over the raw bytes exactly as received, before any JSON
 *   decoding. Comparison uses hmac.Equal to stay constant time.
 * - An empty configured secret fails closed: nothing verifies.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the hex-encoded HMAC-SHA256 signature of a raw
// webhook body. A "sha256=" prefix on the header value is tolerated.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, received)
}
