// Package pairing generates and verifies the short-lived codes the wallet
// UI uses to pair with the approval server.
package pairing

import (
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

func GeneratePairCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0 O I 1
	const length = 8

	b := make([]byte, length)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}

	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}

	return string(b), nil
}

func HashCode(code string) []byte {
	h := sha256.Sum256([]byte(code))
	return h[:]
}

// VerifyCode compares a candidate code against a stored hash in constant
// time.
func VerifyCode(code string, hash []byte) bool {
	sum := HashCode(code)
	return len(hash) == len(sum) && subtle.ConstantTimeCompare(sum, hash) == 1
}

// NewSessionToken returns a fresh random bearer token.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
