package broker

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"strings"
)

// Hasher computes the login password hash from the secret parts and the
// broker challenge.
type Hasher interface {
	Hash(parts []string, challenge []byte) []byte
}

// HasherFunc adapts a function to Hasher.
type HasherFunc func(parts []string, challenge []byte) []byte

// Hash calls f.
func (f HasherFunc) Hash(parts []string, challenge []byte) []byte {
	return f(parts, challenge)
}

// HMACHasher is the default Hasher: HMAC-SHA256 keyed with the challenge
// over the parts, each terminated by a zero byte.
type HMACHasher struct{}

// Hash implements Hasher.
func (HMACHasher) Hash(parts []string, challenge []byte) []byte {
	mac := hmac.New(sha256.New, challenge)
	for _, p := range parts {
		mac.Write([]byte(p))
		mac.Write([]byte{0})
	}
	return mac.Sum(nil)
}

// ChallengeBytes returns the bytes a getChallenge result contributes to
// the hash: the contents of a JSON string, the literal text of anything
// else.
func ChallengeBytes(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return []byte(raw)
}

// secretParts returns the hash input for a login.
func secretParts(password, user, project string) []string {
	return []string{password, strings.ToLower(user), strings.ToLower(project)}
}
