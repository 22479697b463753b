package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// NewState returns a random URL-safe OAuth state value.
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SignState produces "state.sig" for storage in the state cookie so the
// callback can verify the state parameter was minted by this process group.
func SignState(state, secret string) string {
	return state + "." + stateMAC(state, secret)
}

// VerifyState checks a signed cookie value against the state query parameter.
func VerifyState(signed, state, secret string) bool {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return false
	}
	if signed[:i] != state {
		return false
	}
	return hmac.Equal([]byte(signed[i+1:]), []byte(stateMAC(state, secret)))
}

func stateMAC(state, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(state))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
