package pairgate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// userCodeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const userCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const userCodeLength = 4

// NewUserCode produces a short human-typed pairing code such as "PAIR-7XQ4".
// Collisions are possible and tolerated; the authorization store reports them.
func NewUserCode(prefix string) string {
	buf := make([]byte, userCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is unusable.
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = userCodeAlphabet[int(b)%len(userCodeAlphabet)]
	}
	return prefix + "-" + string(buf)
}

// NewOpaqueToken produces an unguessable hex string from byteLength random
// bytes. Used for auth codes, device codes, access and refresh tokens.
func NewOpaqueToken(byteLength int) string {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
