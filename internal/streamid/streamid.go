// Package streamid generates the opaque per-stream identifiers ("cid")
// the local side assigns to every accepted SOCKS5 connection.
package streamid

import (
	"math/big"

	"github.com/google/uuid"
)

// Length is the fixed length of a generated identifier, in characters.
const Length = 8

// alphabet is base62: digits, uppercase, lowercase. Packing the 8-char
// tag with base62 instead of hex carries roughly 47.6 bits of entropy
// where hex would only fit 32 bits in the same width, keeping the
// birthday bound negligible at the concurrent-stream counts this
// system targets.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var base = big.NewInt(int64(len(alphabet)))

// capacity is base^Length: the number of distinct 8-char base62 strings.
var capacity = new(big.Int).Exp(base, big.NewInt(Length), nil)

// New returns a random 8-character base62 tag. It draws 6 random bytes
// from a freshly generated UUID (rather than calling crypto/rand
// directly), reduces them into the base62 tag space, and encodes the
// result, reusing the same random source the rest of the stack already
// depends on.
func New() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:6])
	n.Mod(n, capacity)

	buf := make([]byte, Length)
	mod := new(big.Int)
	for i := Length - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		buf[i] = alphabet[mod.Int64()]
	}
	return string(buf)
}
