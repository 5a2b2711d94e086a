// Package fingerprint derives a stable cross-instance identity for a device.
// Session ids are opaque per-instance values, so the only way to recognize
// the same machine on two instances is to hash the attributes that survive a
// reinstall: machine name, network address, and client version.
package fingerprint

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const separator = "|"

// Compute returns a 32-character lowercase hex fingerprint over the three
// identity attributes. Each field is trimmed and lowercased before hashing;
// case and surrounding whitespace differences between instances must not
// change the identity. Not collision-free, only a best-effort surrogate key.
func Compute(name, networkAddress, clientVersion string) string {
	input := normalize(name) + separator + normalize(networkAddress) + separator + normalize(clientVersion)
	h, _ := blake2b.New(16, nil) // only errors for bad key/size arguments
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
