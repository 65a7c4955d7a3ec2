package node

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const defaultDisplayName = "Anonymous"

// newPeerID generates a random 64-bit session-scoped identity, hex
// encoded, mirroring the lowercase-hex convention the crypto channel
// uses for its sealed fields.
func newPeerID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("node: failed to read random peer-id: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// newMessageID generates a random 128-bit id, hex encoded. Globally
// unique with overwhelming probability, as required by the data model.
func newMessageID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("node: failed to read random message-id: %v", err))
	}
	return hex.EncodeToString(b[:])
}

func resolveDisplayName(name string) string {
	if name == "" {
		return defaultDisplayName
	}
	return name
}
