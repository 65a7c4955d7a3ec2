// Package room derives the per-room cryptographic channel and UDP port
// from a room name, and seals/opens envelope content under the derived
// key.
package room

import (
	"crypto/aes"
	"crypto/cipher"
	cryptorand "crypto/rand"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/crypto/pbkdf2"

	"localchat.dev/node/logging"
)

const (
	KeySize    = 32
	nonceSize  = 12
	tagSize    = 16
	kdfIters   = 100000
	kdfSalt    = "localchat2024salt"
	aeadADInfo = "localchat"

	basePortFloor = 12000
	basePortSpan  = 1000
)

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var ErrInvalidRoom = errors.New("room: invalid room name")

// ErrAeadFailure is returned by Open on tag mismatch or malformed input.
var ErrAeadFailure = errors.New("room: aead open failed")

// Normalize trims whitespace, replaces interior spaces with '-', lowercases
// the result, then upper-cases the first rune -- e.g. "Team Meeting " ->
// "Team-meeting". Returns ErrInvalidRoom if the normalized name is empty
// or does not match ^[A-Za-z0-9_-]+$.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	replaced := strings.ReplaceAll(trimmed, " ", "-")
	lowered := strings.ToLower(replaced)
	if lowered == "" {
		return "", ErrInvalidRoom
	}
	runes := []rune(lowered)
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	normalized := string(runes)
	if !nameRegexp.MatchString(normalized) {
		return "", ErrInvalidRoom
	}
	return normalized, nil
}

// Port deterministically maps a (already-normalized) room name to a base
// UDP port in [12000, 12999]: the first 16 bits of MD5(name) interpreted
// big-endian, modulo 1000, offset from the port floor.
func Port(name string) int {
	sum := md5.Sum([]byte(name))
	first16 := binary.BigEndian.Uint16(sum[:2])
	return basePortFloor + int(first16)%basePortSpan
}

// Sealed is the on-wire shape of an encrypted envelope payload: every
// field is lowercase hex, per the wire contract.
type Sealed struct {
	IV         string `json:"iv"`
	Encrypted  string `json:"encrypted"`
	AuthTag    string `json:"authTag"`
}

// Channel is the authenticated-encryption context for one room. It owns
// the derived key exclusively; nothing outside this package ever sees
// key material.
type Channel struct {
	gcm cipher.AEAD
}

var logHardwareAESOnce sync.Once

// NewChannel derives the room's symmetric key via PBKDF2-HMAC-SHA-256 and
// constructs the AES-256-GCM AEAD over it.
func NewChannel(roomName string, log *logging.Logger) (*Channel, error) {
	key := pbkdf2.Key([]byte(roomName), []byte(kdfSalt), kdfIters, KeySize, sha256.New)

	if log != nil {
		logHardwareAESOnce.Do(func() {
			if cpuid.CPU.Supports(cpuid.AESNI) {
				log.Debug.Println("AES-NI available, AES-256-GCM sealing will be hardware-accelerated")
			} else {
				log.Debug.Println("AES-NI not available, falling back to software AES-256-GCM")
			}
		})
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("room: construct aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("room: construct gcm: %w", err)
	}
	return &Channel{gcm: gcm}, nil
}

// Seal authenticated-encrypts plaintext under a fresh random 12-byte
// nonce. The nonce MUST be generated fresh per call and bound to the
// cipher instance here -- an earlier, unsound revision of this code used
// a key-only construction with no explicit IV; that form must never be
// reintroduced (see design notes on legacy nonce usage).
func (c *Channel) Seal(plaintext []byte) (Sealed, error) {
	nonce := make([]byte, nonceSize)
	if _, err := cryptorand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("room: generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nil, nonce, plaintext, []byte(aeadADInfo))
	if len(sealed) < tagSize {
		return Sealed{}, ErrAeadFailure
	}
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return Sealed{
		IV:        hexEncode(nonce),
		Encrypted: hexEncode(ciphertext),
		AuthTag:   hexEncode(tag),
	}, nil
}

// Open inverts Seal. It fails with ErrAeadFailure on tag mismatch or
// malformed hex; callers must drop the datagram silently on failure, per
// the propagation policy -- no peer signalling, no UI-facing error.
func (c *Channel) Open(s Sealed) ([]byte, error) {
	nonce, err := hexDecode(s.IV)
	if err != nil || len(nonce) != nonceSize {
		return nil, ErrAeadFailure
	}
	ciphertext, err := hexDecode(s.Encrypted)
	if err != nil {
		return nil, ErrAeadFailure
	}
	tag, err := hexDecode(s.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, ErrAeadFailure
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.gcm.Open(nil, nonce, sealed, []byte(aeadADInfo))
	if err != nil {
		return nil, ErrAeadFailure
	}
	return plaintext, nil
}

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }
