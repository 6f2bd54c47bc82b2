package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ID is a 32-byte account or mint reference. Callers arrive with an
// already-verified identity; the core only ever compares IDs, it never
// performs cryptographic verification.
type ID [32]byte

// Zero is the null identity. It is never a valid account reference.
var Zero ID

// Derive produces a stable identity from a seed string, used for
// program-owned accounts such as the liquid-reserve holding account.
func Derive(seed string) ID {
	return ID(sha256.Sum256([]byte(seed)))
}

// New returns a random identity. Production identities come from the
// hosting environment; this is for tooling and tests.
func New() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("identity: rand failed: %v", err))
	}
	return id
}

// Parse decodes a 64-char hex string into an ID.
func Parse(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse identity: %w", err)
	}
	if len(raw) != len(id) {
		return Zero, fmt.Errorf("parse identity: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParse is Parse that panics on malformed input. Test helper.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is the null identity.
func (id ID) IsZero() bool {
	return id == Zero
}

// Short returns the first 8 hex chars for log fields.
func (id ID) Short() string {
	return hex.EncodeToString(id[:4])
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as hex
// in JSON payloads and map keys.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
