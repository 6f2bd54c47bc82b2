package token

import (
	"errors"

	"EstabloLedger/internal/identity"
)

// Transferrer is the token-transfer collaborator boundary. Each call is
// atomic: it either fully applies or leaves no trace. Multi-leg moves
// (e.g. a fee split) go through a Batch so that the legs commit together.
//
// Operations that interleave other fallible work between balance checks
// and application use the Validate/Apply pair: Validate proves the batch
// will succeed against current balances, Apply commits it. Access to a
// token book is serialized by the hosting environment, so nothing can
// invalidate a batch between the two calls within one operation.
type Transferrer interface {
	Register(tok, authority identity.ID) error
	Mint(tok, to identity.ID, amount uint64) error
	Burn(tok, from identity.ID, amount uint64) error
	Transfer(tok, from, to identity.ID, amount uint64) error
	SetAuthority(tok, newAuthority identity.ID) error

	Validate(batch *Batch) error
	Apply(batch *Batch) error

	Balance(tok, holder identity.ID) uint64
	Supply(tok identity.ID) uint64
}

var (
	// ErrUnknownToken is returned when a referenced token type was
	// never registered with the book.
	ErrUnknownToken = errors.New("unknown token")

	// ErrInvalidTokenAccount is returned when a referenced holder or
	// token reference fails a validity precondition (null identity,
	// mint mismatch).
	ErrInvalidTokenAccount = errors.New("invalid token account")

	// ErrNotAuthority is returned when a mint or burn instruction
	// names an authority other than the token's registered one.
	ErrNotAuthority = errors.New("not the token authority")

	// ErrInsufficientBalance is the transport-level failure for a
	// transfer or burn exceeding the source balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")
)
