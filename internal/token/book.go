package token

import (
	"fmt"

	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/safemath"
)

type holdingKey struct {
	Token  identity.ID
	Holder identity.ID
}

// Book is the in-memory token-transfer collaborator. It maintains
// per-token balances, supplies, and mint authorities. Not thread-safe —
// only accessed from the single-threaded operation core.
type Book struct {
	balances  map[holdingKey]uint64
	supply    map[identity.ID]uint64
	authority map[identity.ID]identity.ID
}

func NewBook() *Book {
	return &Book{
		balances:  make(map[holdingKey]uint64),
		supply:    make(map[identity.ID]uint64),
		authority: make(map[identity.ID]identity.ID),
	}
}

// Register creates a token type with its mint authority. Registering an
// existing token is an error: mint references are unique.
func (bk *Book) Register(tok, authority identity.ID) error {
	if tok.IsZero() || authority.IsZero() {
		return fmt.Errorf("register token: %w", ErrInvalidTokenAccount)
	}
	if _, exists := bk.authority[tok]; exists {
		return fmt.Errorf("register token %s: already registered: %w", tok.Short(), ErrInvalidTokenAccount)
	}
	bk.authority[tok] = authority
	return nil
}

// SetAuthority replaces a token's mint authority.
func (bk *Book) SetAuthority(tok, newAuthority identity.ID) error {
	if _, exists := bk.authority[tok]; !exists {
		return fmt.Errorf("set authority on %s: %w", tok.Short(), ErrUnknownToken)
	}
	if newAuthority.IsZero() {
		return fmt.Errorf("set authority on %s: %w", tok.Short(), ErrInvalidTokenAccount)
	}
	bk.authority[tok] = newAuthority
	return nil
}

// Balance returns the holder's balance for a token. Unknown holdings are zero.
func (bk *Book) Balance(tok, holder identity.ID) uint64 {
	return bk.balances[holdingKey{Token: tok, Holder: holder}]
}

// Supply returns the outstanding supply for a token.
func (bk *Book) Supply(tok identity.ID) uint64 {
	return bk.supply[tok]
}

// Mint issues amount to a holder (single-instruction batch).
func (bk *Book) Mint(tok, to identity.ID, amount uint64) error {
	batch := NewBatch("")
	batch.AddMint(tok, to, bk.authority[tok], amount)
	return bk.Apply(batch)
}

// Burn destroys amount from a holder (single-instruction batch).
func (bk *Book) Burn(tok, from identity.ID, amount uint64) error {
	batch := NewBatch("")
	batch.AddBurn(tok, from, bk.authority[tok], amount)
	return bk.Apply(batch)
}

// Transfer moves amount between holders (single-instruction batch).
func (bk *Book) Transfer(tok, from, to identity.ID, amount uint64) error {
	batch := NewBatch("")
	batch.AddTransfer(tok, from, to, amount)
	return bk.Apply(batch)
}

// Validate proves a batch would apply cleanly against current balances
// without committing anything. Legs are simulated in order, so a second
// leg sees the first leg's effect on a shared source account.
func (bk *Book) Validate(batch *Batch) error {
	_, _, err := bk.simulate(batch)
	return err
}

// Apply commits a batch atomically: it re-validates against current
// state, then writes every touched balance in one step. A failed batch
// leaves the book untouched.
func (bk *Book) Apply(batch *Batch) error {
	bal, sup, err := bk.simulate(batch)
	if err != nil {
		return err
	}
	for k, v := range bal {
		bk.balances[k] = v
	}
	for k, v := range sup {
		bk.supply[k] = v
	}
	return nil
}

// simulate runs the batch against scratch copies of the touched entries.
func (bk *Book) simulate(batch *Batch) (map[holdingKey]uint64, map[identity.ID]uint64, error) {
	if err := batch.CheckWellFormed(); err != nil {
		return nil, nil, err
	}

	bal := make(map[holdingKey]uint64)
	sup := make(map[identity.ID]uint64)

	getBal := func(k holdingKey) uint64 {
		if v, ok := bal[k]; ok {
			return v
		}
		return bk.balances[k]
	}
	getSup := func(tok identity.ID) uint64 {
		if v, ok := sup[tok]; ok {
			return v
		}
		return bk.supply[tok]
	}

	for _, ins := range batch.Instructions {
		auth, registered := bk.authority[ins.Token]
		if !registered {
			return nil, nil, fmt.Errorf("instruction %s: token %s: %w", ins.InstructionID, ins.Token.Short(), ErrUnknownToken)
		}

		switch ins.Kind {
		case OpMint:
			if ins.Authority != auth {
				return nil, nil, fmt.Errorf("mint %s on %s: %w", ins.InstructionID, ins.Token.Short(), ErrNotAuthority)
			}
			key := holdingKey{Token: ins.Token, Holder: ins.To}
			next, err := safemath.Add(getBal(key), ins.Amount)
			if err != nil {
				return nil, nil, fmt.Errorf("mint %s: balance: %w", ins.InstructionID, err)
			}
			nextSup, err := safemath.Add(getSup(ins.Token), ins.Amount)
			if err != nil {
				return nil, nil, fmt.Errorf("mint %s: supply: %w", ins.InstructionID, err)
			}
			bal[key] = next
			sup[ins.Token] = nextSup

		case OpBurn:
			if ins.Authority != auth {
				return nil, nil, fmt.Errorf("burn %s on %s: %w", ins.InstructionID, ins.Token.Short(), ErrNotAuthority)
			}
			key := holdingKey{Token: ins.Token, Holder: ins.From}
			have := getBal(key)
			if have < ins.Amount {
				return nil, nil, fmt.Errorf("burn %s: have=%d need=%d: %w", ins.InstructionID, have, ins.Amount, ErrInsufficientBalance)
			}
			bal[key] = have - ins.Amount
			sup[ins.Token] = getSup(ins.Token) - ins.Amount

		case OpTransfer:
			fromKey := holdingKey{Token: ins.Token, Holder: ins.From}
			toKey := holdingKey{Token: ins.Token, Holder: ins.To}
			have := getBal(fromKey)
			if have < ins.Amount {
				return nil, nil, fmt.Errorf("transfer %s: have=%d need=%d: %w", ins.InstructionID, have, ins.Amount, ErrInsufficientBalance)
			}
			next, err := safemath.Add(getBal(toKey), ins.Amount)
			if err != nil {
				return nil, nil, fmt.Errorf("transfer %s: destination balance: %w", ins.InstructionID, err)
			}
			bal[fromKey] = have - ins.Amount
			bal[toKey] = next
		}
	}

	return bal, sup, nil
}

// SnapshotBalances returns a copy of all non-zero holdings keyed by
// "token:holder" paths, for persistence snapshots.
func (bk *Book) SnapshotBalances() map[string]uint64 {
	out := make(map[string]uint64, len(bk.balances))
	for k, v := range bk.balances {
		if v == 0 {
			continue
		}
		out[fmt.Sprintf("%s:%s", k.Token, k.Holder)] = v
	}
	return out
}

// RestoreHolding sets one balance directly during snapshot restore.
func (bk *Book) RestoreHolding(tok, holder identity.ID, amount uint64) {
	bk.balances[holdingKey{Token: tok, Holder: holder}] = amount
}

// RestoreToken re-registers a token with its authority and supply
// during snapshot restore.
func (bk *Book) RestoreToken(tok, authority identity.ID, supply uint64) {
	bk.authority[tok] = authority
	bk.supply[tok] = supply
}

// Tokens returns all registered token refs with their authorities,
// for persistence snapshots.
func (bk *Book) Tokens() map[identity.ID]identity.ID {
	out := make(map[identity.ID]identity.ID, len(bk.authority))
	for k, v := range bk.authority {
		out[k] = v
	}
	return out
}
