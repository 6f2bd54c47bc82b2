package token

import (
	"fmt"

	"EstabloLedger/internal/identity"

	"github.com/google/uuid"
)

// OpKind discriminates instruction types within a batch.
type OpKind uint8

const (
	OpMint OpKind = iota
	OpBurn
	OpTransfer
)

func (k OpKind) String() string {
	switch k {
	case OpMint:
		return "mint"
	case OpBurn:
		return "burn"
	case OpTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Instruction is a single token movement. Amount is always positive.
type Instruction struct {
	InstructionID uuid.UUID
	Kind          OpKind
	Token         identity.ID
	From          identity.ID // burn source / transfer source
	To            identity.ID // mint recipient / transfer destination
	Authority     identity.ID // required for mint and burn
	Amount        uint64
}

// Batch groups instructions that must commit together. OpRef carries the
// idempotency key of the operation that produced the batch.
type Batch struct {
	BatchID      uuid.UUID
	OpRef        string
	Instructions []Instruction
}

// NewBatch creates an empty batch tagged with the originating operation.
func NewBatch(opRef string) *Batch {
	return &Batch{BatchID: uuid.New(), OpRef: opRef}
}

// AddMint appends a mint instruction.
func (b *Batch) AddMint(tok, to, authority identity.ID, amount uint64) {
	b.Instructions = append(b.Instructions, Instruction{
		InstructionID: uuid.New(),
		Kind:          OpMint,
		Token:         tok,
		To:            to,
		Authority:     authority,
		Amount:        amount,
	})
}

// AddBurn appends a burn instruction.
func (b *Batch) AddBurn(tok, from, authority identity.ID, amount uint64) {
	b.Instructions = append(b.Instructions, Instruction{
		InstructionID: uuid.New(),
		Kind:          OpBurn,
		Token:         tok,
		From:          from,
		Authority:     authority,
		Amount:        amount,
	})
}

// AddTransfer appends a transfer instruction.
func (b *Batch) AddTransfer(tok, from, to identity.ID, amount uint64) {
	b.Instructions = append(b.Instructions, Instruction{
		InstructionID: uuid.New(),
		Kind:          OpTransfer,
		Token:         tok,
		From:          from,
		To:            to,
		Amount:        amount,
	})
}

// CheckWellFormed rejects structurally broken batches before any balance
// simulation: non-positive amounts, null parties, self-transfers.
func (b *Batch) CheckWellFormed() error {
	for _, ins := range b.Instructions {
		if ins.Amount == 0 {
			return fmt.Errorf("instruction %s: zero amount: %w", ins.InstructionID, ErrInvalidTokenAccount)
		}
		if ins.Token.IsZero() {
			return fmt.Errorf("instruction %s: null token ref: %w", ins.InstructionID, ErrInvalidTokenAccount)
		}
		switch ins.Kind {
		case OpMint:
			if ins.To.IsZero() {
				return fmt.Errorf("instruction %s: mint to null account: %w", ins.InstructionID, ErrInvalidTokenAccount)
			}
		case OpBurn:
			if ins.From.IsZero() {
				return fmt.Errorf("instruction %s: burn from null account: %w", ins.InstructionID, ErrInvalidTokenAccount)
			}
		case OpTransfer:
			if ins.From.IsZero() || ins.To.IsZero() {
				return fmt.Errorf("instruction %s: transfer with null party: %w", ins.InstructionID, ErrInvalidTokenAccount)
			}
			if ins.From == ins.To {
				return fmt.Errorf("instruction %s: self-transfer: %w", ins.InstructionID, ErrInvalidTokenAccount)
			}
		default:
			return fmt.Errorf("instruction %s: unknown kind %d: %w", ins.InstructionID, ins.Kind, ErrInvalidTokenAccount)
		}
	}
	return nil
}
