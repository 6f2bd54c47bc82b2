package token_test

import (
	"errors"
	"testing"

	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/token"
)

// ============================================================================
// Test: Book registration & single ops
// ============================================================================

func TestBook_MintAndBalance(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	authority := identity.Derive("test/authority")
	holder := identity.New()

	if err := bk.Register(mint, authority); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := bk.Mint(mint, holder, 1_000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if got := bk.Balance(mint, holder); got != 1_000 {
		t.Errorf("balance: got %d, want 1000", got)
	}
	if got := bk.Supply(mint); got != 1_000 {
		t.Errorf("supply: got %d, want 1000", got)
	}
}

func TestBook_RegisterTwice(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	authority := identity.Derive("test/authority")

	if err := bk.Register(mint, authority); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := bk.Register(mint, authority); !errors.Is(err, token.ErrInvalidTokenAccount) {
		t.Errorf("second register: got %v, want ErrInvalidTokenAccount", err)
	}
}

func TestBook_UnknownToken(t *testing.T) {
	bk := token.NewBook()
	err := bk.Mint(identity.New(), identity.New(), 1)
	if !errors.Is(err, token.ErrUnknownToken) {
		t.Errorf("got %v, want ErrUnknownToken", err)
	}
}

func TestBook_BurnInsufficient(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	authority := identity.Derive("test/authority")
	holder := identity.New()

	bk.Register(mint, authority)
	bk.Mint(mint, holder, 10)

	if err := bk.Burn(mint, holder, 11); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := bk.Balance(mint, holder); got != 10 {
		t.Errorf("failed burn mutated balance: got %d, want 10", got)
	}
}

// ============================================================================
// Test: Batch atomicity
// ============================================================================

func TestBook_BatchBothLegsOrNeither(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	authority := identity.Derive("test/authority")
	sender := identity.New()
	recipient := identity.New()
	feeAccount := identity.New()

	bk.Register(mint, authority)
	bk.Mint(mint, sender, 10_000)

	// Fee-split shape: main leg + fee leg from the same source.
	batch := token.NewBatch("transfer:test")
	batch.AddTransfer(mint, sender, recipient, 9_950)
	batch.AddTransfer(mint, sender, feeAccount, 50)

	if err := bk.Apply(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := bk.Balance(mint, sender); got != 0 {
		t.Errorf("sender: got %d, want 0", got)
	}
	if got := bk.Balance(mint, recipient); got != 9_950 {
		t.Errorf("recipient: got %d, want 9950", got)
	}
	if got := bk.Balance(mint, feeAccount); got != 50 {
		t.Errorf("fee account: got %d, want 50", got)
	}
}

func TestBook_BatchSecondLegFailsRollsBackFirst(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	authority := identity.Derive("test/authority")
	sender := identity.New()
	recipient := identity.New()
	feeAccount := identity.New()

	bk.Register(mint, authority)
	bk.Mint(mint, sender, 9_960)

	// First leg alone would fit, but the fee leg overdraws the shared source.
	batch := token.NewBatch("transfer:test")
	batch.AddTransfer(mint, sender, recipient, 9_950)
	batch.AddTransfer(mint, sender, feeAccount, 50)

	if err := bk.Apply(batch); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	// Nothing moved.
	if got := bk.Balance(mint, sender); got != 9_960 {
		t.Errorf("sender: got %d, want 9960", got)
	}
	if got := bk.Balance(mint, recipient); got != 0 {
		t.Errorf("recipient: got %d, want 0", got)
	}
}

func TestBook_ValidateDoesNotCommit(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	authority := identity.Derive("test/authority")
	holder := identity.New()

	bk.Register(mint, authority)
	bk.Mint(mint, holder, 100)

	batch := token.NewBatch("op:test")
	batch.AddTransfer(mint, holder, identity.New(), 40)

	if err := bk.Validate(batch); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := bk.Balance(mint, holder); got != 100 {
		t.Errorf("validate mutated balance: got %d, want 100", got)
	}

	if err := bk.Apply(batch); err != nil {
		t.Fatalf("apply after validate: %v", err)
	}
	if got := bk.Balance(mint, holder); got != 60 {
		t.Errorf("after apply: got %d, want 60", got)
	}
}

func TestBatch_WellFormed(t *testing.T) {
	mint := identity.Derive("test/mint")
	holder := identity.New()

	batch := token.NewBatch("op:test")
	batch.AddTransfer(mint, holder, holder, 1)
	if err := batch.CheckWellFormed(); !errors.Is(err, token.ErrInvalidTokenAccount) {
		t.Errorf("self-transfer: got %v, want ErrInvalidTokenAccount", err)
	}

	batch = token.NewBatch("op:test")
	batch.AddTransfer(mint, holder, identity.New(), 0)
	if err := batch.CheckWellFormed(); !errors.Is(err, token.ErrInvalidTokenAccount) {
		t.Errorf("zero amount: got %v, want ErrInvalidTokenAccount", err)
	}
}

func TestBook_SetAuthority(t *testing.T) {
	bk := token.NewBook()
	mint := identity.Derive("test/mint")
	oldAuth := identity.Derive("test/authority")
	newAuth := identity.Derive("test/pda")
	holder := identity.New()

	bk.Register(mint, oldAuth)
	if err := bk.SetAuthority(mint, newAuth); err != nil {
		t.Fatalf("set authority: %v", err)
	}

	// Minting still works through the book's current authority.
	if err := bk.Mint(mint, holder, 5); err != nil {
		t.Fatalf("mint after authority change: %v", err)
	}

	if err := bk.SetAuthority(identity.New(), newAuth); !errors.Is(err, token.ErrUnknownToken) {
		t.Errorf("unknown token: got %v, want ErrUnknownToken", err)
	}
}
