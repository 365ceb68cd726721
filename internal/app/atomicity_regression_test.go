package app

import (
	"testing"

	"wagerchain/internal/engine"
)

// Every tx is all-or-nothing: a rejection at any point — including deep in
// the engine — must leave bank balances, the game ledger, and the rate
// limiter exactly as they were.

func TestAtomicity_FailedDeployDoesNotDebitOrInstall(t *testing.T) {
	a := newTestApp(t)
	mintTestTokens(t, a, "admin", 10)

	// Digest of the wrong length fails construction after the deposit debit.
	res := a.deliverTx(txBytes(t, "wager/deploy", map[string]any{
		"deployer":     "admin",
		"answerDigest": []byte("short"),
	}), 0)
	if res.Code == 0 {
		t.Fatalf("expected deploy to fail")
	}

	if a.st.Game != nil {
		t.Fatalf("failed deploy must not install a game")
	}
	if bal := a.st.Balance("admin"); bal != 10 {
		t.Fatalf("failed deploy debited the deployer: %d", bal)
	}
}

func TestAtomicity_CooldownRejectionDoesNotDebitBank(t *testing.T) {
	a := setupDeployedGame(t)

	mustOk(t, a.deliverTx(txBytes(t, "wager/guess", map[string]any{"player": "alice", "candidate": 1}), 100))
	before := a.st.Balance("alice")
	attemptsBefore := a.st.Game.RemainingAttempts("alice")

	res := a.deliverTx(txBytes(t, "wager/guess", map[string]any{"player": "alice", "candidate": 2}), 101)
	if res.Code == 0 {
		t.Fatalf("expected cooldown rejection")
	}

	if after := a.st.Balance("alice"); after != before {
		t.Fatalf("bank balance changed on rejected guess: before=%d after=%d", before, after)
	}
	if a.st.Game.RemainingAttempts("alice") != attemptsBefore {
		t.Fatalf("attempt counter changed on rejected guess")
	}
	if a.st.Game.LedgerBalance() != 2 {
		t.Fatalf("ledger changed on rejected guess: %d", a.st.Game.LedgerBalance())
	}
}

func TestAtomicity_MaxAttemptsRejectionDoesNotDebitBank(t *testing.T) {
	a := setupDeployedGame(t)

	now := int64(0)
	for i := 0; i < int(engine.MaxAttempts); i++ {
		now += engine.CooldownSecs
		mustOk(t, a.deliverTx(txBytes(t, "wager/guess", map[string]any{"player": "alice", "candidate": 1}), now))
	}
	before := a.st.Balance("alice")
	hashBefore := a.st.AppHash()

	res := a.deliverTx(txBytes(t, "wager/guess", map[string]any{"player": "alice", "candidate": testAnswer}), now+engine.CooldownSecs)
	if res.Code == 0 {
		t.Fatalf("expected max-attempts rejection")
	}

	if after := a.st.Balance("alice"); after != before {
		t.Fatalf("bank balance changed: before=%d after=%d", before, after)
	}
	if string(a.st.AppHash()) != string(hashBefore) {
		t.Fatalf("state hash changed on rejected tx")
	}
}

func TestAtomicity_InsufficientFundsGuessLeavesGameUntouched(t *testing.T) {
	a := setupDeployedGame(t)

	res := a.deliverTx(txBytes(t, "wager/guess", map[string]any{"player": "pauper", "candidate": 1}), 100)
	if res.Code == 0 {
		t.Fatalf("expected rejection for unfunded player")
	}
	if a.st.Game.LedgerBalance() != 1 {
		t.Fatalf("ledger changed: %d", a.st.Game.LedgerBalance())
	}
	if a.st.Game.RemainingAttempts("pauper") != engine.MaxAttempts {
		t.Fatalf("attempts recorded for rejected guess")
	}
}

func TestAtomicity_FailedWithdrawLeavesEverything(t *testing.T) {
	a := setupDeployedGame(t)
	hashBefore := a.st.AppHash()

	res := a.deliverTx(txBytes(t, "wager/withdraw", map[string]any{"caller": "alice"}), 100)
	if res.Code == 0 {
		t.Fatalf("expected unauthorized withdraw to fail")
	}
	if string(a.st.AppHash()) != string(hashBefore) {
		t.Fatalf("state hash changed on rejected withdraw")
	}
}
