// Package engine implements the wager ledger: a single-contract guessing
// game where participants pay a fixed stake to guess a committed secret
// value and a correct guess pays out double the stake.
//
// The package is a pure state machine. Its only environment ports are the
// caller identity, a wall-clock reading supplied per call, and a Payer for
// outbound transfers. The Payer may execute arbitrary code — including
// synchronously re-entering this engine — so every mutating entry point is
// serialized by a reentrancy lock and follows checks-effects-interactions:
// all accounting is committed before the transfer is issued, and any
// failure rolls the whole call back.
//
// Known limitation, inherited from the original game: the guessable space
// is small enough to brute-force. The rate limiter (MaxAttempts guesses per
// identity, CooldownSecs between them) is the only mitigation; widening the
// space would change the stake/payout balance and is deliberately not done.
package engine

import (
	"bytes"
	"fmt"
)

const (
	// StakeAmount is the fixed payment required to submit one guess. The
	// deployer attaches the same amount at construction.
	StakeAmount uint64 = 1

	// PayoutAmount is the fixed reward for a correct guess.
	PayoutAmount uint64 = 2 * StakeAmount

	// MaxAttempts is the lifetime guess cap per participant.
	MaxAttempts uint8 = 3

	// CooldownSecs is the minimum spacing between accepted guesses from the
	// same participant.
	CooldownSecs int64 = 60
)

// Payer delivers value to a recipient outside the engine's trust boundary.
// The recipient may run arbitrary code before Pay returns, including nested
// calls back into the engine.
type Payer interface {
	Pay(to string, amount uint64) error
}

// Game is the singleton wager ledger aggregate. All mutation goes through
// Guess and Withdraw; the exported fields exist for persistence and
// read-only inspection.
type Game struct {
	// AnswerDigest is the one-way commitment to the secret value, set once
	// at construction. The cleartext answer never enters the engine.
	AnswerDigest []byte `json:"answerDigest"`

	// Ledger is the accounting-tracked spendable balance: total stakes
	// accepted (plus the construction deposit) minus payouts and
	// withdrawals, at every observation point.
	Ledger uint64 `json:"ledger"`

	// Administrator may withdraw the remaining ledger; fixed at construction.
	Administrator string `json:"administrator"`

	Attempts    map[string]uint8 `json:"attempts,omitempty"`
	LastGuessAt map[string]int64 `json:"lastGuessAt,omitempty"`

	// entered is the reentrancy lock. Transient: unexported so it never
	// persists, never hashes, and is false outside the dynamic extent of a
	// mutating call.
	entered bool
}

// NewGame constructs the aggregate with a committed answer digest and the
// construction deposit. value plays the role of the attached payment and
// must equal one stake unit.
func NewGame(answerDigest []byte, administrator string, value uint64) (*Game, error) {
	if len(answerDigest) != DigestSize {
		return nil, fmt.Errorf("answer digest must be %d bytes, got %d", DigestSize, len(answerDigest))
	}
	if administrator == "" {
		return nil, fmt.Errorf("missing administrator")
	}
	if value != StakeAmount {
		return nil, ErrInsufficientPayment
	}
	return &Game{
		AnswerDigest:  append([]byte(nil), answerDigest...),
		Ledger:        value,
		Administrator: administrator,
		Attempts:      map[string]uint8{},
		LastGuessAt:   map[string]int64{},
	}, nil
}

// GuessResult reports the outcome of an accepted guess.
type GuessResult struct {
	Candidate uint64
	Correct   bool
	Paid      uint64 // PayoutAmount on a win, 0 otherwise
}

// Guess submits a candidate against the committed digest. value is the
// attached payment and must equal StakeAmount; now is the environment's
// wall-clock reading.
//
// Ordering is load-bearing: the attempt counter and timestamp are bumped
// and the ledger debited for the payout before payer.Pay runs, so a nested
// call issued by the recipient observes post-effect state (and is rejected
// by the lock anyway). A failed transfer rolls back every mutation made by
// this call and surfaces ErrTransferFailed.
func (g *Game) Guess(caller string, candidate uint64, value uint64, now int64, payer Payer) (GuessResult, error) {
	if g.entered {
		return GuessResult{}, ErrReentrantCall
	}
	g.entered = true
	defer func() { g.entered = false }()

	if caller == "" {
		return GuessResult{}, fmt.Errorf("missing caller")
	}
	if value != StakeAmount {
		return GuessResult{}, ErrInsufficientPayment
	}
	if g.Attempts[caller] >= MaxAttempts {
		return GuessResult{}, ErrMaxAttemptsExceeded
	}
	// Uninitialized LastGuessAt reads as 0, so a first-ever guess always
	// clears the cooldown. Exactly at the boundary is accepted.
	if now < g.LastGuessAt[caller]+CooldownSecs {
		return GuessResult{}, ErrCooldownActive
	}

	snap := g.snapshot()

	if g.Attempts == nil {
		g.Attempts = map[string]uint8{}
	}
	if g.LastGuessAt == nil {
		g.LastGuessAt = map[string]int64{}
	}
	g.Attempts[caller]++
	g.LastGuessAt[caller] = now
	g.Ledger += value

	res := GuessResult{
		Candidate: candidate,
		Correct:   bytes.Equal(AnswerDigestFor(candidate), g.AnswerDigest),
	}
	if !res.Correct {
		return res, nil
	}

	// The environment rejects a transfer the ledger cannot cover; surface
	// that as the same failed-transfer rollback.
	if g.Ledger < PayoutAmount {
		g.restore(snap)
		return GuessResult{}, fmt.Errorf("%w: ledger %d below payout %d", ErrTransferFailed, g.Ledger, PayoutAmount)
	}
	g.Ledger -= PayoutAmount
	if err := payer.Pay(caller, PayoutAmount); err != nil {
		g.restore(snap)
		return GuessResult{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	res.Paid = PayoutAmount
	return res, nil
}

// Withdraw transfers the entire remaining ledger to the administrator.
func (g *Game) Withdraw(caller string, payer Payer) (uint64, error) {
	if g.entered {
		return 0, ErrReentrantCall
	}
	g.entered = true
	defer func() { g.entered = false }()

	if caller != g.Administrator {
		return 0, ErrUnauthorized
	}
	if g.Ledger == 0 {
		return 0, ErrNothingToWithdraw
	}

	snap := g.snapshot()

	amount := g.Ledger
	g.Ledger = 0
	if err := payer.Pay(caller, amount); err != nil {
		g.restore(snap)
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return amount, nil
}

// IsComplete reports whether the ledger has been drained to zero.
func (g *Game) IsComplete() bool {
	return g.Ledger == 0
}

// LedgerBalance returns the accounting-tracked spendable balance.
func (g *Game) LedgerBalance() uint64 {
	return g.Ledger
}

// RemainingAttempts returns how many guesses the participant may still
// submit, floored at zero.
func (g *Game) RemainingAttempts(participant string) uint8 {
	used := g.Attempts[participant]
	if used >= MaxAttempts {
		return 0
	}
	return MaxAttempts - used
}

// CooldownRemaining returns how many seconds must still elapse before the
// participant's next guess is accepted. Zero for a participant that has
// never guessed.
func (g *Game) CooldownRemaining(participant string, now int64) int64 {
	last, ok := g.LastGuessAt[participant]
	if !ok {
		return 0
	}
	if rem := last + CooldownSecs - now; rem > 0 {
		return rem
	}
	return 0
}

// gameSnapshot captures the persistent fields of the aggregate so a failed
// call can restore them. The reentrancy lock is excluded: it is released by
// the defer of the call that acquired it, on every exit path.
type gameSnapshot struct {
	ledger      uint64
	attempts    map[string]uint8
	lastGuessAt map[string]int64
}

func (g *Game) snapshot() gameSnapshot {
	attempts := make(map[string]uint8, len(g.Attempts))
	for k, v := range g.Attempts {
		attempts[k] = v
	}
	last := make(map[string]int64, len(g.LastGuessAt))
	for k, v := range g.LastGuessAt {
		last[k] = v
	}
	return gameSnapshot{ledger: g.Ledger, attempts: attempts, lastGuessAt: last}
}

func (g *Game) restore(s gameSnapshot) {
	g.Ledger = s.ledger
	g.Attempts = s.attempts
	g.LastGuessAt = s.lastGuessAt
}
