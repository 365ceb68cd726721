package app

import (
	"fmt"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"wagerchain/internal/codec"
	"wagerchain/internal/engine"
	"wagerchain/internal/state"
)

func errBadValue(typ string) error {
	return fmt.Errorf("bad %s value", typ)
}

func errUnknownTxType(typ string) error {
	return fmt.Errorf("unknown tx type: %s", typ)
}

func bankMint(st *state.State, msg codec.BankMintTx) (*abci.ExecTxResult, error) {
	if msg.To == "" || msg.Amount == 0 {
		return nil, fmt.Errorf("missing to/amount")
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, err
	}
	return okEvent("BankMinted", map[string]string{
		"to":     msg.To,
		"amount": strconv.FormatUint(msg.Amount, 10),
	}), nil
}

func bankSend(st *state.State, msg codec.BankSendTx) (*abci.ExecTxResult, error) {
	if msg.From == "" || msg.To == "" || msg.Amount == 0 {
		return nil, fmt.Errorf("missing from/to/amount")
	}
	if err := st.Debit(msg.From, msg.Amount); err != nil {
		return nil, err
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, err
	}
	return okEvent("BankSent", map[string]string{
		"from":   msg.From,
		"to":     msg.To,
		"amount": strconv.FormatUint(msg.Amount, 10),
	}), nil
}

// wagerDeploy constructs the singleton game. The deployer's one-unit stake
// deposit is the attached value; the deployer becomes the administrator.
func wagerDeploy(st *state.State, msg codec.WagerDeployTx) (*abci.ExecTxResult, error) {
	if msg.Deployer == "" {
		return nil, fmt.Errorf("missing deployer")
	}
	if st.Game != nil {
		return nil, fmt.Errorf("game already deployed")
	}
	if err := st.Debit(msg.Deployer, engine.StakeAmount); err != nil {
		return nil, err
	}
	g, err := engine.NewGame(msg.AnswerDigest, msg.Deployer, engine.StakeAmount)
	if err != nil {
		return nil, err
	}
	st.Game = g

	return okEvent("Deployed", map[string]string{
		"administrator":  msg.Deployer,
		"initialBalance": strconv.FormatUint(g.LedgerBalance(), 10),
	}), nil
}

func wagerGuess(st *state.State, msg codec.WagerGuessTx, now int64) (*abci.ExecTxResult, error) {
	if msg.Player == "" {
		return nil, fmt.Errorf("missing player")
	}
	if st.Game == nil {
		return nil, fmt.Errorf("no game deployed")
	}
	// Attached value: the player funds the stake from their bank account.
	if err := st.Debit(msg.Player, engine.StakeAmount); err != nil {
		return nil, err
	}

	res, err := st.Game.Guess(msg.Player, msg.Candidate, engine.StakeAmount, now, bankPayer{st})
	if err != nil {
		return nil, err
	}

	out := okEvent("GuessAttempted", map[string]string{
		"participant": msg.Player,
		"guessValue":  strconv.FormatUint(res.Candidate, 10),
		"wasCorrect":  strconv.FormatBool(res.Correct),
	})
	if res.Correct {
		out.Events = append(out.Events, abci.Event{
			Type: "Won",
			Attributes: []abci.EventAttribute{
				{Key: "participant", Value: msg.Player, Index: true},
				{Key: "amount", Value: strconv.FormatUint(res.Paid, 10), Index: true},
			},
		})
	}
	return out, nil
}

func wagerWithdraw(st *state.State, msg codec.WagerWithdrawTx) (*abci.ExecTxResult, error) {
	if msg.Caller == "" {
		return nil, fmt.Errorf("missing caller")
	}
	if st.Game == nil {
		return nil, fmt.Errorf("no game deployed")
	}

	amount, err := st.Game.Withdraw(msg.Caller, bankPayer{st})
	if err != nil {
		return nil, err
	}

	return okEvent("Withdrawn", map[string]string{
		"administrator": msg.Caller,
		"amount":        strconv.FormatUint(amount, 10),
	}), nil
}
