package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes; for the v0 localnet we use
// JSON-encoded txs to move fast. This is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// v0 tx auth (optional):
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: logical signer id (account address).
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth (v0) ----

// v0: account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Wager ----

// WagerDeployTx constructs the singleton wager game. The one-unit stake
// deposit is debited from the deployer's bank account, playing the role of
// the attached value. The deployer becomes the administrator.
type WagerDeployTx struct {
	Deployer     string `json:"deployer"`
	AnswerDigest []byte `json:"answerDigest"` // base64 (32 bytes, keccak-256)
}

// WagerGuessTx submits a candidate against the committed digest. One stake
// unit is debited from the player's bank account as the attached value.
type WagerGuessTx struct {
	Player    string `json:"player"`
	Candidate uint64 `json:"candidate"`
}

// WagerWithdrawTx drains the remaining ledger to the administrator.
type WagerWithdrawTx struct {
	Caller string `json:"caller"`
}
