package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"wagerchain/internal/codec"
	"wagerchain/internal/state"
)

const txAuthDomainV0 = "wager/tx/v0"

func txAuthSignBytesV0(typ string, value []byte, nonce string, signer string) []byte {
	// signBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV0)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV0)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return fmt.Errorf("missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

// requireTxAuth enforces account auth for a mutating tx. v0 localnet
// policy, carried from the envelope scaffold: accounts that never
// registered a pubkey may transact unsigned; once a key is registered every
// tx from that account must be signed and carry a strictly increasing
// nonce.
func requireTxAuth(st *state.State, env codec.TxEnvelope, account string) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if account == "" {
		return fmt.Errorf("missing account")
	}
	if len(st.AccountKeys[account]) == 0 {
		return nil
	}
	if err := requireAccountAuth(st, env, account); err != nil {
		return err
	}
	return consumeNonce(st, env.Signer, env.Nonce)
}

func requireAccountAuth(st *state.State, env codec.TxEnvelope, account string) error {
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, account)
	}
	pub := st.AccountKeys[account]
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("account %q missing pubKey (auth/register_account required)", account)
	}
	msg := txAuthSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// consumeNonce rejects replayed envelopes: each signer's nonce must be a
// number strictly above the last accepted one.
func consumeNonce(st *state.State, signer, nonce string) error {
	n, err := strconv.ParseUint(nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tx.nonce %q: %v", nonce, err)
	}
	if n <= st.NonceMax[signer] {
		return fmt.Errorf("stale tx.nonce %d (last accepted %d)", n, st.NonceMax[signer])
	}
	st.NonceMax[signer] = n
	return nil
}

func authRegisterAccount(st *state.State, env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) (*abci.ExecTxResult, error) {
	if msg.Account == "" {
		return nil, fmt.Errorf("missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if existing := st.AccountKeys[msg.Account]; len(existing) != 0 {
		return nil, fmt.Errorf("account %q already registered", msg.Account)
	}
	// Registration is self-signed with the key being registered.
	if err := requireSignedEnvelope(env); err != nil {
		return nil, err
	}
	if env.Signer != msg.Account {
		return nil, fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	pub := ed25519.PublicKey(msg.PubKey)
	msgBytes := txAuthSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(pub, msgBytes, env.Sig) {
		return nil, fmt.Errorf("invalid signature")
	}
	if err := consumeNonce(st, env.Signer, env.Nonce); err != nil {
		return nil, err
	}

	st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
	return okEvent("AccountRegistered", map[string]string{
		"account": msg.Account,
	}), nil
}
