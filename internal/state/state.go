package state

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"wagerchain/internal/engine"
)

// State is the chain's durable state: the bank, tx-auth material, and the
// deployed wager game (nil until a wager/deploy tx lands).
type State struct {
	Height int64 `json:"height"`

	// LastBlockTime is the consensus time of the last finalized block in
	// unix seconds. It is the engine's wall-clock reading, and keeping it in
	// state lets cooldown queries be answered between blocks.
	LastBlockTime int64 `json:"lastBlockTime,omitempty"`

	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection

	Game *engine.Game `json:"game,omitempty"`
}

func NewState() *State {
	return &State{
		Height:      0,
		Accounts:    map[string]uint64{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, errors.Wrap(err, "read state")
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, errors.Wrap(err, "decode state")
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return errors.Wrap(err, "mkdir home")
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write state")
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution: a tx
// runs against the clone and the clone replaces the original only when the
// tx succeeds, which is what gives every tx all-or-nothing semantics.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, errors.New("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode state clone")
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "decode state clone")
	}
	out.normalize()
	return &out, nil
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Game != nil {
		if s.Game.Attempts == nil {
			s.Game.Attempts = map[string]uint8{}
		}
		if s.Game.LastGuessAt == nil {
			s.Game.LastGuessAt = map[string]int64{}
		}
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal a normalized view with every map
	// flattened into a sorted slice so key order can never leak into the
	// hash.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type attemptKV struct {
		Addr     string `json:"addr"`
		Attempts uint8  `json:"attempts"`
		LastAt   int64  `json:"lastAt"`
	}
	type gameView struct {
		AnswerDigest  []byte      `json:"answerDigest"`
		Ledger        uint64      `json:"ledger"`
		Administrator string      `json:"administrator"`
		Attempts      []attemptKV `json:"attempts"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	var game *gameView
	if s.Game != nil {
		attempts := make([]attemptKV, 0, len(s.Game.Attempts))
		for addr, n := range s.Game.Attempts {
			attempts = append(attempts, attemptKV{
				Addr:     addr,
				Attempts: n,
				LastAt:   s.Game.LastGuessAt[addr],
			})
		}
		sort.Slice(attempts, func(i, j int) bool { return attempts[i].Addr < attempts[j].Addr })
		game = &gameView{
			AnswerDigest:  s.Game.AnswerDigest,
			Ledger:        s.Game.Ledger,
			Administrator: s.Game.Administrator,
			Attempts:      attempts,
		}
	}

	normalized := struct {
		Height        int64          `json:"height"`
		LastBlockTime int64          `json:"lastBlockTime"`
		Accounts      []accountKV    `json:"accounts"`
		AccountKeys   []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax      []nonceKV      `json:"nonceMax,omitempty"`
		Game          *gameView      `json:"game,omitempty"`
	}{
		Height:        s.Height,
		LastBlockTime: s.LastBlockTime,
		Accounts:      accounts,
		AccountKeys:   accountKeys,
		NonceMax:      nonces,
		Game:          game,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return errors.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return errors.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}
