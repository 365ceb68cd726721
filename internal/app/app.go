package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"wagerchain/internal/codec"
	"wagerchain/internal/engine"
	"wagerchain/internal/state"
)

const (
	AppVersion uint64 = 1
)

type WagerApp struct {
	*abci.BaseApplication

	home   string
	logger log.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, logger log.Logger) (*WagerApp, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &WagerApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          logger,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *WagerApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "WagerChain (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *WagerApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// v0: only structural validation; auth and game rules run at FinalizeBlock.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *WagerApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	// v0: no special genesis handling; the game is deployed via wager/deploy.
	return &abci.InitChainResponse{}, nil
}

func (a *WagerApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	// Consensus block time is the engine's wall clock; CometBFT guarantees
	// it is monotonically non-decreasing.
	if bt := req.Time.Unix(); bt > a.st.LastBlockTime {
		a.st.LastBlockTime = bt
	}

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, a.st.LastBlockTime)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()
	level.Debug(a.logger).Log("msg", "finalized block", "height", req.Height, "txs", len(req.Txs))

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *WagerApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		level.Error(a.logger).Log("msg", "persist state", "err", err)
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *WagerApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /account/<addr>
	// - /wager
	// - /wager/attempts/<addr>
	// - /wager/cooldown/<addr>
	// - /wager/digest/<candidate>
	path := strings.TrimSpace(req.Path)
	switch {
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": a.st.Balance(addr)})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case path == "/wager":
		g := a.st.Game
		if g == nil {
			return &abci.QueryResponse{Code: 1, Log: "no game deployed", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{
			"answerDigest":  hex.EncodeToString(g.AnswerDigest),
			"administrator": g.Administrator,
			"ledgerBalance": g.LedgerBalance(),
			"complete":      g.IsComplete(),
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/wager/attempts/"):
		g := a.st.Game
		if g == nil {
			return &abci.QueryResponse{Code: 1, Log: "no game deployed", Height: a.st.Height}, nil
		}
		addr := strings.TrimPrefix(path, "/wager/attempts/")
		b, _ := json.Marshal(map[string]any{
			"addr":              addr,
			"remainingAttempts": g.RemainingAttempts(addr),
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/wager/cooldown/"):
		g := a.st.Game
		if g == nil {
			return &abci.QueryResponse{Code: 1, Log: "no game deployed", Height: a.st.Height}, nil
		}
		addr := strings.TrimPrefix(path, "/wager/cooldown/")
		b, _ := json.Marshal(map[string]any{
			"addr":              addr,
			"cooldownRemaining": g.CooldownRemaining(addr, a.st.LastBlockTime),
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/wager/digest/"):
		// Deployment-time convenience: the digest a deployer would commit
		// for a candidate, computed on the exact evaluation path. Available
		// before deploy and side-effect free.
		raw := strings.TrimPrefix(path, "/wager/digest/")
		candidate, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid candidate", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{
			"candidate": candidate,
			"digest":    hex.EncodeToString(engine.AnswerDigestFor(candidate)),
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

// deliverTx executes one tx with all-or-nothing semantics: the handler runs
// against a deep clone of state, and the clone is installed only when the
// whole tx succeeds. A late failure (a rejected payout transfer included)
// therefore reverts every intermediate mutation.
func (a *WagerApp) deliverTx(txBytes []byte, now int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	res, err := a.applyTx(staged, env, now)
	if err != nil {
		level.Debug(a.logger).Log("msg", "tx rejected", "type", env.Type, "err", err)
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	a.st = staged
	return res
}

func (a *WagerApp) applyTx(st *state.State, env codec.TxEnvelope, now int64) (*abci.ExecTxResult, error) {
	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errBadValue(env.Type)
		}
		return bankMint(st, msg)

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errBadValue(env.Type)
		}
		if err := requireTxAuth(st, env, msg.From); err != nil {
			return nil, err
		}
		return bankSend(st, msg)

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errBadValue(env.Type)
		}
		return authRegisterAccount(st, env, msg)

	case "wager/deploy":
		var msg codec.WagerDeployTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errBadValue(env.Type)
		}
		if err := requireTxAuth(st, env, msg.Deployer); err != nil {
			return nil, err
		}
		return wagerDeploy(st, msg)

	case "wager/guess":
		var msg codec.WagerGuessTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errBadValue(env.Type)
		}
		if err := requireTxAuth(st, env, msg.Player); err != nil {
			return nil, err
		}
		return wagerGuess(st, msg, now)

	case "wager/withdraw":
		var msg codec.WagerWithdrawTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errBadValue(env.Type)
		}
		if err := requireTxAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		return wagerWithdraw(st, msg)

	default:
		return nil, errUnknownTxType(env.Type)
	}
}

// bankPayer satisfies engine.Payer by crediting the recipient's bank
// account. This is the single point where value leaves the game's trust
// boundary; in production the recipient could be a contract account running
// arbitrary code before the credit returns.
type bankPayer struct {
	st *state.State
}

func (p bankPayer) Pay(to string, amount uint64) error {
	return p.st.Credit(to, amount)
}

var _ engine.Payer = bankPayer{}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
