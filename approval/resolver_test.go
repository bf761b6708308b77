package approval_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tranvictor/walletd/approval"
	"github.com/tranvictor/walletd/config"
	"github.com/tranvictor/walletd/repo"
	"github.com/tranvictor/walletd/rpc"
	"github.com/tranvictor/walletd/txaction"
	"github.com/tranvictor/walletd/vault"
)

type replyRecorder struct {
	mu      sync.Mutex
	results []interface{}
	errs    []error
}

func (r *replyRecorder) Reply(result interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.errs = append(r.errs, err)
}

func (r *replyRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

type fakeGateway struct {
	res   *rpc.Response
	err   error
	calls int

	lastMethod string
	lastParams []interface{}
}

func (g *fakeGateway) Send(
	ctx context.Context,
	chainID int64,
	method string,
	params ...interface{},
) (*rpc.Response, error) {
	g.calls++
	g.lastMethod = method
	g.lastParams = params
	return g.res, g.err
}

type fakeAccounts map[string]vault.AccDesc

func (f fakeAccounts) AccountByAddress(address string) (vault.AccDesc, bool) {
	acc, found := f[address]
	return acc, found
}

// fakeVault signs transaction hashes with a real key so recovered senders
// match; message signatures are canned.
type fakeVault struct {
	key      *ecdsa.PrivateKey
	msgSig   []byte
	msgCalls int
}

func (v *fakeVault) Sign(accountID string, hash []byte) ([]byte, error) {
	return crypto.Sign(hash, v.key)
}

func (v *fakeVault) SignMessage(
	accountID string,
	standard vault.SigningStandard,
	message []byte,
) ([]byte, error) {
	v.msgCalls++
	return v.msgSig, nil
}

type fakeClassifier struct {
	action *txaction.Action
	err    error
}

func (c *fakeClassifier) Classify(
	ctx context.Context,
	chainID int64,
	to string,
	value *big.Int,
	data []byte,
) (*txaction.Action, error) {
	return c.action, c.err
}

type fakeRefresher struct {
	mu    sync.Mutex
	slugs []string
}

func (f *fakeRefresher) RequestRefresh(chainID int64, accountAddress, tokenSlug string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slugs = append(f.slugs, tokenSlug)
}

type rig struct {
	resolver   *approval.Resolver
	store      *approval.Store
	kv         *repo.MemoryKV
	gateway    *fakeGateway
	accounts   fakeAccounts
	classifier *fakeClassifier
	refresher  *fakeRefresher
	vault      *fakeVault
	address    string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %s", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	r := &rig{
		store:      approval.NewStore(),
		kv:         repo.NewMemoryKV(),
		gateway:    &fakeGateway{},
		classifier: &fakeClassifier{},
		refresher:  &fakeRefresher{},
		vault:      &fakeVault{key: key, msgSig: []byte{0xca, 0xfe}},
		address:    address,
		accounts: fakeAccounts{
			address: {ID: "acc-1", Address: address},
		},
	}
	r.resolver = approval.NewResolver(
		r.store, r.kv, r.gateway, r.accounts, r.classifier, r.refresher, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return r
}

func (r *rig) writes(t *testing.T) map[repo.Table]int {
	t.Helper()
	counts := map[repo.Table]int{}
	for _, table := range repo.AllTables {
		if n := r.kv.Len(table); n > 0 {
			counts[table] = n
		}
	}
	return counts
}

// signedTransfer builds a plain value transfer signed by the rig's key and
// the matching pending approval.
func (r *rig) signedTransfer(t *testing.T, reply approval.ReplyChannel) *approval.Transaction {
	t.Helper()
	to := ethcommon.HexToAddress("0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97")
	signer := types.LatestSignerForChainID(big.NewInt(1))
	tx, err := types.SignNewTx(r.vault.key, signer, &types.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    big.NewInt(1000),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("sign tx: %s", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("encode tx: %s", err)
	}
	return &approval.Transaction{
		B: approval.Base{
			ID:     "tx-1",
			Source: approval.Source{Origin: "https://dapp.example"},
			Reply:  reply,
		},
		ChainID:        1,
		AccountAddress: r.address,
		TxParams: approval.TxParams{
			From:  strings.ToLower(r.address),
			To:    to.Hex(),
			Value: (*hexutil.Big)(big.NewInt(1000)),
		},
		RawTx: raw,
	}
}

func TestResolveUnknownApproval(t *testing.T) {
	r := newRig(t)
	err := r.resolver.Resolve(context.Background(), "nope", approval.Decision{Approved: true}, r.vault)
	if !errors.Is(err, approval.ErrApprovalNotFound) {
		t.Fatalf("want ErrApprovalNotFound, got %v", err)
	}
}

func TestResolveRejectionLeavesNoTrace(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(r.signedTransfer(t, reply)); err != nil {
		t.Fatalf("add: %s", err)
	}

	if err := r.resolver.Resolve(context.Background(), "tx-1", approval.Decision{}, r.vault); err != nil {
		t.Fatalf("rejection is not a resolver failure, got %s", err)
	}

	if reply.calls() != 1 {
		t.Fatalf("expected exactly one reply, got %d", reply.calls())
	}
	var rpcErr *rpc.Error
	if !errors.As(reply.errs[0], &rpcErr) || rpcErr.Code != 4001 {
		t.Errorf("want code 4001 rejection, got %v", reply.errs[0])
	}
	if reply.results[0] != nil {
		t.Errorf("rejection must not carry a result, got %v", reply.results[0])
	}
	if got := r.writes(t); len(got) != 0 {
		t.Errorf("rejection wrote records: %v", got)
	}
	if g := r.gateway.calls; g != 0 {
		t.Errorf("rejection reached the gateway %d times", g)
	}

	// The approval left the queue: resolving again fails.
	err := r.resolver.Resolve(context.Background(), "tx-1", approval.Decision{Approved: true}, r.vault)
	if !errors.Is(err, approval.ErrApprovalNotFound) {
		t.Errorf("second resolve: want ErrApprovalNotFound, got %v", err)
	}
}

func TestResolveConnectionReturnsSelectedAccount(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(&approval.Connection{
		B: approval.Base{
			ID:     "conn-1",
			Source: approval.Source{Origin: "https://dapp.example"},
			Reply:  reply,
		},
		ReturnSelectedAccount: true,
		PreferredChainID:      56,
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	selected := strings.ToLower(r.address)
	override := int64(137)
	err := r.resolver.Resolve(context.Background(), "conn-1", approval.Decision{
		Approved:          true,
		AccountAddresses:  []string{selected},
		OverriddenChainID: &override,
	}, r.vault)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	got, ok := reply.results[0].([]string)
	if !ok || len(got) != 1 || got[0] != selected {
		t.Errorf("want reply [%s], got %v", selected, reply.results[0])
	}

	raw, found, err := r.kv.Get(repo.Permissions, "https://dapp.example")
	if err != nil || !found {
		t.Fatalf("permission not persisted: found=%v err=%v", found, err)
	}
	var p approval.Permission
	if err = json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode permission: %s", err)
	}
	if p.ChainID != 137 {
		t.Errorf("decision override must win over the preferred chain, got %d", p.ChainID)
	}
	if len(p.AccountAddresses) != 1 || p.AccountAddresses[0] != selected {
		t.Errorf("permission accounts rewritten: %v", p.AccountAddresses)
	}
	if p.ID == "" {
		t.Errorf("permission has no id")
	}
	if r.kv.Len(repo.Activities) != 1 {
		t.Errorf("expected one connection activity, got %d", r.kv.Len(repo.Activities))
	}
}

func TestResolveConnectionKeepsSelectedAddressesVerbatim(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(&approval.Connection{
		B: approval.Base{
			ID:     "conn-4",
			Source: approval.Source{Origin: "https://dapp.example"},
			Reply:  reply,
		},
		ReturnSelectedAccount: true,
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	// Whatever form the user selected is what the page gets back, even a
	// short non-checksummed string.
	err := r.resolver.Resolve(context.Background(), "conn-4", approval.Decision{
		Approved:         true,
		AccountAddresses: []string{"0xA"},
	}, r.vault)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	got, ok := reply.results[0].([]string)
	if !ok || len(got) != 1 || got[0] != "0xA" {
		t.Errorf(`want reply ["0xA"], got %v`, reply.results[0])
	}

	raw, found, err := r.kv.Get(repo.Permissions, "https://dapp.example")
	if err != nil || !found {
		t.Fatalf("permission not persisted: found=%v err=%v", found, err)
	}
	var p approval.Permission
	if err = json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode permission: %s", err)
	}
	if len(p.AccountAddresses) != 1 || p.AccountAddresses[0] != "0xA" {
		t.Errorf("permission accounts rewritten: %v", p.AccountAddresses)
	}
}

func TestResolveConnectionWrapsPermission(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(&approval.Connection{
		B: approval.Base{
			ID:     "conn-2",
			Source: approval.Source{Origin: "https://dapp.example"},
			Reply:  reply,
		},
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	err := r.resolver.Resolve(context.Background(), "conn-2", approval.Decision{
		Approved:         true,
		AccountAddresses: []string{r.address},
	}, r.vault)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	wrapped, ok := reply.results[0].([]approval.WrappedPermission)
	if !ok || len(wrapped) != 1 {
		t.Fatalf("want one wrapped permission, got %v", reply.results[0])
	}
	if wrapped[0].Invoker != "https://dapp.example" {
		t.Errorf("invoker: got %s", wrapped[0].Invoker)
	}
	if wrapped[0].ParentCapability != "eth_accounts" {
		t.Errorf("parentCapability: got %s", wrapped[0].ParentCapability)
	}
}

func TestResolveConnectionNeedsAccounts(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(&approval.Connection{
		B: approval.Base{ID: "conn-3", Reply: reply},
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	err := r.resolver.Resolve(context.Background(), "conn-3", approval.Decision{Approved: true}, r.vault)
	if !errors.Is(err, approval.ErrNoAccounts) {
		t.Fatalf("want ErrNoAccounts, got %v", err)
	}
	if reply.calls() != 1 || reply.errs[0] == nil {
		t.Errorf("the page must receive the failure")
	}
	if got := r.writes(t); len(got) != 0 {
		t.Errorf("failed connection wrote records: %v", got)
	}
}

func TestResolveTransactionBroadcasts(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	a := r.signedTransfer(t, reply)
	if err := r.store.Add(a); err != nil {
		t.Fatalf("add: %s", err)
	}

	tokenAddr := "0x9642b23Ed1E01Df1092B92641051881a322F5D4E"
	r.classifier.action = &txaction.Action{
		Kind:         txaction.KindTokenTransfer,
		TokenAddress: tokenAddr,
		Amount:       "1000",
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(a.RawTx); err != nil {
		t.Fatalf("decode fixture: %s", err)
	}
	txHash := tx.Hash().Hex()
	r.gateway.res = &rpc.Response{Result: json.RawMessage(`"` + txHash + `"`)}

	err := r.resolver.Resolve(
		context.Background(), "tx-1",
		approval.Decision{Approved: true, RawTx: a.RawTx}, r.vault,
	)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	if r.gateway.lastMethod != "eth_sendRawTransaction" {
		t.Errorf("method: got %s", r.gateway.lastMethod)
	}
	if reply.calls() != 1 || reply.results[0] != txHash {
		t.Errorf("want tx hash reply %s, got %v", txHash, reply.results)
	}

	nonce, found, err := r.kv.Get(repo.Nonces, "1_"+strings.ToLower(r.address))
	if err != nil || !found {
		t.Fatalf("nonce not persisted: found=%v err=%v", found, err)
	}
	if string(nonce) != "7" {
		t.Errorf("nonce: want 7, got %s", nonce)
	}

	activities, err := r.kv.List(repo.Activities)
	if err != nil || len(activities) != 1 {
		t.Fatalf("expected one activity, got %d (%v)", len(activities), err)
	}
	for _, raw := range activities {
		var act approval.Activity
		if err = json.Unmarshal(raw, &act); err != nil {
			t.Fatalf("decode activity: %s", err)
		}
		if act.Pending != 1 {
			t.Errorf("broadcast activity must be pending, got %d", act.Pending)
		}
		if act.TxHash != txHash {
			t.Errorf("activity hash: want %s, got %s", txHash, act.TxHash)
		}
		if act.TxAction == nil || act.TxAction.Kind != txaction.KindTokenTransfer {
			t.Errorf("activity action: got %+v", act.TxAction)
		}
	}

	if r.kv.Len(repo.TokenActivities) != 1 {
		t.Errorf("expected one token activity, got %d", r.kv.Len(repo.TokenActivities))
	}
	if len(r.refresher.slugs) != 1 || !strings.Contains(r.refresher.slugs[0], strings.ToLower(tokenAddr)) {
		t.Errorf("token refresh not requested: %v", r.refresher.slugs)
	}
}

func TestResolveTransactionSignsWhenUnsigned(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	to := ethcommon.HexToAddress("0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97")
	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		To:       &to,
		Value:    big.NewInt(42),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	raw, err := unsigned.MarshalBinary()
	if err != nil {
		t.Fatalf("encode unsigned tx: %s", err)
	}
	if err = r.store.Add(&approval.Transaction{
		B:              approval.Base{ID: "tx-2", Reply: reply},
		ChainID:        1,
		AccountAddress: r.address,
		TxParams: approval.TxParams{
			To:    to.Hex(),
			Value: (*hexutil.Big)(big.NewInt(42)),
		},
		RawTx: raw,
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	r.gateway.res = &rpc.Response{Result: json.RawMessage(`"0x01"`)}
	err = r.resolver.Resolve(context.Background(), "tx-2", approval.Decision{Approved: true}, r.vault)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	// The broadcast payload must carry a valid signature by the approving
	// account.
	sent := new(types.Transaction)
	if err = sent.UnmarshalBinary(hexutil.MustDecode(r.gateway.lastParams[0].(string))); err != nil {
		t.Fatalf("decode broadcast payload: %s", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), sent)
	if err != nil {
		t.Fatalf("recover sender: %s", err)
	}
	if sender.Hex() != r.address {
		t.Errorf("sender: want %s, got %s", r.address, sender.Hex())
	}
}

func TestResolveTransactionOriginMismatch(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	a := r.signedTransfer(t, reply)
	a.TxParams.Value = (*hexutil.Big)(big.NewInt(999999))
	if err := r.store.Add(a); err != nil {
		t.Fatalf("add: %s", err)
	}

	err := r.resolver.Resolve(context.Background(), "tx-1", approval.Decision{Approved: true}, r.vault)
	if !errors.Is(err, approval.ErrTxOriginMismatch) {
		t.Fatalf("want ErrTxOriginMismatch, got %v", err)
	}
	if r.gateway.calls != 0 {
		t.Errorf("mismatching transaction reached the gateway")
	}
	if got := r.writes(t); len(got) != 0 {
		t.Errorf("mismatching transaction wrote records: %v", got)
	}
}

func TestResolveTransactionNodeRejection(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	a := r.signedTransfer(t, reply)
	if err := r.store.Add(a); err != nil {
		t.Fatalf("add: %s", err)
	}
	r.gateway.res = &rpc.Response{
		Error: &rpc.Error{Code: -32000, Message: "nonce too low"},
	}

	err := r.resolver.Resolve(context.Background(), "tx-1", approval.Decision{Approved: true}, r.vault)
	var submission *approval.SubmissionError
	if !errors.As(err, &submission) {
		t.Fatalf("want SubmissionError, got %v", err)
	}
	if submission.Code != -32000 {
		t.Errorf("code: want -32000, got %d", submission.Code)
	}

	// Nothing happened on chain; nothing may be recorded.
	if got := r.writes(t); len(got) != 0 {
		t.Errorf("rejected broadcast wrote records: %v", got)
	}
	if reply.calls() != 1 || reply.errs[0] == nil {
		t.Errorf("the page must receive the submission failure")
	}
}

func TestResolveTransactionDevKillSwitch(t *testing.T) {
	savedEnv, savedBlock := config.Environment, config.DevBlockTxSend
	config.Environment = "development"
	config.DevBlockTxSend = true
	defer func() {
		config.Environment, config.DevBlockTxSend = savedEnv, savedBlock
	}()

	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(r.signedTransfer(t, reply)); err != nil {
		t.Fatalf("add: %s", err)
	}

	err := r.resolver.Resolve(context.Background(), "tx-1", approval.Decision{Approved: true}, r.vault)
	if !errors.Is(err, approval.ErrTxSendBlocked) {
		t.Fatalf("want ErrTxSendBlocked, got %v", err)
	}
	if r.gateway.calls != 0 {
		t.Errorf("blocked transaction reached the gateway")
	}
}

func TestResolveSigningFastPath(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(&approval.Signing{
		B:              approval.Base{ID: "sign-1", Reply: reply},
		Standard:       vault.PersonalSign,
		AccountAddress: r.address,
		Message:        []byte("hello"),
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	err := r.resolver.Resolve(context.Background(), "sign-1", approval.Decision{
		Approved:      true,
		SignedMessage: hexutil.Bytes{0xde, 0xad},
	}, r.vault)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	if reply.results[0] != "0xdead" {
		t.Errorf("want forwarded signature 0xdead, got %v", reply.results[0])
	}
	if r.vault.msgCalls != 0 {
		t.Errorf("fast path must not touch the vault")
	}
	if got := r.writes(t); len(got) != 0 {
		t.Errorf("fast path wrote records: %v", got)
	}
}

func TestResolveSigningWithVault(t *testing.T) {
	r := newRig(t)
	reply := &replyRecorder{}
	if err := r.store.Add(&approval.Signing{
		B:              approval.Base{ID: "sign-2", Reply: reply},
		Standard:       vault.PersonalSign,
		AccountAddress: strings.ToLower(r.address),
		Message:        []byte("hello"),
	}); err != nil {
		t.Fatalf("add: %s", err)
	}

	err := r.resolver.Resolve(context.Background(), "sign-2", approval.Decision{Approved: true}, r.vault)
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}

	if r.vault.msgCalls != 1 {
		t.Fatalf("expected one vault signature, got %d", r.vault.msgCalls)
	}
	if reply.results[0] != "0xcafe" {
		t.Errorf("want signature 0xcafe, got %v", reply.results[0])
	}
	if r.kv.Len(repo.Activities) != 1 {
		t.Errorf("expected one signing activity, got %d", r.kv.Len(repo.Activities))
	}
}
