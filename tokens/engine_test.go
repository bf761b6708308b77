package tokens

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranvictor/walletd/pricing"
	"github.com/tranvictor/walletd/repo"
	"github.com/tranvictor/walletd/rpc"
)

const (
	testAccount = "0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97"
	testToken   = "0x9642b23Ed1E01Df1092B92641051881a322F5D4E"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// manualQueue collects tasks so tests control when refreshes execute.
type manualQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *manualQueue) Enqueue(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

func (q *manualQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *manualQueue) runAll() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

// inlineQueue executes tasks synchronously on Enqueue.
type inlineQueue struct{}

func (inlineQueue) Enqueue(task func()) { task() }

// chainStub answers eth_call by ERC20 selector and eth_getBalance directly.
type chainStub struct {
	balances  map[string]*big.Int // selector 0x70a08231
	decimals  uint8
	name      string
	symbol    string
	nativeBal *big.Int
}

func (c *chainStub) Send(
	ctx context.Context,
	chainID int64,
	method string,
	params ...interface{},
) (*rpc.Response, error) {
	if method == "eth_getBalance" {
		return &rpc.Response{
			Result: []byte(fmt.Sprintf("%q", hexutil.EncodeBig(c.nativeBal))),
		}, nil
	}
	if method != "eth_call" {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	args := params[0].(callArgs)
	data, err := hexutil.Decode(args.Data)
	if err != nil {
		return nil, err
	}
	selector := hex.EncodeToString(data[:4])
	switch selector {
	case "313ce567": // decimals()
		packed, _ := erc20ABI.Methods["decimals"].Outputs.Pack(c.decimals)
		return &rpc.Response{Result: []byte(fmt.Sprintf("%q", hexutil.Encode(packed)))}, nil
	case "06fdde03": // name()
		packed, _ := erc20ABI.Methods["name"].Outputs.Pack(c.name)
		return &rpc.Response{Result: []byte(fmt.Sprintf("%q", hexutil.Encode(packed)))}, nil
	case "95d89b41": // symbol()
		packed, _ := erc20ABI.Methods["symbol"].Outputs.Pack(c.symbol)
		return &rpc.Response{Result: []byte(fmt.Sprintf("%q", hexutil.Encode(packed)))}, nil
	case "70a08231": // balanceOf(address)
		balance, found := c.balances[args.To]
		if !found {
			balance = big.NewInt(0)
		}
		packed, _ := erc20ABI.Methods["balanceOf"].Outputs.Pack(balance)
		return &rpc.Response{Result: []byte(fmt.Sprintf("%q", hexutil.Encode(packed)))}, nil
	}
	return nil, fmt.Errorf("unexpected selector %s", selector)
}

type emptyPrices struct{}

func (emptyPrices) GetPrices(platform string, addresses []string) (map[string]pricing.Price, error) {
	return map[string]pricing.Price{}, nil
}

type noAnalytics struct{}

func (noAnalytics) GetChain(chainID int64) (*pricing.AnalyticsChain, error) { return nil, nil }
func (noAnalytics) GetToken(chainSlug, address string) (*pricing.AnalyticsToken, error) {
	return nil, nil
}

func TestComputeBalanceUSD(t *testing.T) {
	assert.InDelta(t, 2.5, ComputeBalanceUSD("1000000000000000000", 18, "2.5"), 1e-9)
	assert.InDelta(t, 6.0, ComputeBalanceUSD("3000000", 6, "2"), 1e-9)
	assert.Zero(t, ComputeBalanceUSD("1000000000000000000", 18, ""))
	assert.Zero(t, ComputeBalanceUSD("0", 18, "123.45"))
}

func TestRequestRefreshDeduplicates(t *testing.T) {
	q := &manualQueue{}
	stub := &chainStub{
		balances: map[string]*big.Int{testToken: big.NewInt(1)},
		decimals: 18,
	}
	engine := NewEngine(repo.NewMemoryKV(), stub, emptyPrices{}, noAnalytics{}, q, discardLogger())

	slug := NewSlug(StandardERC20, testToken)
	engine.RequestRefresh(1, testAccount, slug)
	engine.RequestRefresh(1, testAccount, slug)
	assert.Equal(t, 1, q.len(), "duplicate request while in flight must be dropped")

	// A different key is independent.
	engine.RequestRefresh(56, testAccount, slug)
	assert.Equal(t, 2, q.len())

	// After completion the key can be refreshed again.
	q.runAll()
	engine.RequestRefresh(1, testAccount, slug)
	assert.Equal(t, 1, q.len())
}

func TestRefreshMergesExistingBalance(t *testing.T) {
	kv := repo.NewMemoryKV()
	slug := NewSlug(StandardERC20, testToken)
	key := AccountTokenKey(1, testAccount, slug)
	require.NoError(t, putAccountToken(kv, key, &AccountToken{
		Type:           TypeAsset,
		Status:         StatusEnabled,
		ChainID:        1,
		AccountAddress: testAccount,
		TokenSlug:      slug,
		Decimals:       18,
		Symbol:         "KNC",
		RawBalance:     "1000000000000000000",
		BalanceUSD:     2.0,
		PriceUSD:       "2",
	}))

	stub := &chainStub{
		balances: map[string]*big.Int{testToken: big.NewInt(0).Mul(big.NewInt(3), big.NewInt(1e18))},
	}
	engine := NewEngine(kv, stub, emptyPrices{}, noAnalytics{}, inlineQueue{}, discardLogger())
	engine.RequestRefresh(1, testAccount, slug)

	merged, err := getAccountToken(kv, key)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, "3000000000000000000", merged.RawBalance)
	assert.InDelta(t, 6.0, merged.BalanceUSD, 1e-9)
	// Metadata is never re-fetched for known tokens.
	assert.Equal(t, "KNC", merged.Symbol)
	assert.Equal(t, int64(18), merged.Decimals)
}

func TestRefreshDiscoversTokenFromChain(t *testing.T) {
	kv := repo.NewMemoryKV()
	stub := &chainStub{
		balances: map[string]*big.Int{testToken: big.NewInt(5000000)},
		decimals: 6,
		name:     "USD Coin",
		symbol:   "USDC",
	}
	engine := NewEngine(kv, stub, emptyPrices{}, noAnalytics{}, inlineQueue{}, discardLogger())

	slug := NewSlug(StandardERC20, testToken)
	engine.RequestRefresh(1, testAccount, slug)

	token, err := getAccountToken(kv, AccountTokenKey(1, testAccount, slug))
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, TypeAsset, token.Type)
	assert.Equal(t, StatusEnabled, token.Status)
	assert.Equal(t, int64(6), token.Decimals)
	assert.Equal(t, "USDC", token.Symbol)
	assert.Equal(t, "5000000", token.RawBalance)
	assert.Zero(t, token.BalanceUSD, "no price source answered")
}

func TestRefreshNativeBalance(t *testing.T) {
	kv := repo.NewMemoryKV()
	key := AccountTokenKey(1, testAccount, NativeSlug)
	require.NoError(t, putAccountToken(kv, key, &AccountToken{
		Type:           TypeAsset,
		Status:         StatusEnabled,
		ChainID:        1,
		AccountAddress: testAccount,
		TokenSlug:      NativeSlug,
		Decimals:       18,
		Symbol:         "ETH",
		RawBalance:     "0",
	}))

	stub := &chainStub{nativeBal: big.NewInt(42)}
	engine := NewEngine(kv, stub, emptyPrices{}, noAnalytics{}, inlineQueue{}, discardLogger())
	engine.RequestRefresh(1, testAccount, NativeSlug)

	token, err := getAccountToken(kv, key)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "42", token.RawBalance)
}

func TestStatusBoardTracksBusyChains(t *testing.T) {
	q := &manualQueue{}
	stub := &chainStub{balances: map[string]*big.Int{}, decimals: 18}
	engine := NewEngine(repo.NewMemoryKV(), stub, emptyPrices{}, noAnalytics{}, q, discardLogger())
	engine.settleDelay = time.Millisecond
	board := NewStatusBoard(engine)

	slug := NewSlug(StandardERC20, testToken)
	engine.RequestRefresh(1, testAccount, slug)
	assert.True(t, board.Busy(1))
	assert.False(t, board.Busy(56))

	q.runAll()
	// synced arrives after the settle delay.
	deadline := time.Now().Add(2 * time.Second)
	for board.Busy(1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, board.Busy(1))
	assert.Empty(t, board.Snapshot())
}
