// Package tokens implements the token balance/price sync engine. Refreshes
// are requested fire-and-forget, deduplicated per (chain, account, token)
// key, and executed on a shared bounded FIFO queue.
package tokens

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tranvictor/walletd/common"
	"github.com/tranvictor/walletd/networks"
	"github.com/tranvictor/walletd/pricing"
	"github.com/tranvictor/walletd/repo"
)

// PriceAPI is price source #1: USD quotes keyed by contract address.
type PriceAPI interface {
	GetPrices(platform string, addresses []string) (map[string]pricing.Price, error)
}

// AnalyticsAPI is price source #2: chain-analytics with token metadata.
type AnalyticsAPI interface {
	GetChain(chainID int64) (*pricing.AnalyticsChain, error)
	GetToken(chainSlug, address string) (*pricing.AnalyticsToken, error)
}

// Enqueuer is the sync queue contract: work is enqueued, scheduling is the
// queue's business.
type Enqueuer interface {
	Enqueue(task func())
}

// SyncEvent tells observers whether a chain went busy or idle.
type SyncEvent struct {
	ChainID int64
	Started bool
}

type Engine struct {
	kv        repo.KV
	caller    ChainCaller
	prices    PriceAPI
	analytics AnalyticsAPI
	queue     Enqueuer
	logger    *slog.Logger

	// synced is emitted this long after a refresh finishes, so observers
	// see a stable idle state instead of flickering between queued keys.
	settleDelay time.Duration

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	subsMu sync.Mutex
	subs   []func(SyncEvent)
}

func NewEngine(
	kv repo.KV,
	caller ChainCaller,
	prices PriceAPI,
	analytics AnalyticsAPI,
	queue Enqueuer,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		kv:          kv,
		caller:      caller,
		prices:      prices,
		analytics:   analytics,
		queue:       queue,
		logger:      logger,
		settleDelay: 500 * time.Millisecond,
		inflight:    map[string]struct{}{},
	}
}

// Subscribe registers an observer for sync started/synced signals.
func (e *Engine) Subscribe(fn func(SyncEvent)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, fn)
}

func (e *Engine) emit(ev SyncEvent) {
	e.subsMu.Lock()
	subs := append([]func(SyncEvent){}, e.subs...)
	e.subsMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// RequestRefresh asks for a balance/price refresh of one account token.
// Fire-and-forget: failures are logged, never returned. At most one refresh
// per key is in flight; a duplicate request while one runs is a no-op, and a
// request after completion always re-executes.
func (e *Engine) RequestRefresh(chainID int64, accountAddress, tokenSlug string) {
	key := AccountTokenKey(chainID, accountAddress, tokenSlug)

	e.inflightMu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.inflightMu.Unlock()
		return
	}
	e.inflight[key] = struct{}{}
	e.inflightMu.Unlock()

	e.emit(SyncEvent{ChainID: chainID, Started: true})

	e.queue.Enqueue(func() {
		// The marker must go away on every exit path or the key would be
		// starved forever.
		defer func() {
			e.inflightMu.Lock()
			delete(e.inflight, key)
			e.inflightMu.Unlock()
			time.AfterFunc(e.settleDelay, func() {
				e.emit(SyncEvent{ChainID: chainID, Started: false})
			})
		}()

		if err := e.refresh(context.Background(), chainID, accountAddress, tokenSlug, key); err != nil {
			e.logger.Error(
				"token refresh failed",
				"chainId", chainID,
				"account", accountAddress,
				"slug", tokenSlug,
				"err", err,
			)
		}
	})
}

func (e *Engine) refresh(
	ctx context.Context,
	chainID int64,
	accountAddress, tokenSlug, key string,
) error {
	existing, err := getAccountToken(e.kv, key)
	if err != nil {
		return err
	}

	// Known token: balance only. Metadata and price are never re-fetched for
	// existing records to keep external API traffic bounded.
	if existing != nil {
		balance, err := balanceFromChain(ctx, e.caller, chainID, tokenSlug, accountAddress)
		if err != nil {
			return err
		}
		merged := *existing
		merged.RawBalance = balance.String()
		if existing.Type == TypeAsset && existing.PriceUSD != "" {
			merged.BalanceUSD = ComputeBalanceUSD(merged.RawBalance, existing.Decimals, existing.PriceUSD)
		}
		return putAccountToken(e.kv, key, &merged)
	}

	standard, tokenAddress, err := ParseSlug(tokenSlug)
	if err != nil {
		return err
	}

	// Native balances are tracked elsewhere; nothing to discover here.
	if standard == StandardNative {
		return nil
	}

	var candidate *AccountToken
	var priceUSD, priceUSDChange string

	if standard == StandardERC20 {
		platform := ""
		if network, err := networks.GetNetworkByChainID(chainID); err == nil {
			platform = network.GetCoinGeckoPlatform()
		}

		var analyticsChain *pricing.AnalyticsChain
		var cgPrices map[string]pricing.Price
		parallelErr, _ := common.RunParallel(
			func() error {
				chain, err := e.analytics.GetChain(chainID)
				if err == nil {
					analyticsChain = chain
				}
				return err
			},
			func() error {
				prices, err := e.prices.GetPrices(platform, []string{tokenAddress})
				if err == nil {
					cgPrices = prices
				}
				return err
			},
		)
		if parallelErr != nil {
			// Pricing is an enrichment: a dead price source must not block
			// token discovery.
			e.logger.Warn("price source lookup failed", "chainId", chainID, "err", parallelErr)
		}

		if cgPrice, found := cgPrices[strings.ToLower(tokenAddress)]; found && cgPrice.USD != 0 {
			priceUSD = common.FloatToString(cgPrice.USD)
			priceUSDChange = common.FloatToString(cgPrice.USD24hChange)
		}

		if analyticsChain != nil {
			var analyticsToken *pricing.AnalyticsToken
			var balance string
			fetchErr, _ := common.RunParallel(
				func() error {
					token, err := e.analytics.GetToken(analyticsChain.ID, tokenAddress)
					if err != nil {
						// Soft failure: treated the same as an unknown token.
						e.logger.Warn("analytics token lookup failed", "token", tokenAddress, "err", err)
						return nil
					}
					analyticsToken = token
					return nil
				},
				func() error {
					b, err := balanceFromChain(ctx, e.caller, chainID, tokenSlug, accountAddress)
					if err != nil {
						return err
					}
					balance = b.String()
					return nil
				},
			)
			if fetchErr != nil {
				return fetchErr
			}

			if analyticsToken != nil {
				if priceUSD == "" && analyticsToken.Price != 0 {
					priceUSD = common.FloatToString(analyticsToken.Price)
				}
				balanceUSD := 0.0
				if priceUSD != "" {
					balanceUSD = ComputeBalanceUSD(balance, analyticsToken.Decimals, priceUSD)
				}
				candidate = &AccountToken{
					Type:           TypeAsset,
					Status:         StatusEnabled,
					ChainID:        chainID,
					AccountAddress: accountAddress,
					TokenSlug:      tokenSlug,
					Decimals:       analyticsToken.Decimals,
					Name:           analyticsToken.Name,
					Symbol:         analyticsToken.Symbol,
					LogoURL:        analyticsToken.LogoURL,
					RawBalance:     balance,
					BalanceUSD:     balanceUSD,
					PriceUSD:       priceUSD,
					PriceUSDChange: priceUSDChange,
				}
			}
		}
	}

	if candidate == nil {
		meta, err := metadataFromChain(ctx, e.caller, chainID, standard, tokenAddress)
		if err != nil {
			// No readable metadata means the token stays untracked. Not an
			// error: pages probe arbitrary addresses all the time.
			e.logger.Debug("token metadata unavailable, skipping", "token", tokenAddress, "err", err)
			return nil
		}
		balance, err := balanceFromChain(ctx, e.caller, chainID, tokenSlug, accountAddress)
		if err != nil {
			return err
		}
		rawBalance := balance.String()
		balanceUSD := 0.0
		if priceUSD != "" && standard == StandardERC20 {
			balanceUSD = ComputeBalanceUSD(rawBalance, meta.Decimals, priceUSD)
		}
		tokenType := TypeAsset
		if standard != StandardERC20 {
			tokenType = TypeNFT
		}
		candidate = &AccountToken{
			Type:           tokenType,
			Status:         StatusEnabled,
			ChainID:        chainID,
			AccountAddress: accountAddress,
			TokenSlug:      tokenSlug,
			Decimals:       meta.Decimals,
			Name:           meta.Name,
			Symbol:         meta.Symbol,
			RawBalance:     rawBalance,
			BalanceUSD:     balanceUSD,
			PriceUSD:       priceUSD,
			PriceUSDChange: priceUSDChange,
		}
	}

	return putAccountToken(e.kv, key, candidate)
}
