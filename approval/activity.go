package approval

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tranvictor/walletd/repo"
	"github.com/tranvictor/walletd/tokens"
	"github.com/tranvictor/walletd/txaction"
	"github.com/tranvictor/walletd/vault"
)

// Activity is the immutable record of a resolved approval's outcome.
// Pending is 1 for a freshly broadcast transaction whose finality is
// tracked elsewhere and 0 for instantaneous actions.
type Activity struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Source  Source `json:"source"`
	TimeAt  int64  `json:"timeAt"`
	Pending int    `json:"pending"`

	// Connection
	AccountAddresses      []string `json:"accountAddresses,omitempty"`
	ReturnSelectedAccount bool     `json:"returnSelectedAccount,omitempty"`
	PreferredChainID      int64    `json:"preferredChainId,omitempty"`

	// Transaction
	ChainID        int64            `json:"chainId,omitempty"`
	AccountAddress string           `json:"accountAddress,omitempty"`
	TxParams       *TxParams        `json:"txParams,omitempty"`
	RawTx          hexutil.Bytes    `json:"rawTx,omitempty"`
	TxAction       *txaction.Action `json:"txAction,omitempty"`
	TxHash         string           `json:"txHash,omitempty"`

	// Signing
	Standard vault.SigningStandard `json:"standard,omitempty"`
	Message  hexutil.Bytes         `json:"message,omitempty"`
}

// TokenActivity ties a broadcast transaction to the account token it
// touches, so token history views don't have to re-classify.
type TokenActivity struct {
	ChainID        int64  `json:"chainId"`
	AccountAddress string `json:"accountAddress"`
	TokenSlug      string `json:"tokenSlug"`
	TxHash         string `json:"txHash"`
	Kind           string `json:"kind"`
	TimeAt         int64  `json:"timeAt"`
}

// ActivityIndexer is the optional full-text index fed on activity writes.
type ActivityIndexer interface {
	Index(activity Activity) error
}

func savePermission(kv repo.KV, p Permission) error {
	content, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return kv.Put(repo.Permissions, p.Origin, content)
}

func saveActivity(kv repo.KV, a Activity) error {
	content, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return kv.Put(repo.Activities, a.ID, content)
}

// TokenRefresher is the token sync engine slice the resolver fires
// refreshes through.
type TokenRefresher interface {
	RequestRefresh(chainID int64, accountAddress, tokenSlug string)
}

// saveTokenActivity records the touched token and kicks a balance refresh
// for it. A nil or token-less action is a no-op.
func saveTokenActivity(
	kv repo.KV,
	refresher TokenRefresher,
	action *txaction.Action,
	chainID int64,
	accountAddress, txHash string,
	timeAt int64,
) error {
	if action == nil || action.TokenAddress == "" {
		return nil
	}
	slug := tokens.NewSlug(tokens.StandardERC20, action.TokenAddress)
	record := TokenActivity{
		ChainID:        chainID,
		AccountAddress: accountAddress,
		TokenSlug:      slug,
		TxHash:         txHash,
		Kind:           string(action.Kind),
		TimeAt:         timeAt,
	}
	content, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s_%s", tokens.AccountTokenKey(chainID, accountAddress, slug), strings.ToLower(txHash))
	if err = kv.Put(repo.TokenActivities, key, content); err != nil {
		return err
	}
	if refresher != nil {
		refresher.RequestRefresh(chainID, accountAddress, slug)
	}
	return nil
}

func nonceKey(chainID int64, accountAddress string) string {
	return fmt.Sprintf("%d_%s", chainID, strings.ToLower(accountAddress))
}

// saveNonce records the last nonce used on a (account, chain) pair for
// nonce sequencing elsewhere.
func saveNonce(kv repo.KV, chainID int64, accountAddress string, nonce uint64) error {
	return kv.Put(repo.Nonces, nonceKey(chainID, accountAddress), []byte(fmt.Sprintf("%d", nonce)))
}
