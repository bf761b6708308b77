package approval

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/tranvictor/walletd/common"
	"github.com/tranvictor/walletd/config"
	"github.com/tranvictor/walletd/repo"
	"github.com/tranvictor/walletd/rpc"
	"github.com/tranvictor/walletd/txaction"
	"github.com/tranvictor/walletd/vault"
)

// AccountResolver maps a canonical address to a vault account descriptor.
type AccountResolver interface {
	AccountByAddress(address string) (vault.AccDesc, bool)
}

// ChainCaller is the gateway slice the resolver broadcasts through.
type ChainCaller interface {
	Send(ctx context.Context, chainID int64, method string, params ...interface{}) (*rpc.Response, error)
}

// ActionClassifier decodes transaction intent for activity records.
type ActionClassifier interface {
	Classify(ctx context.Context, chainID int64, to string, value *big.Int, data []byte) (*txaction.Action, error)
}

// Resolver applies user decisions to pending approvals. It owns the side
// effects of resolution: permissions, activity records, nonce tracking,
// broadcasting and reply delivery.
type Resolver struct {
	store      *Store
	kv         repo.KV
	gateway    ChainCaller
	accounts   AccountResolver
	classifier ActionClassifier
	refresher  TokenRefresher
	index      ActivityIndexer
	logger     *slog.Logger

	now func() time.Time
}

// NewResolver wires a resolver. refresher and index may be nil; the
// corresponding side effects are skipped.
func NewResolver(
	store *Store,
	kv repo.KV,
	gateway ChainCaller,
	accounts AccountResolver,
	classifier ActionClassifier,
	refresher TokenRefresher,
	index ActivityIndexer,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		store:      store,
		kv:         kv,
		gateway:    gateway,
		accounts:   accounts,
		classifier: classifier,
		refresher:  refresher,
		index:      index,
		logger:     logger,
		now:        time.Now,
	}
}

// Resolve applies a decision to the pending approval with the given id. The
// approval leaves the queue exactly once no matter how resolution ends;
// concurrent calls for the same id lose the claim and get
// ErrApprovalNotFound.
func (r *Resolver) Resolve(ctx context.Context, approvalID string, decision Decision, v vault.Vault) error {
	a, err := r.store.Claim(approvalID)
	if err != nil {
		return err
	}
	defer r.store.Finalize(approvalID)

	if !decision.Approved {
		r.reply(a, nil, UserRejectedError())
		return nil
	}

	switch approved := a.(type) {
	case *Connection:
		err = r.resolveConnection(approved, decision)
	case *Transaction:
		err = r.resolveTransaction(ctx, approved, decision, v)
	case *Signing:
		err = r.resolveSigning(approved, decision, v)
	default:
		err = fmt.Errorf("approval %s (%s): %w", approvalID, a.Kind(), ErrUnsupportedKind)
	}
	if err != nil {
		// The page is still waiting; a failed resolution is its answer too.
		r.reply(a, nil, err)
	}
	return err
}

func (r *Resolver) reply(a Approval, result interface{}, err error) {
	if ch := a.Base().Reply; ch != nil {
		ch.Reply(result, err)
	}
}

func (r *Resolver) resolveConnection(a *Connection, decision Decision) error {
	if len(decision.AccountAddresses) == 0 {
		return fmt.Errorf("connection approval %s: %w", a.B.ID, ErrNoAccounts)
	}

	// The permission carries the addresses exactly as the user selected
	// them; only the signing paths canonicalize.
	addresses := append([]string{}, decision.AccountAddresses...)

	chainID := config.DefaultChainID
	if a.PreferredChainID != 0 {
		chainID = a.PreferredChainID
	}
	if decision.OverriddenChainID != nil {
		chainID = *decision.OverriddenChainID
	}

	timeAt := r.now().UnixMilli()
	permission := Permission{
		Origin:           a.B.Source.Origin,
		ID:               uuid.NewString(),
		TimeAt:           timeAt,
		AccountAddresses: addresses,
		ChainID:          chainID,
	}
	if err := savePermission(r.kv, permission); err != nil {
		return fmt.Errorf("saving permission for %s: %w", permission.Origin, err)
	}

	r.recordActivity(Activity{
		ID:                    uuid.NewString(),
		Kind:                  KindConnection,
		Source:                a.B.Source,
		TimeAt:                timeAt,
		AccountAddresses:      addresses,
		ReturnSelectedAccount: a.ReturnSelectedAccount,
		PreferredChainID:      a.PreferredChainID,
		ChainID:               chainID,
	})

	if a.ReturnSelectedAccount {
		r.reply(a, []string{addresses[0]}, nil)
	} else {
		r.reply(a, []WrappedPermission{WrapPermission(permission)}, nil)
	}
	return nil
}

func (r *Resolver) resolveTransaction(
	ctx context.Context,
	a *Transaction,
	decision Decision,
	v vault.Vault,
) error {
	rawTx := decision.RawTx
	if len(rawTx) == 0 {
		rawTx = a.RawTx
	}
	if len(rawTx) == 0 {
		return fmt.Errorf("transaction approval %s: %w", a.B.ID, ErrNoTransaction)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedTransaction, err)
	}
	if err := validateTxOrigin(tx, a.TxParams, a.AccountAddress); err != nil {
		return err
	}

	signer := types.LatestSignerForChainID(big.NewInt(a.ChainID))
	signed, err := r.ensureSigned(tx, signer, a.AccountAddress, decision, v)
	if err != nil {
		return err
	}

	sender, err := types.Sender(signer, signed)
	if err != nil {
		return fmt.Errorf("%w: recovering sender: %s", ErrMalformedTransaction, err)
	}
	if !strings.EqualFold(sender.Hex(), a.AccountAddress) {
		return fmt.Errorf("signer %s: %w", sender.Hex(), ErrTxOriginMismatch)
	}

	if config.Environment != "production" && config.DevBlockTxSend {
		return ErrTxSendBlocked
	}

	encoded, err := signed.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding signed transaction: %w", err)
	}
	res, err := r.gateway.Send(ctx, a.ChainID, "eth_sendRawTransaction", hexutil.Encode(encoded))
	if err != nil {
		return fmt.Errorf("broadcasting transaction: %w", err)
	}
	if res.Error != nil {
		r.logger.Warn(
			"node rejected transaction",
			"approval", a.B.ID,
			"chain", a.ChainID,
			"code", res.Error.Code,
			"msg", res.Error.Message,
		)
		return newSubmissionError(res.Error)
	}

	txHash := signed.Hash().Hex()
	var reported string
	if err = res.UnmarshalResult(&reported); err == nil && reported != "" {
		txHash = reported
	}

	// The transaction is on the wire. Everything below is bookkeeping and
	// must not surface as a resolution failure.
	action := r.classify(ctx, a.ChainID, signed)
	timeAt := r.now().UnixMilli()
	activity := Activity{
		ID:             uuid.NewString(),
		Kind:           KindTransaction,
		Source:         a.B.Source,
		TimeAt:         timeAt,
		Pending:        1,
		ChainID:        a.ChainID,
		AccountAddress: ethcommon.HexToAddress(a.AccountAddress).Hex(),
		TxParams:       &a.TxParams,
		RawTx:          encoded,
		TxAction:       action,
		TxHash:         txHash,
	}
	if err, fails := common.RunParallel(
		func() error {
			return saveNonce(r.kv, a.ChainID, a.AccountAddress, signed.Nonce())
		},
		func() error {
			r.recordActivity(activity)
			return nil
		},
		func() error {
			return saveTokenActivity(
				r.kv, r.refresher, action,
				a.ChainID, a.AccountAddress, txHash, timeAt,
			)
		},
	); fails > 0 {
		r.logger.Warn("post-broadcast bookkeeping failed", "approval", a.B.ID, "err", err)
	}

	r.reply(a, txHash, nil)
	return nil
}

// ensureSigned returns a signed transaction, asking the vault to sign when
// neither the decision nor the raw transaction carries a signature.
func (r *Resolver) ensureSigned(
	tx *types.Transaction,
	signer types.Signer,
	accountAddress string,
	decision Decision,
	v vault.Vault,
) (*types.Transaction, error) {
	sig := []byte(decision.Signature)
	if len(sig) == 0 {
		vv, rr, ss := tx.RawSignatureValues()
		if vv.Sign() != 0 || rr.Sign() != 0 || ss.Sign() != 0 {
			return tx, nil
		}
		acc, found := r.accounts.AccountByAddress(ethcommon.HexToAddress(accountAddress).Hex())
		if !found {
			return nil, fmt.Errorf("account %s: %w", accountAddress, ErrAccountNotFound)
		}
		var err error
		sig, err = v.Sign(acc.ID, signer.Hash(tx).Bytes())
		if err != nil {
			return nil, fmt.Errorf("signing transaction for %s: %w", acc.Address, err)
		}
	}
	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, fmt.Errorf("attaching signature: %w", err)
	}
	return signed, nil
}

// validateTxOrigin checks the transaction the UI hands back against the
// parameters the page originally requested. Nonce and Gas are only checked
// when the page pinned them.
func validateTxOrigin(tx *types.Transaction, params TxParams, accountAddress string) error {
	if params.From != "" && !strings.EqualFold(params.From, accountAddress) {
		return fmt.Errorf("from %s is not the approving account: %w", params.From, ErrTxOriginMismatch)
	}

	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	if !strings.EqualFold(to, params.To) {
		return fmt.Errorf("recipient changed: %w", ErrTxOriginMismatch)
	}

	wantValue := new(big.Int)
	if params.Value != nil {
		wantValue = params.Value.ToInt()
	}
	if tx.Value().Cmp(wantValue) != 0 {
		return fmt.Errorf("value changed: %w", ErrTxOriginMismatch)
	}

	if hexutil.Encode(tx.Data()) != hexutil.Encode(params.Data) {
		return fmt.Errorf("calldata changed: %w", ErrTxOriginMismatch)
	}

	if params.Nonce != nil && tx.Nonce() != uint64(*params.Nonce) {
		return fmt.Errorf("nonce changed: %w", ErrTxOriginMismatch)
	}
	if params.Gas != nil && tx.Gas() != uint64(*params.Gas) {
		return fmt.Errorf("gas limit changed: %w", ErrTxOriginMismatch)
	}
	return nil
}

func (r *Resolver) classify(ctx context.Context, chainID int64, tx *types.Transaction) *txaction.Action {
	if r.classifier == nil {
		return nil
	}
	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	action, err := r.classifier.Classify(ctx, chainID, to, tx.Value(), tx.Data())
	if err != nil {
		r.logger.Debug("transaction classification failed", "err", err)
		return nil
	}
	return action
}

func (r *Resolver) resolveSigning(a *Signing, decision Decision, v vault.Vault) error {
	// The UI may sign out of band (hardware flows). In that case the result
	// only needs forwarding; no vault access, no activity record.
	if len(decision.SignedMessage) > 0 {
		r.reply(a, hexutil.Encode(decision.SignedMessage), nil)
		return nil
	}

	address := ethcommon.HexToAddress(a.AccountAddress).Hex()
	acc, found := r.accounts.AccountByAddress(address)
	if !found {
		return fmt.Errorf("account %s: %w", address, ErrAccountNotFound)
	}
	sig, err := v.SignMessage(acc.ID, a.Standard, a.Message)
	if err != nil {
		return fmt.Errorf("signing message for %s: %w", address, err)
	}

	r.recordActivity(Activity{
		ID:             uuid.NewString(),
		Kind:           KindSigning,
		Source:         a.B.Source,
		TimeAt:         r.now().UnixMilli(),
		AccountAddress: address,
		Standard:       a.Standard,
		Message:        a.Message,
	})

	r.reply(a, hexutil.Encode(sig), nil)
	return nil
}

// recordActivity persists and indexes an activity. Failures are logged; an
// activity record never blocks delivering the result to the page.
func (r *Resolver) recordActivity(a Activity) {
	if err := saveActivity(r.kv, a); err != nil {
		r.logger.Warn("saving activity failed", "activity", a.ID, "err", err)
		return
	}
	if r.index != nil {
		if err := r.index.Index(a); err != nil {
			r.logger.Warn("indexing activity failed", "activity", a.ID, "err", err)
		}
	}
}
