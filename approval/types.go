// Package approval holds the pending approval queue and the resolver that
// turns user decisions into permissions, broadcast transactions and signed
// messages.
package approval

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tranvictor/walletd/vault"
)

// Kind discriminates approval variants and the activities they produce.
type Kind string

const (
	KindConnection  Kind = "connection"
	KindTransaction Kind = "transaction"
	KindSigning     Kind = "signing"
)

// Source is the page context an approval originated from.
type Source struct {
	Origin string `json:"origin"`
	URL    string `json:"url,omitempty"`
}

// ReplyChannel carries the resolution back to the requesting page. Replying
// on an already-closed channel is a silent no-op; a nil channel means the
// requester disconnected and nobody is listening.
type ReplyChannel interface {
	Reply(result interface{}, err error)
}

// Base carries the fields shared by every approval variant.
type Base struct {
	ID        string
	Source    Source
	Reply     ReplyChannel
	CreatedAt time.Time
}

// Approval is a closed variant set: exactly Connection, Transaction and
// Signing implement it. The unexported method keeps the set closed so the
// resolver's type switch stays exhaustive by construction.
type Approval interface {
	Base() *Base
	Kind() Kind

	approval()
}

// Connection asks the user to expose accounts to an origin.
type Connection struct {
	B Base

	ReturnSelectedAccount bool
	PreferredChainID      int64
}

func (c *Connection) Base() *Base { return &c.B }
func (c *Connection) Kind() Kind  { return KindConnection }
func (c *Connection) approval()   {}

// TxParams are the origin-supplied transaction parameters, kept to validate
// the raw transaction the UI hands back at approval time.
type TxParams struct {
	From  string          `json:"from,omitempty"`
	To    string          `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Nonce *hexutil.Uint64 `json:"nonce,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// Transaction asks the user to sign and broadcast a transaction.
type Transaction struct {
	B Base

	ChainID        int64
	AccountAddress string
	TxParams       TxParams
	RawTx          hexutil.Bytes
}

func (t *Transaction) Base() *Base { return &t.B }
func (t *Transaction) Kind() Kind  { return KindTransaction }
func (t *Transaction) approval()   {}

// Signing asks the user to sign a message.
type Signing struct {
	B Base

	Standard       vault.SigningStandard
	AccountAddress string
	Message        hexutil.Bytes
}

func (s *Signing) Base() *Base { return &s.B }
func (s *Signing) Kind() Kind  { return KindSigning }
func (s *Signing) approval()   {}

// Decision is the user's verdict on one pending approval.
type Decision struct {
	Approved bool `json:"approved"`

	RawTx         hexutil.Bytes `json:"rawTx,omitempty"`
	Signature     hexutil.Bytes `json:"signature,omitempty"`
	SignedMessage hexutil.Bytes `json:"signedMessage,omitempty"`

	AccountAddresses  []string `json:"accountAddresses,omitempty"`
	OverriddenChainID *int64   `json:"overriddenChainId,omitempty"`
}

// Permission is a grant of accounts on a chain to an origin. Immutable once
// created; a later grant for the same origin supersedes it wholesale.
type Permission struct {
	Origin           string   `json:"origin"`
	ID               string   `json:"id"`
	TimeAt           int64    `json:"timeAt"`
	AccountAddresses []string `json:"accountAddresses"`
	ChainID          int64    `json:"chainId"`
}

// PermissionCaveat restricts what a wallet permission exposes.
type PermissionCaveat struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// WrappedPermission is the EIP-2255 shaped descriptor returned to pages
// that asked for the full permission rather than a bare account.
type WrappedPermission struct {
	Invoker          string             `json:"invoker"`
	ParentCapability string             `json:"parentCapability"`
	Caveats          []PermissionCaveat `json:"caveats"`
}

func WrapPermission(p Permission) WrappedPermission {
	return WrappedPermission{
		Invoker:          p.Origin,
		ParentCapability: "eth_accounts",
		Caveats: []PermissionCaveat{
			{
				Type:  "restrictReturnedAccounts",
				Value: p.AccountAddresses,
			},
		},
	}
}
