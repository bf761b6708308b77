// Package vault holds the signing capability walletd consumes. The resolver
// only depends on the Vault interface; the keystore implementation in this
// package is one provider of it.
package vault

// SigningStandard names the message-signing scheme a page requested.
type SigningStandard string

const (
	PersonalSign SigningStandard = "personal_sign"
	EthSign      SigningStandard = "eth_sign"
)

// Vault signs transaction hashes and messages for accounts it controls.
// Both methods fail if the account or its key is unavailable.
type Vault interface {
	// Sign produces a 65 byte [R || S || V] signature over a 32 byte
	// transaction hash.
	Sign(accountID string, hash []byte) ([]byte, error)

	// SignMessage signs an arbitrary message under the given standard.
	SignMessage(accountID string, standard SigningStandard, message []byte) ([]byte, error)
}
