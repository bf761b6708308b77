package vault

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts"
	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// KeystoreVault signs with plain keystore files referenced by the account
// registry. Keys stay encrypted on disk until Unlock.
type KeystoreVault struct {
	reg *Registry

	mu   sync.Mutex
	keys map[string]*ecdsa.PrivateKey
}

func NewKeystoreVault(reg *Registry) *KeystoreVault {
	return &KeystoreVault{
		reg:  reg,
		keys: map[string]*ecdsa.PrivateKey{},
	}
}

func (v *KeystoreVault) account(accountID string) (AccDesc, error) {
	for _, acc := range v.reg.Accounts() {
		if acc.ID == accountID {
			return acc, nil
		}
	}
	return AccDesc{}, fmt.Errorf("no account with id %s", accountID)
}

// Unlock decrypts the account's keystore file and keeps the key in memory.
func (v *KeystoreVault) Unlock(accountID string, passphrase string) error {
	acc, err := v.account(accountID)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(acc.Keypath)
	if err != nil {
		return fmt.Errorf("couldn't read keystore of %s: %w", acc.Address, err)
	}
	key, err := gethkeystore.DecryptKey(content, passphrase)
	if err != nil {
		return fmt.Errorf("couldn't decrypt keystore of %s: %w", acc.Address, err)
	}
	v.mu.Lock()
	v.keys[accountID] = key.PrivateKey
	v.mu.Unlock()
	return nil
}

// Lock drops every decrypted key.
func (v *KeystoreVault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = map[string]*ecdsa.PrivateKey{}
}

func (v *KeystoreVault) key(accountID string) (*ecdsa.PrivateKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key, found := v.keys[accountID]
	if !found {
		return nil, fmt.Errorf("account %s is locked", accountID)
	}
	return key, nil
}

func (v *KeystoreVault) Sign(accountID string, hash []byte) ([]byte, error) {
	key, err := v.key(accountID)
	if err != nil {
		return nil, err
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("tx hash must be 32 bytes, got %d", len(hash))
	}
	return crypto.Sign(hash, key)
}

func (v *KeystoreVault) SignMessage(
	accountID string,
	standard SigningStandard,
	message []byte,
) ([]byte, error) {
	key, err := v.key(accountID)
	if err != nil {
		return nil, err
	}
	switch standard {
	case PersonalSign:
		return crypto.Sign(accounts.TextHash(message), key)
	case EthSign:
		return crypto.Sign(crypto.Keccak256(message), key)
	default:
		return nil, fmt.Errorf("signing standard %q is not supported", standard)
	}
}

// PromptPassphrase reads a passphrase from the terminal without echo.
func PromptPassphrase(prompt string) string {
	fmt.Print(prompt)
	bytePassword, _ := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return string(bytePassword)
}
