package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sahilm/fuzzy"
)

// AccDesc describes one account walletd knows about.
type AccDesc struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Keypath string `json:"keypath"`
	Desc    string `json:"desc"`
}

// Registry maps canonical addresses to account descriptors. Descriptors are
// stored as one JSON file per account under <dir>/accounts.
type Registry struct {
	mu        sync.Mutex
	dir       string
	byAddress map[string]AccDesc
	list      []AccDesc
}

func accountsDir(dataDir string) string {
	return filepath.Join(dataDir, "accounts")
}

// LoadRegistry reads every account record under the data dir. A missing
// accounts dir yields an empty registry, not an error.
func LoadRegistry(dataDir string) (*Registry, error) {
	reg := &Registry{
		dir:       accountsDir(dataDir),
		byAddress: map[string]AccDesc{},
	}
	entries, err := os.ReadDir(reg.dir)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't read accounts dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(reg.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		acc := AccDesc{}
		if err = json.Unmarshal(content, &acc); err != nil {
			return nil, fmt.Errorf("malformed account record %s: %w", entry.Name(), err)
		}
		reg.put(acc)
	}
	return reg, nil
}

func (r *Registry) put(acc AccDesc) {
	canonical := ethcommon.HexToAddress(acc.Address).Hex()
	acc.Address = canonical
	r.byAddress[canonical] = acc
	r.list = append(r.list, acc)
}

// Register adds an account and persists its record.
func (r *Registry) Register(acc AccDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(acc)
	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return err
	}
	content, err := json.MarshalIndent(acc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s.json", ethcommon.HexToAddress(acc.Address).Hex()))
	return os.WriteFile(path, content, 0600)
}

// AccountByAddress looks an account up by any casing of its address.
func (r *Registry) AccountByAddress(address string) (AccDesc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, found := r.byAddress[ethcommon.HexToAddress(address).Hex()]
	return acc, found
}

func (r *Registry) Accounts() []AccDesc {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]AccDesc, len(r.list))
	copy(result, r.list)
	return result
}

type fuzzySource []AccDesc

func (self fuzzySource) Len() int {
	return len(self)
}

func (self fuzzySource) String(i int) string {
	return fmt.Sprintf("%s_%s", self[i].Address, strings.Replace(self[i].Desc, " ", "_", -1))
}

// Search matches accounts against input by address and description.
func (r *Registry) Search(input string) []AccDesc {
	r.mu.Lock()
	source := fuzzySource(append([]AccDesc{}, r.list...))
	r.mu.Unlock()

	matches := fuzzy.FindFrom(input, source)
	result := []AccDesc{}
	for _, m := range matches {
		result = append(result, source[m.Index])
	}
	return result
}
