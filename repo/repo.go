// Package repo provides keyed persistence for walletd's logical tables.
// There are no cross-key transactions: multi-record sequences are issued
// independently and are not atomic as a group.
package repo

// Table names a logical table inside the store.
type Table string

const (
	Permissions     Table = "permissions"
	Activities      Table = "activities"
	TokenActivities Table = "tokenActivities"
	AccountTokens   Table = "accountTokens"
	Nonces          Table = "nonces"
)

var AllTables = []Table{
	Permissions,
	Activities,
	TokenActivities,
	AccountTokens,
	Nonces,
}

// KV is the persistence contract walletd components consume. Implementations
// must support independent keyed reads and writes; Get reports presence
// explicitly so callers can distinguish "absent" from "empty".
type KV interface {
	Get(table Table, key string) ([]byte, bool, error)
	Put(table Table, key string, value []byte) error
	List(table Table) (map[string][]byte, error)
}
