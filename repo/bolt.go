package repo

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltKV stores every table in its own bolt bucket inside a single file.
type BoltKV struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't open wallet db at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range AllTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't create table buckets: %w", err)
	}
	return &BoltKV{db: db}, nil
}

func (b *BoltKV) Get(table Table, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		if v := bucket.Get([]byte(key)); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (b *BoltKV) Put(table Table, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *BoltKV) List(table Table) (map[string][]byte, error) {
	result := map[string][]byte{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		return bucket.ForEach(func(k, v []byte) error {
			value := make([]byte, len(v))
			copy(value, v)
			result[string(k)] = value
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BoltKV) Close() error {
	return b.db.Close()
}
