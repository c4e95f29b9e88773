package boardscan

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const keyExemplars = "exemplars/current"

// BadgerExemplars persists the current exemplar set in a badger database.
type BadgerExemplars struct {
	db *badger.DB
}

// OpenBadgerExemplars opens (or creates) the database in dir.
func OpenBadgerExemplars(dir string) (*BadgerExemplars, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open exemplar db %q: %w", dir, err)
	}
	return &BadgerExemplars{db: db}, nil
}

func (b *BadgerExemplars) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// LoadExemplars returns nil, nil when nothing was saved yet.
func (b *BadgerExemplars) LoadExemplars() (*ExemplarSet, error) {
	var es *ExemplarSet
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyExemplars))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			es = &ExemplarSet{}
			return json.Unmarshal(val, es)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}
	return es, nil
}

func (b *BadgerExemplars) SaveExemplars(es *ExemplarSet) error {
	data, err := json.Marshal(es)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyExemplars), data)
	})
}

func (b *BadgerExemplars) DeleteExemplars() error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyExemplars))
	})
}
