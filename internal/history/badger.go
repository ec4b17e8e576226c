package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend keeps the dashboard payload under one key of a Badger database.
type BadgerBackend struct {
	db  *badger.DB
	key []byte
}

// NewBadgerBackend opens (or creates) a Badger database in dir.
func NewBadgerBackend(dir string) (*BadgerBackend, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerBackend{db: db, key: []byte(StateKey)}, nil
}

func (b *BadgerBackend) Load(_ context.Context) ([]byte, error) {
	var payload []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return payload, nil
}

func (b *BadgerBackend) Save(_ context.Context, payload []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, payload)
	})
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Clear(_ context.Context) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key)
	})
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
