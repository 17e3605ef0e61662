package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

// BadgerDB persists cached values in an embedded badger database.
type BadgerDB struct {
	db  *badger.DB
	ttl time.Duration
}

func NewBadger(dir string, ttl time.Duration) (*BadgerDB, error) {
	if dir == "" {
		return nil, errors.New("missing badger cache dir")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger cache in %s", dir)
	}
	return &BadgerDB{db: db, ttl: ttl}, nil
}

func (c *BadgerDB) Get(_ context.Context, key string) ([]byte, bool, error) {
	var data []byte
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		found = true
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "reading badger cache")
	}
	return data, found, nil
}

func (c *BadgerDB) Set(_ context.Context, key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	return errors.Wrap(err, "writing badger cache")
}

func (c *BadgerDB) Delete(_ context.Context, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return errors.Wrap(err, "deleting from badger cache")
}

func (c *BadgerDB) Close() error {
	return c.db.Close()
}
