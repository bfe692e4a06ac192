package store

import (
	"errors"
	"fmt"

	"github.com/decred/slog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"closedgroups/internal/domain"
)

// collectionSep separates the collection from the key inside leveldb keys.
const collectionSep = "/"

// LevelDB is a KeyValueStore backed by goleveldb.
type LevelDB struct {
	db  *leveldb.DB
	log slog.Logger
}

// OpenLevelDB opens (creating if needed) the database at path.
func OpenLevelDB(path string, log slog.Logger) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	if log == nil {
		log = slog.Disabled
	}
	log.Debugf("Opened database at %s", path)
	return &LevelDB{db: db, log: log}, nil
}

// OpenMemLevelDB returns a LevelDB over in-memory storage.
func OpenMemLevelDB(log slog.Logger) (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Disabled
	}
	return &LevelDB{db: db, log: log}, nil
}

// Close releases the database.
func (s *LevelDB) Close() error { return s.db.Close() }

func dbKey(collection, key string) []byte {
	return []byte(collection + collectionSep + key)
}

// Get returns the value stored under key.
func (s *LevelDB) Get(collection, key string) ([]byte, bool, error) {
	v, err := s.db.Get(dbKey(collection, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores value under key.
func (s *LevelDB) Set(collection, key string, value []byte) error {
	return s.db.Put(dbKey(collection, key), value, nil)
}

// Delete removes key. Missing keys are not an error.
func (s *LevelDB) Delete(collection, key string) error {
	return s.db.Delete(dbKey(collection, key), nil)
}

// Update runs fn inside a leveldb transaction. Transactions are exclusive,
// so concurrent Updates are serialised.
func (s *LevelDB) Update(collection, key string, fn func(old []byte, ok bool) ([]byte, error)) error {
	tx, err := s.db.OpenTransaction()
	if err != nil {
		return err
	}
	k := dbKey(collection, key)
	old, err := tx.Get(k, nil)
	ok := true
	if errors.Is(err, leveldb.ErrNotFound) {
		ok, err = false, nil
	}
	if err != nil {
		tx.Discard()
		return err
	}
	v, err := fn(old, ok)
	if err != nil {
		tx.Discard()
		return err
	}
	if v == nil {
		tx.Discard()
		return nil
	}
	if err := tx.Put(k, v, nil); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// Keys lists keys starting with prefix in byte order.
func (s *LevelDB) Keys(collection, prefix string) ([]string, error) {
	base := len(collection) + len(collectionSep)
	iter := s.db.NewIterator(util.BytesPrefix(dbKey(collection, prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()[base:]))
	}
	return keys, iter.Error()
}

// DeletePrefix removes every key starting with prefix in one batch.
func (s *LevelDB) DeletePrefix(collection, prefix string) error {
	iter := s.db.NewIterator(util.BytesPrefix(dbKey(collection, prefix)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	s.log.Tracef("Deleting %d keys under %s%s%s", batch.Len(), collection, collectionSep, prefix)
	return s.db.Write(batch, nil)
}

// Compile-time assertion that LevelDB implements domain.KeyValueStore.
var _ domain.KeyValueStore = (*LevelDB)(nil)
