package dosattr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// Key prefix for attribute entries: attr:{share}\x00{path} -> uint16 LE.
const prefixAttr = "attr:"

// BadgerStore persists attributes in a BadgerDB database so they survive
// restarts.
type BadgerStore struct {
	db *badgerdb.DB
}

// OpenBadger opens (creating if needed) a store at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open dosattr database at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenBadgerInMemory opens a store that is discarded on Close.
func OpenBadgerInMemory() (*BadgerStore, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory dosattr database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(share, path string) []byte {
	return []byte(prefixAttr + key(share, path))
}

func (s *BadgerStore) Get(ctx context.Context, share, path string) (uint16, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	var (
		attrs uint16
		found bool
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(badgerKey(share, path))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 2 {
				return fmt.Errorf("corrupt attribute entry for %q", path)
			}
			attrs = binary.LittleEndian.Uint16(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get attributes: %w", err)
	}
	return attrs, found, nil
}

func (s *BadgerStore) Set(ctx context.Context, share, path string, attrs uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val := binary.LittleEndian.AppendUint16(nil, attrs)
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(badgerKey(share, path), val); err != nil {
			return fmt.Errorf("failed to store attributes: %w", err)
		}
		return nil
	})
}

// subtree collects the paths at or below root in share.
func subtree(txn *badgerdb.Txn, share, root string) ([]string, [][]byte, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = badgerKey(share, root)
	it := txn.NewIterator(opts)
	defer it.Close()

	shareKey := prefixAttr + key(share, "")
	var (
		paths  []string
		values [][]byte
	)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		p := strings.TrimPrefix(string(item.Key()), shareKey)
		if !isUnder(p, root) {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, nil, err
		}
		paths = append(paths, p)
		values = append(values, val)
	}
	return paths, values, nil
}

func (s *BadgerStore) Delete(ctx context.Context, share, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		paths, _, err := subtree(txn, share, path)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := txn.Delete(badgerKey(share, p)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Rename(ctx context.Context, share, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		stale, _, err := subtree(txn, share, newPath)
		if err != nil {
			return err
		}
		for _, p := range stale {
			if err := txn.Delete(badgerKey(share, p)); err != nil {
				return err
			}
		}

		paths, values, err := subtree(txn, share, oldPath)
		if err != nil {
			return err
		}
		for i, p := range paths {
			if err := txn.Delete(badgerKey(share, p)); err != nil {
				return err
			}
			dst := newPath + strings.TrimPrefix(p, oldPath)
			if err := txn.Set(badgerKey(share, dst), values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// CacheStats is a snapshot of one badger cache.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Ratio  float64
}

// cacheMetrics is satisfied by badger's cache metrics; a nil value reports
// zeros.
type cacheMetrics interface {
	Hits() uint64
	Misses() uint64
	Ratio() float64
}

func snapshot(m cacheMetrics) CacheStats {
	return CacheStats{Hits: m.Hits(), Misses: m.Misses(), Ratio: m.Ratio()}
}

// CacheStats reports the block and index cache counters, keyed by cache
// type.
func (s *BadgerStore) CacheStats() map[string]CacheStats {
	return map[string]CacheStats{
		"block": snapshot(s.db.BlockCacheMetrics()),
		"index": snapshot(s.db.IndexCacheMetrics()),
	}
}
