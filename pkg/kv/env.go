// Package kv wraps Badger as the substrate's embedded mmap storage
// engine: a single on-disk database namespaced into logical DBIs by a
// one-byte key prefix, covering the full set of sub-databases this
// substrate needs (nodes, edges, embeddings, adjacency, property
// index, tier metadata, scheduler state).
//
// Every read and write goes through a *badger.Txn, giving the whole
// module Badger's native single-writer/multi-reader MVCC semantics
// for free — the data-plane half of the concurrency model, with the
// Weaver and scheduler's goroutines/channels forming the control-plane
// half on top.
package kv

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
)

// DBI tags a logical sub-database within the single Badger store, via
// a one-byte key prefix.
type DBI byte

const (
	DBINode       DBI = 0x01
	DBIEdge       DBI = 0x02
	DBIEmbedding  DBI = 0x03
	DBIOutgoing   DBI = 0x04
	DBIIncoming   DBI = 0x05
	DBIProperty   DBI = 0x06
	DBITierMeta   DBI = 0x07
	DBIColdArchive DBI = 0x08
	DBISchedState DBI = 0x09
	DBIWeaverQueue DBI = 0x0A
)

// keySeparator delimits key components: a 0x00 byte between a prefix
// and the component that follows it.
const keySeparator = byte(0x00)

// Join concatenates one or more key components, each followed by a
// separator, so a PrefixScan over a partial key (e.g. just the first
// component) never false-matches a longer component that merely
// shares a byte prefix with it ("n1" vs "n10"). The result is a
// DBI-less suffix; Put/Get/Delete/Has/PrefixScan take it alongside a
// DBI and prepend that DBI's one-byte tag themselves.
func Join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p) + 1
	}
	key := make([]byte, 0, size)
	for _, p := range parts {
		key = append(key, p...)
		key = append(key, keySeparator)
	}
	return key
}

// Key is Join for the common single-component case.
func Key(part []byte) []byte { return Join(part) }

// Env owns the single Badger database backing every DBI.
type Env struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger with no disk backing, for tests.
	InMemory bool

	// SyncWrites forces fsync after every commit.
	SyncWrites bool

	// LowMemory shrinks Badger's memtable/cache budgets for
	// constrained environments.
	LowMemory bool

	// Logger receives Badger's internal log lines. A nil Logger
	// silences them.
	Logger badger.Logger

	// EncryptionKey enables Badger's at-rest encryption when set. Must
	// be 16, 24, or 32 bytes (AES-128/192/256); pkg/encryption's
	// DeriveKey produces a suitable 32-byte key from a passphrase.
	EncryptionKey []byte
}

// Open creates or re-opens the Badger store at opts.Path.
func Open(opts Options) (*Env, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.SyncWrites {
		bopts = bopts.WithSyncWrites(true)
	}
	bopts = bopts.WithLogger(opts.Logger)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache when encryption is on.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(64 << 20)
	}

	if opts.LowMemory {
		bopts = bopts.
			WithMemTableSize(16 << 20).
			WithValueLogFileSize(64 << 20).
			WithNumMemtables(2).
			WithNumLevelZeroTables(2).
			WithNumLevelZeroTablesStall(4).
			WithValueThreshold(1024).
			WithBlockCacheSize(32 << 20).
			WithIndexCacheSize(16 << 20)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, dberr.NewBackend(dberr.BackendUnavailable, "open badger store: "+err.Error())
	}
	return &Env{db: db}, nil
}

// Close releases the underlying Badger store.
func (e *Env) Close() error {
	return e.db.Close()
}

// RunValueLogGC triggers Badger's value-log garbage collection, the
// reclamation step the cold-archive/compaction path relies on after a
// tier promotion deletes a large run of stale keys.
func (e *Env) RunValueLogGC(discardRatio float64) error {
	err := e.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// Txn wraps a Badger transaction with the DBI-aware Key helper baked
// into every call, so callers never hand-roll a prefix byte.
type Txn struct {
	txn *badger.Txn
}

// View runs fn inside a read-only transaction.
func (e *Env) View(fn func(txn *Txn) error) error {
	return e.db.View(func(bt *badger.Txn) error {
		return fn(&Txn{txn: bt})
	})
}

// Update runs fn inside a read-write transaction, committing on
// success and rolling back on error or panic.
func (e *Env) Update(fn func(txn *Txn) error) error {
	return e.db.Update(func(bt *badger.Txn) error {
		return fn(&Txn{txn: bt})
	})
}

// rawKey prepends dbi's one-byte tag to a suffix the caller has
// already built (typically via Join, or a bare id for a single-
// component key). No further processing happens here — separator
// placement is entirely the caller's responsibility, so that callers
// needing a safe prefix-scan boundary use Join and callers needing an
// exact single-component key can pass it unmodified.
func rawKey(dbi DBI, suffix []byte) []byte {
	key := make([]byte, 0, 1+len(suffix))
	key = append(key, byte(dbi))
	key = append(key, suffix...)
	return key
}

// Get copies the value stored at key in dbi into a fresh slice. Use
// View for zero-copy access to the mapped bytes instead, when the
// caller can confine its use of the value to the transaction's
// lifetime.
func (t *Txn) Get(dbi DBI, key []byte) ([]byte, error) {
	item, err := t.txn.Get(rawKey(dbi, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, dberr.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// View invokes fn with the value stored at key, without copying it
// out of Badger's mapped arena. fn must not retain the slice beyond
// its own return — this is the zero-copy read path the archived codec
// (pkg/codec) builds its Record/NodeRef views on top of.
func (t *Txn) View(dbi DBI, key []byte, fn func(value []byte) error) error {
	item, err := t.txn.Get(rawKey(dbi, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return dberr.ErrNotFound
		}
		return err
	}
	return item.Value(fn)
}

// Put stores value at key in dbi.
func (t *Txn) Put(dbi DBI, key, value []byte) error {
	return t.txn.Set(rawKey(dbi, key), value)
}

// Delete removes key from dbi.
func (t *Txn) Delete(dbi DBI, key []byte) error {
	return t.txn.Delete(rawKey(dbi, key))
}

// Has reports whether key exists in dbi.
func (t *Txn) Has(dbi DBI, key []byte) (bool, error) {
	_, err := t.txn.Get(rawKey(dbi, key))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PrefixScan iterates every key in dbi whose suffix starts with
// prefix, invoking fn with each key's suffix (dbi byte stripped) and
// its value. Iteration stops at the first error fn returns. Callers
// wanting a component-boundary-safe scan (e.g. "all edges for node
// n1", not also matching "n10") should build prefix with Join.
func (t *Txn) PrefixScan(dbi DBI, prefix []byte, fn func(key, value []byte) error) error {
	full := rawKey(dbi, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		key := bytes.TrimPrefix(item.KeyCopy(nil), []byte{byte(dbi)})
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

// PrefixIter is PrefixScan's zero-copy sibling: the key and value
// slices passed to fn are borrowed from the iterator's mapped memory
// and valid only until fn returns. Value prefetching is disabled so
// iterating a large adjacency run performs no allocation per entry
// beyond the iterator itself.
func (t *Txn) PrefixIter(dbi DBI, prefix []byte, fn func(key, value []byte) error) error {
	full := rawKey(dbi, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	opts.PrefetchValues = false
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		key := item.Key()[1:] // strip the DBI tag, no copy
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

// CountPrefix returns the number of keys in dbi matching prefix,
// without materializing values.
func (t *Txn) CountPrefix(dbi DBI, prefix []byte) (int, error) {
	full := rawKey(dbi, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	opts.PrefetchValues = false
	it := t.txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		n++
	}
	return n, nil
}
