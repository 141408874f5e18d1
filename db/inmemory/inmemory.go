// Package inmemory implements db.Database on top of a Go map guarded by a
// mutex. Every key carries the version of its last write so that commits
// can detect conflicting transactions.
package inmemory

import (
	"bytes"
	"slices"
	"sync"

	"github.com/vocdoni/blindvote/db"
)

type record struct {
	value   []byte
	version uint64
	removed bool
}

// Database is an ephemeral db.Database.
type Database struct {
	mu      sync.RWMutex
	records map[string]record
	version uint64
	closed  bool
}

var _ db.Database = (*Database)(nil)

// New returns an empty in-memory database. Options are ignored.
func New(_ db.Options) (*Database, error) {
	return &Database{records: make(map[string]record)}, nil
}

// Close releases the stored data. The database can not be used afterwards.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = make(map[string]record)
	d.closed = true
	return nil
}

// Get implements db.Reader.
func (d *Database) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[string(key)]
	if !ok || rec.removed {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(rec.value), nil
}

// Iterate implements db.Reader. The callback runs over a snapshot, so it
// may open transactions on the same database.
func (d *Database) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	snapshot, _ := d.snapshot(prefix)
	walk(snapshot, callback)
	return nil
}

// Len returns the number of live keys with the given prefix.
func (d *Database) Len(prefix []byte) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for k, rec := range d.records {
		if !rec.removed && bytes.HasPrefix([]byte(k), prefix) {
			n++
		}
	}
	return n
}

// WriteTx implements db.Database.
func (d *Database) WriteTx() db.WriteTx {
	return &WriteTx{
		db:      d,
		pending: make(map[string][]byte),
		seen:    make(map[string]uint64),
	}
}

func (d *Database) snapshot(prefix []byte) (map[string][]byte, map[string]uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make(map[string][]byte)
	versions := make(map[string]uint64)
	for k, rec := range d.records {
		if rec.removed || !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		values[k] = bytes.Clone(rec.value)
		versions[k] = rec.version
	}
	return values, versions
}

func (d *Database) versionOf(key string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.records[key].version
}

// WriteTx is an optimistic transaction over Database. A nil pending value
// marks a deletion.
type WriteTx struct {
	db      *Database
	pending map[string][]byte
	seen    map[string]uint64
	done    bool
}

var _ db.WriteTx = (*WriteTx)(nil)

// observe remembers the first version seen for key.
func (tx *WriteTx) observe(key string, version uint64) {
	if _, ok := tx.seen[key]; !ok {
		tx.seen[key] = version
	}
}

// Get implements db.Reader.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if tx.done {
		return nil, db.ErrTxDone
	}
	k := string(key)
	if v, ok := tx.pending[k]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(v), nil
	}
	tx.db.mu.RLock()
	rec, ok := tx.db.records[k]
	tx.db.mu.RUnlock()
	tx.observe(k, rec.version)
	if !ok || rec.removed {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(rec.value), nil
}

// Iterate implements db.Reader, merging the pending writes over the
// committed data.
func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	if tx.done {
		return db.ErrTxDone
	}
	values, versions := tx.db.snapshot(prefix)
	for k, ver := range versions {
		tx.observe(k, ver)
	}
	for k, v := range tx.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(values, k)
		} else {
			values[k] = bytes.Clone(v)
		}
	}
	walk(values, callback)
	return nil
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return tx.stage(key, bytes.Clone(value))
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(key []byte) error {
	return tx.stage(key, nil)
}

func (tx *WriteTx) stage(key, value []byte) error {
	if tx.done {
		return db.ErrTxDone
	}
	k := string(key)
	if _, ok := tx.seen[k]; !ok {
		tx.observe(k, tx.db.versionOf(k))
	}
	tx.pending[k] = value
	return nil
}

// Commit implements db.WriteTx. It returns db.ErrConflict, applying
// nothing, if any observed key changed since it was first observed.
func (tx *WriteTx) Commit() error {
	if tx.done {
		return db.ErrTxDone
	}
	d := tx.db
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return db.ErrTxDone
	}
	for k, ver := range tx.seen {
		if d.records[k].version != ver {
			return db.ErrConflict
		}
	}
	for k, v := range tx.pending {
		d.version++
		d.records[k] = record{value: v, version: d.version, removed: v == nil}
	}
	tx.done = true
	return nil
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	tx.pending = nil
	tx.seen = nil
	tx.done = true
}

func walk(entries map[string][]byte, callback func(key, value []byte) bool) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k), entries[k]) {
			return
		}
	}
}
