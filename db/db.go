// Package db defines the key-value store used by the voting platform to keep
// its ballot box. Keys are ordered byte strings and writes are grouped in
// optimistic transactions that fail with ErrConflict when any key they read
// changed before the commit.
package db

import "fmt"

var (
	// ErrKeyNotFound is returned when the key is absent.
	ErrKeyNotFound = fmt.Errorf("key not found")
	// ErrConflict is returned by Commit when a concurrent transaction
	// modified a key read or written by this one.
	ErrConflict = fmt.Errorf("transaction conflict")
	// ErrTxDone is returned when a transaction is used after Commit or
	// Discard.
	ErrTxDone = fmt.Errorf("transaction already committed or discarded")
)

// Options configures a Database. In-memory stores ignore them.
type Options struct {
	Path string
}

// Reader is the read side shared by databases and transactions.
type Reader interface {
	// Get returns a copy of the value stored under key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key with the given prefix in
	// ascending key order until callback returns false.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// Database is a key-value store with optimistic write transactions.
type Database interface {
	Reader
	// WriteTx opens a new write transaction.
	WriteTx() WriteTx
	Close() error
}

// WriteTx buffers writes until Commit. Reads see the pending writes of the
// same transaction.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Commit applies every pending write atomically.
	Commit() error
	// Discard drops the pending writes. It is safe to call after Commit.
	Discard()
}
