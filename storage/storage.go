/*
Package storage keeps the ballot box of an election on top of a db.Database.

# Storage Organization

  - ab/ : blinded ballot bytes → AuthorizationRecord (ballots the authority
    already signed)
  - av/ : voter public key → blinded ballot bytes (only with the per-voter
    guard)
  - sb/ : big-endian sequence number → BallotRecord (submitted ballots, in
    submission order)
  - sq  : next submission sequence number

Keys are the exact encoded bytes; two different encodings of the same point
are two different keys.
*/
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/blindvote/db"
	"github.com/vocdoni/blindvote/log"
)

var (
	// ErrKeyAlreadyExists is returned when a blinded ballot, or the voter
	// that asked for it, was already authorized.
	ErrKeyAlreadyExists = errors.New("key already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	authorizedPrefix      = []byte("ab/")
	authorizedVoterPrefix = []byte("av/")
	ballotPrefix          = []byte("sb/")
	ballotSeqKey          = []byte("sq")

	// maxCommitAttempts bounds the retries of a write transaction that
	// lost a race against a concurrent writer.
	maxCommitAttempts = 8
)

// Storage is the ballot box of a single election.
type Storage struct {
	db db.Database
	// ballotLock serializes submissions so the sequence counter never
	// needs a retry.
	ballotLock sync.Mutex
}

// New wraps database as a ballot box.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Errorw(err, "failed to close storage")
	}
}

func prefixedKey(prefix, key []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(key))
	k = append(k, prefix...)
	return append(k, key...)
}

// MarkAuthorized atomically records blinded as authorized. It returns
// ErrKeyAlreadyExists if the ballot was authorized before, or if voter is
// not nil and that voter already holds an authorization. Exactly one of
// several concurrent calls with the same ballot succeeds.
func (s *Storage) MarkAuthorized(blinded, voter []byte) error {
	rec := &AuthorizationRecord{Voter: voter, Timestamp: time.Now().Unix()}
	value, err := EncodeArtifact(rec)
	if err != nil {
		return fmt.Errorf("encode authorization record: %w", err)
	}
	for range maxCommitAttempts {
		err = s.markAuthorized(blinded, voter, value)
		if !errors.Is(err, db.ErrConflict) {
			return err
		}
		log.Debugw("authorization commit conflict, retrying", "ballot", fmt.Sprintf("%x", blinded[:min(8, len(blinded))]))
	}
	return fmt.Errorf("mark authorized: %w", err)
}

func (s *Storage) markAuthorized(blinded, voter, value []byte) error {
	wtx := s.db.WriteTx()
	defer wtx.Discard()

	ballotKey := prefixedKey(authorizedPrefix, blinded)
	if _, err := wtx.Get(ballotKey); err == nil {
		return fmt.Errorf("ballot: %w", ErrKeyAlreadyExists)
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}
	if voter != nil {
		voterKey := prefixedKey(authorizedVoterPrefix, voter)
		if _, err := wtx.Get(voterKey); err == nil {
			return fmt.Errorf("voter: %w", ErrKeyAlreadyExists)
		} else if !errors.Is(err, db.ErrKeyNotFound) {
			return err
		}
		if err := wtx.Set(voterKey, blinded); err != nil {
			return err
		}
	}
	if err := wtx.Set(ballotKey, value); err != nil {
		return err
	}
	return wtx.Commit()
}

// IsAuthorized reports whether blinded was already authorized.
func (s *Storage) IsAuthorized(blinded []byte) (bool, error) {
	_, err := s.db.Get(prefixedKey(authorizedPrefix, blinded))
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Authorization returns the record stored for blinded.
func (s *Storage) Authorization(blinded []byte) (*AuthorizationRecord, error) {
	data, err := s.db.Get(prefixedKey(authorizedPrefix, blinded))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := &AuthorizationRecord{}
	if err := DecodeArtifact(data, rec); err != nil {
		return nil, fmt.Errorf("decode authorization record: %w", err)
	}
	return rec, nil
}

// CountAuthorized returns the number of authorized blinded ballots.
func (s *Storage) CountAuthorized() (int, error) {
	return s.count(authorizedPrefix)
}

// AddBallot appends an unblinded signature to the ballot box and returns
// its sequence number. The signature is stored as given.
func (s *Storage) AddBallot(signature []byte) (uint64, error) {
	s.ballotLock.Lock()
	defer s.ballotLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()

	var seq uint64
	if data, err := wtx.Get(ballotSeqKey); err == nil {
		seq = binary.BigEndian.Uint64(data)
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return 0, fmt.Errorf("read ballot sequence: %w", err)
	}
	value, err := EncodeArtifact(&BallotRecord{
		Seq:       seq,
		Signature: signature,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode ballot record: %w", err)
	}
	if err := wtx.Set(prefixedKey(ballotPrefix, seqBytes(seq)), value); err != nil {
		return 0, err
	}
	if err := wtx.Set(ballotSeqKey, seqBytes(seq+1)); err != nil {
		return 0, err
	}
	if err := wtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ballot: %w", err)
	}
	return seq, nil
}

// Ballots returns every submitted ballot in submission order.
func (s *Storage) Ballots() ([]*BallotRecord, error) {
	var (
		ballots []*BallotRecord
		decErr  error
	)
	if err := s.db.Iterate(ballotPrefix, func(_, v []byte) bool {
		rec := &BallotRecord{}
		if decErr = DecodeArtifact(v, rec); decErr != nil {
			return false
		}
		ballots = append(ballots, rec)
		return true
	}); err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, fmt.Errorf("decode ballot record: %w", decErr)
	}
	return ballots, nil
}

// CountBallots returns the number of submitted ballots.
func (s *Storage) CountBallots() (int, error) {
	return s.count(ballotPrefix)
}

// Reset deletes every record of the ballot box.
func (s *Storage) Reset() error {
	s.ballotLock.Lock()
	defer s.ballotLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	var keys [][]byte
	for _, prefix := range [][]byte{authorizedPrefix, authorizedVoterPrefix, ballotPrefix, ballotSeqKey} {
		if err := wtx.Iterate(prefix, func(k, _ []byte) bool {
			keys = append(keys, append([]byte(nil), k...))
			return true
		}); err != nil {
			return err
		}
	}
	for _, k := range keys {
		if err := wtx.Delete(k); err != nil {
			return err
		}
	}
	return wtx.Commit()
}

func (s *Storage) count(prefix []byte) (int, error) {
	n := 0
	err := s.db.Iterate(prefix, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

func seqBytes(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}
