// Package platform runs an election that keeps voter eligibility and ballot
// content apart. Voters are committed to a Merkle accumulator; a registered
// voter proves membership and obtains a blind signature over a hidden
// ballot, then submits the unblinded signature anonymously. The tally only
// checks which plaintext each submitted signature belongs to.
package platform

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/blindvote/accumulator"
	"github.com/vocdoni/blindvote/crypto/blindsig"
	"github.com/vocdoni/blindvote/crypto/hash"
	"github.com/vocdoni/blindvote/crypto/signatures/ethereum"
	"github.com/vocdoni/blindvote/db"
	"github.com/vocdoni/blindvote/db/inmemory"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/types"
)

// DefaultRootHistory is the number of accumulator roots accepted in
// membership proofs when Config.RootHistory is not set.
const DefaultRootHistory = 64

// Config holds the tunables of a VotingPlatform.
type Config struct {
	// RootHistory is how many recent roots a membership proof may be
	// anchored to.
	RootHistory int

	// OneAuthorizationPerVoter rejects a second authorization for the same
	// public key even when the blinded ballot differs.
	OneAuthorizationPerVoter bool

	// RequireVoterSignature rejects authorization requests that are not
	// signed with the secp256k1 key whose compressed public key is the
	// registered leaf.
	RequireVoterSignature bool
}

// VotingPlatform owns all the state of one election: the voter
// accumulator, the authority key pair and the ballot box.
type VotingPlatform struct {
	// mu guards state and the election fields below. Operations that only
	// read them take the read lock; the accumulator and the ballot box
	// synchronize their own mutations.
	mu    sync.RWMutex
	cfg   Config
	state State
	// regMu serializes registrations so every intermediate root lands in
	// the root history.
	regMu sync.Mutex

	tree  *accumulator.Tree
	sk    *blindsig.SigningKey
	vk    *blindsig.VerifyKey
	roots *lru.Cache[string, struct{}]
	box   *storage.Storage
}

// New returns an uninitialized platform.
func New(cfg Config) *VotingPlatform {
	if cfg.RootHistory <= 0 {
		cfg.RootHistory = DefaultRootHistory
	}
	return &VotingPlatform{cfg: cfg}
}

// State returns the current state.
func (p *VotingPlatform) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Initialize opens a new election with an accumulator of the given height
// and a fresh authority key pair. It is only allowed from
// StateUninitialized; use Reset to re-arm a finished election.
func (p *VotingPlatform) Initialize(height int, hasher hash.Hasher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateUninitialized {
		return fmt.Errorf("%w: cannot initialize a %s election", ErrInvalidState, p.state)
	}
	tree, err := accumulator.New(height, hasher)
	if err != nil {
		return fmt.Errorf("could not create voter accumulator: %w", err)
	}
	sk, vk, err := blindsig.Setup()
	if err != nil {
		return fmt.Errorf("could not set up authority keys: %w", err)
	}
	roots, err := lru.New[string, struct{}](p.cfg.RootHistory)
	if err != nil {
		return fmt.Errorf("could not create root history: %w", err)
	}
	database, err := inmemory.New(db.Options{})
	if err != nil {
		return fmt.Errorf("could not create ballot box database: %w", err)
	}

	p.tree, p.sk, p.vk, p.roots = tree, sk, vk, roots
	p.box = storage.New(database)
	p.roots.Add(string(tree.Root()), struct{}{})
	p.state = StateOpen
	log.Infow("election opened",
		"height", height,
		"capacity", tree.Capacity(),
		"hasher", hasher.Type(),
		"verifyKeyG", vk.G.String())
	return nil
}

// Reset discards the election and returns the platform to
// StateUninitialized. Keys, voters and ballots are lost.
func (p *VotingPlatform) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.box != nil {
		if err := p.box.Reset(); err != nil {
			log.Errorw(err, "could not wipe ballot box")
		}
		p.box.Close()
	}
	p.tree, p.sk, p.vk, p.roots, p.box = nil, nil, nil, nil, nil
	p.state = StateUninitialized
	log.Infow("election reset")
}

// Close stops accepting registrations, authorizations and ballots.
func (p *VotingPlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateOpen {
		return fmt.Errorf("%w: cannot close a %s election", ErrInvalidState, p.state)
	}
	p.state = StateClosed
	log.Infow("election closed", "voters", p.tree.Len())
	return nil
}

// requireState must be called with p.mu held.
func (p *VotingPlatform) requireState(op string, allowed ...State) error {
	for _, s := range allowed {
		if p.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not allowed in a %s election", ErrInvalidState, op, p.state)
}

// RegisterVoter commits pubKey to the voter accumulator and returns its
// leaf index.
func (p *VotingPlatform) RegisterVoter(pubKey []byte) (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("registration", StateOpen); err != nil {
		return 0, err
	}
	p.regMu.Lock()
	defer p.regMu.Unlock()
	index, err := p.tree.Append(pubKey)
	if err != nil {
		return 0, err
	}
	p.roots.Add(string(p.tree.Root()), struct{}{})
	log.Debugw("voter registered", "index", index, "registered", p.tree.Len())
	return index, nil
}

// RegisteredCount returns the number of registered voters.
func (p *VotingPlatform) RegisteredCount() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.tree == nil {
		return 0
	}
	return p.tree.Len()
}

// Proof returns the membership proof of the voter at index against the
// current root.
func (p *VotingPlatform) Proof(index uint64) (*accumulator.Proof, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("proof", StateOpen, StateClosed); err != nil {
		return nil, err
	}
	return p.tree.Proof(index)
}

// Root returns the current accumulator root.
func (p *VotingPlatform) Root() (types.HexBytes, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("root", StateOpen, StateClosed); err != nil {
		return nil, err
	}
	return p.tree.Root(), nil
}

// VerifyKey returns a copy of the public key of the authority. Voters need
// its G2 half to unblind.
func (p *VotingPlatform) VerifyKey() (*blindsig.VerifyKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("verify key", StateOpen, StateClosed); err != nil {
		return nil, err
	}
	return p.vk.Clone(), nil
}

// Hasher returns the hash function of the voter accumulator.
func (p *VotingPlatform) Hasher() (hash.Hasher, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("hasher", StateOpen, StateClosed); err != nil {
		return nil, err
	}
	return p.tree.Hasher(), nil
}

// AuthorizeVote signs blinded if pubKey is a registered voter, as shown by
// proof, and blinded was never authorized before. Membership is checked
// before the replay set is consulted, and nothing is recorded unless the
// ballot is authorized.
func (p *VotingPlatform) AuthorizeVote(blinded, pubKey []byte, proof *accumulator.Proof) ([]byte, error) {
	return p.AuthorizeSignedVote(blinded, pubKey, proof, nil)
}

// AuthorizeSignedVote is AuthorizeVote with the voter signature over the
// blinded ballot. The signature is only checked, after membership, when
// Config.RequireVoterSignature is set.
//
// The proof may be anchored to the current root or to any of the last
// Config.RootHistory roots. Roots only ever grow by appends, so a voter
// valid under an older root is still registered under the current one.
func (p *VotingPlatform) AuthorizeSignedVote(blinded, pubKey []byte, proof *accumulator.Proof, signature []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("authorization", StateOpen); err != nil {
		return nil, err
	}
	hasher := p.tree.Hasher()
	if err := proof.Validate(p.tree.Height(), hasher.Size()); err != nil {
		return nil, err
	}
	if !p.roots.Contains(string(proof.Root)) {
		return nil, fmt.Errorf("%w: unknown root %s", ErrNotAMember, proof.Root)
	}
	if !accumulator.Verify(hasher, pubKey, proof) {
		return nil, fmt.Errorf("%w: proof does not match public key", ErrNotAMember)
	}
	if p.cfg.RequireVoterSignature && !ethereum.VerifyCompressed(blinded, signature, pubKey) {
		return nil, ErrInvalidVoterSignature
	}
	if known, err := p.box.IsAuthorized(blinded); err != nil {
		return nil, fmt.Errorf("could not read authorizations: %w", err)
	} else if known {
		return nil, fmt.Errorf("%w: ballot seen before", ErrAlreadyAuthorized)
	}

	// Signing has no side effects, so it also serves as the decoding check
	// before anything is recorded.
	signed, err := blindsig.Sign(blinded, p.sk)
	if err != nil {
		return nil, err
	}

	var voter []byte
	if p.cfg.OneAuthorizationPerVoter {
		voter = pubKey
	}
	if err := p.box.MarkAuthorized(blinded, voter); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyAuthorized, err)
		}
		return nil, fmt.Errorf("could not record authorization: %w", err)
	}
	return signed, nil
}

// Authorize is the wire form of AuthorizeVote. Rejections are reported in
// the response reason and logged.
func (p *VotingPlatform) Authorize(req *AuthorizationRequest) *AuthorizationResponse {
	if req == nil {
		return &AuthorizationResponse{Reason: ReasonInvalidProofShape}
	}
	signed, err := p.AuthorizeSignedVote(req.BlindedBallot, req.PublicKey, req.Proof, req.Signature)
	if err != nil {
		reason := ReasonFromError(err)
		log.Warnw("authorization rejected", "reason", string(reason), "error", err.Error())
		return &AuthorizationResponse{Reason: reason}
	}
	log.Infow("ballot authorized")
	return &AuthorizationResponse{SignedBlindedBallot: signed}
}

// SubmitVote adds an unblinded signature to the ballot box. Validity is
// not checked here; invalid ballots are counted as such by Tally.
func (p *VotingPlatform) SubmitVote(signature []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("ballot submission", StateOpen); err != nil {
		return err
	}
	seq, err := p.box.AddBallot(signature)
	if err != nil {
		return fmt.Errorf("could not store ballot: %w", err)
	}
	log.Debugw("ballot submitted", "seq", seq)
	return nil
}

// AuthorizedCount returns the number of blinded ballots signed so far.
func (p *VotingPlatform) AuthorizedCount() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("authorized count", StateOpen, StateClosed); err != nil {
		return 0, err
	}
	return p.box.CountAuthorized()
}

// SubmittedCount returns the number of ballots in the ballot box.
func (p *VotingPlatform) SubmittedCount() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("submitted count", StateOpen, StateClosed); err != nil {
		return 0, err
	}
	return p.box.CountBallots()
}

// Authorization returns the record of a signed blinded ballot, or
// ErrBallotNotAuthorized.
func (p *VotingPlatform) Authorization(blinded []byte) (*storage.AuthorizationRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("authorization lookup", StateOpen, StateClosed); err != nil {
		return nil, err
	}
	rec, err := p.box.Authorization(blinded)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBallotNotAuthorized
	}
	return rec, err
}
