package platform

import (
	"errors"
	"fmt"

	"github.com/vocdoni/blindvote/accumulator"
	"github.com/vocdoni/blindvote/crypto/ecc/bls12381"
)

var (
	// ErrNotAMember is returned when a membership proof does not lead from
	// the voter public key to a known root.
	ErrNotAMember = fmt.Errorf("not a member")
	// ErrAlreadyAuthorized is returned when the blinded ballot (or, with
	// the per-voter guard, the voter) was already authorized.
	ErrAlreadyAuthorized = fmt.Errorf("already authorized")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state of the election.
	ErrInvalidState = fmt.Errorf("invalid state")
	// ErrInvalidVoterSignature is returned when a signed request is
	// required and the signature does not match the voter public key.
	ErrInvalidVoterSignature = fmt.Errorf("invalid voter signature")
	// ErrBallotNotAuthorized is returned when looking up a blinded ballot
	// the authority never signed.
	ErrBallotNotAuthorized = fmt.Errorf("ballot not authorized")
	// ErrElectionNotFound is returned by the Registry for unknown IDs.
	ErrElectionNotFound = fmt.Errorf("election not found")
)

// Reason is the wire form of an authorization rejection.
type Reason string

const (
	ReasonNotAMember        Reason = "NotAMember"
	ReasonAlreadyAuthorized Reason = "AlreadyAuthorized"
	ReasonInvalidProofShape Reason = "InvalidProofShape"
	ReasonInvalidEncoding   Reason = "InvalidEncoding"
	ReasonInvalidSignature  Reason = "InvalidSignature"
	ReasonInvalidState      Reason = "InvalidState"
	ReasonInternal          Reason = "Internal"
)

// ReasonFromError maps an AuthorizeVote error to its rejection reason. It
// returns the empty reason for a nil error.
func ReasonFromError(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAMember):
		return ReasonNotAMember
	case errors.Is(err, ErrAlreadyAuthorized):
		return ReasonAlreadyAuthorized
	case errors.Is(err, accumulator.ErrInvalidProofShape):
		return ReasonInvalidProofShape
	case errors.Is(err, bls12381.ErrInvalidEncoding):
		return ReasonInvalidEncoding
	case errors.Is(err, ErrInvalidVoterSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrInvalidState):
		return ReasonInvalidState
	default:
		return ReasonInternal
	}
}
