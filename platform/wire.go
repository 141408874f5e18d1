package platform

import (
	"github.com/vocdoni/blindvote/accumulator"
	"github.com/vocdoni/blindvote/types"
)

// AuthorizationRequest is what a voter sends to obtain a signed blinded
// ballot.
//
// Signature is the voter signature over BlindedBallot, only checked when the
// election requires it.
type AuthorizationRequest struct {
	BlindedBallot types.HexBytes     `json:"blindedBallot" cbor:"blindedBallot"`
	PublicKey     types.HexBytes     `json:"publicKey" cbor:"publicKey"`
	Proof         *accumulator.Proof `json:"proof" cbor:"proof"`
	Signature     types.HexBytes     `json:"signature,omitempty" cbor:"signature,omitempty"`
}

// AuthorizationResponse carries either the signed blinded ballot or the
// reason of the rejection.
type AuthorizationResponse struct {
	SignedBlindedBallot types.HexBytes `json:"signedBlindedBallot,omitempty" cbor:"signedBlindedBallot,omitempty"`
	Reason              Reason         `json:"reason,omitempty" cbor:"reason,omitempty"`
}

// Authorized reports whether the request was accepted.
func (r *AuthorizationResponse) Authorized() bool {
	return r.Reason == "" && len(r.SignedBlindedBallot) > 0
}
