package storage

import "github.com/vocdoni/blindvote/types"

// AuthorizationRecord is stored for every blinded ballot the authority
// signed. Voter is only set when the per-voter guard is enabled.
type AuthorizationRecord struct {
	Voter     types.HexBytes `json:"voter,omitempty" cbor:"0,keyasint,omitempty"`
	Timestamp int64          `json:"timestamp" cbor:"1,keyasint"`
}

// BallotRecord is a submitted ballot: the unblinded signature as sent by
// the voter.
type BallotRecord struct {
	Seq       uint64         `json:"seq" cbor:"0,keyasint"`
	Signature types.HexBytes `json:"signature" cbor:"1,keyasint"`
	Timestamp int64          `json:"timestamp" cbor:"2,keyasint"`
}
