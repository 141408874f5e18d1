// Package voter implements the voter side of an election: an identity key
// whose public half is registered in the accumulator, and the local
// blinding and unblinding of ballots. Blinding factors never leave this
// package.
package voter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/blindvote/accumulator"
	"github.com/vocdoni/blindvote/crypto/blindsig"
	"github.com/vocdoni/blindvote/crypto/signatures/ethereum"
	"github.com/vocdoni/blindvote/platform"
	"github.com/vocdoni/blindvote/types"
)

// Voter is an identity able to take part in elections.
type Voter struct {
	signer *ethereum.Signer
}

// New generates a voter with a fresh secp256k1 key.
func New() (*Voter, error) {
	signer, err := ethereum.NewSigner()
	if err != nil {
		return nil, fmt.Errorf("could not generate voter key: %w", err)
	}
	return &Voter{signer: signer}, nil
}

// FromHex loads a voter from a hex encoded private key.
func FromHex(privKey string) (*Voter, error) {
	signer, err := ethereum.NewSignerFromHex(privKey)
	if err != nil {
		return nil, fmt.Errorf("invalid voter key: %w", err)
	}
	return &Voter{signer: signer}, nil
}

// PublicKey returns the compressed public key registered as the voter leaf.
func (v *Voter) PublicKey() types.HexBytes {
	return v.signer.CompressedPublicKey()
}

// Address returns the Ethereum address of the voter, used to identify it
// in logs without exposing the leaf preimage.
func (v *Voter) Address() common.Address {
	return v.signer.Address()
}

// Ballot is a blinded ballot waiting for the authority signature.
type Ballot struct {
	plaintext []byte
	blinded   types.HexBytes
	factor    *blindsig.BlindingFactor
}

// NewBallot blinds plaintext with a fresh blinding factor.
func NewBallot(plaintext []byte) (*Ballot, error) {
	blinded, factor, err := blindsig.Blind(plaintext)
	if err != nil {
		return nil, fmt.Errorf("could not blind ballot: %w", err)
	}
	return &Ballot{plaintext: plaintext, blinded: blinded, factor: factor}, nil
}

// Blinded returns the blinded point sent to the authority.
func (b *Ballot) Blinded() types.HexBytes {
	return b.blinded
}

// Request builds the signed authorization request for this ballot.
func (v *Voter) Request(b *Ballot, proof *accumulator.Proof) (*platform.AuthorizationRequest, error) {
	sig, err := v.signer.Sign(b.blinded)
	if err != nil {
		return nil, err
	}
	return &platform.AuthorizationRequest{
		BlindedBallot: b.blinded,
		PublicKey:     v.PublicKey(),
		Proof:         proof,
		Signature:     sig,
	}, nil
}

// Unblind turns the signed blinded ballot into the authority signature of
// the plaintext and checks it before returning it.
func (b *Ballot) Unblind(vk *blindsig.VerifyKey, signedBlinded []byte) (types.HexBytes, error) {
	sig, err := blindsig.Unblind(vk.P, b.factor, signedBlinded)
	if err != nil {
		return nil, err
	}
	if !blindsig.Verify(vk.G, b.plaintext, sig) {
		return nil, fmt.Errorf("authority returned a signature that does not verify")
	}
	return sig, nil
}

// Vote runs the whole voter protocol against p: fetch the membership proof
// of the leaf at index, obtain a blind signature over plaintext and submit
// the unblinded signature.
func (v *Voter) Vote(p *platform.VotingPlatform, index uint64, plaintext []byte) error {
	proof, err := p.Proof(index)
	if err != nil {
		return fmt.Errorf("could not get membership proof: %w", err)
	}
	vk, err := p.VerifyKey()
	if err != nil {
		return err
	}
	ballot, err := NewBallot(plaintext)
	if err != nil {
		return err
	}
	req, err := v.Request(ballot, proof)
	if err != nil {
		return err
	}
	signed, err := p.AuthorizeSignedVote(req.BlindedBallot, req.PublicKey, req.Proof, req.Signature)
	if err != nil {
		return fmt.Errorf("authorization of %s failed: %w", v.Address().Hex(), err)
	}
	sig, err := ballot.Unblind(vk, signed)
	if err != nil {
		return err
	}
	return p.SubmitVote(sig)
}
