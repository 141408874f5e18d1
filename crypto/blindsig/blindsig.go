// Package blindsig implements a BLS blind signature over BLS12-381.
//
// The authority holds a secret scalar x and publishes G_x = x*G in G1 and
// P_x = x*P in G2. A requester blinds H(m) with a random r as
// B = r*P + H(m), the authority returns x*B, and the requester removes the
// blinding with x*B - r*P_x = x*H(m), which is the plain BLS signature of m
// and verifies with e(G, σ) == e(G_x, H(m)).
package blindsig

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/blindvote/crypto/ecc/bls12381"
	"github.com/vocdoni/blindvote/types"
)

// messagePointCacheSize bounds the number of hashed messages kept in memory.
// Elections hash the same few candidate plaintexts over and over.
const messagePointCacheSize = 256

var messagePoints *lru.Cache[string, bls12381.G2]

func init() {
	var err error
	messagePoints, err = lru.New[string, bls12381.G2](messagePointCacheSize)
	if err != nil {
		panic(fmt.Sprintf("could not create message point cache: %v", err))
	}
}

// SigningKey is the secret scalar of the signing authority.
type SigningKey struct {
	x *bls12381.Scalar
}

// VerifyKey is the public key of the authority in both source groups.
type VerifyKey struct {
	G *bls12381.G1
	P *bls12381.G2
}

// BlindingFactor is the secret scalar r that only the requester knows.
type BlindingFactor struct {
	r *bls12381.Scalar
}

// Setup draws a fresh signing key and derives its verify key.
func Setup() (*SigningKey, *VerifyKey, error) {
	x, err := bls12381.RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	sk := &SigningKey{x: x}
	return sk, sk.VerifyKey(), nil
}

// SigningKeyFromBytes decodes a signing key.
func SigningKeyFromBytes(b []byte) (*SigningKey, error) {
	x, err := bls12381.ScalarFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &SigningKey{x: x}, nil
}

// Bytes returns the encoded secret scalar.
func (sk *SigningKey) Bytes() []byte {
	return sk.x.Bytes()
}

// VerifyKey derives the public key pair (x*G, x*P).
func (sk *SigningKey) VerifyKey() *VerifyKey {
	return &VerifyKey{
		G: new(bls12381.G1).ScalarBaseMult(sk.x),
		P: new(bls12381.G2).ScalarBaseMult(sk.x),
	}
}

// Clone returns a deep copy of the verify key.
func (vk *VerifyKey) Clone() *VerifyKey {
	g, p := *vk.G, *vk.P
	return &VerifyKey{G: &g, P: &p}
}

// verifyKeyJSON is the wire form of a VerifyKey.
type verifyKeyJSON struct {
	G types.HexBytes `json:"g"`
	P types.HexBytes `json:"p"`
}

// MarshalJSON encodes the verify key as compressed hex points.
func (vk *VerifyKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(verifyKeyJSON{G: vk.G.Bytes(), P: vk.P.Bytes()})
}

// UnmarshalJSON decodes and validates both points of the verify key.
func (vk *VerifyKey) UnmarshalJSON(data []byte) error {
	var v verifyKeyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	g, err := bls12381.G1FromBytes(v.G)
	if err != nil {
		return err
	}
	p, err := bls12381.G2FromBytes(v.P)
	if err != nil {
		return err
	}
	vk.G, vk.P = g, p
	return nil
}

// Bytes returns the encoded blinding factor. It must never leave the
// requester.
func (bf *BlindingFactor) Bytes() []byte {
	return bf.r.Bytes()
}

// BlindingFactorFromBytes decodes a blinding factor.
func BlindingFactorFromBytes(b []byte) (*BlindingFactor, error) {
	r, err := bls12381.ScalarFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &BlindingFactor{r: r}, nil
}

// Blind hides msg behind a fresh random blinding factor and returns the
// encoded blinded point r*P + H(msg).
func Blind(msg []byte) ([]byte, *BlindingFactor, error) {
	r, err := bls12381.RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	bf := &BlindingFactor{r: r}
	blinded, err := BlindWithFactor(msg, bf)
	if err != nil {
		return nil, nil, err
	}
	return blinded, bf, nil
}

// BlindWithFactor blinds msg with a caller provided factor.
func BlindWithFactor(msg []byte, bf *BlindingFactor) ([]byte, error) {
	hm, err := hashToPoint(msg)
	if err != nil {
		return nil, err
	}
	rP := new(bls12381.G2).ScalarBaseMult(bf.r)
	return new(bls12381.G2).Add(rP, hm).Bytes(), nil
}

// Sign multiplies the blinded point by the signing key. The signer learns
// neither the message nor the blinding factor.
func Sign(blinded []byte, sk *SigningKey) ([]byte, error) {
	b, err := decodeNonIdentity(blinded)
	if err != nil {
		return nil, fmt.Errorf("blinded point: %w", err)
	}
	return new(bls12381.G2).ScalarMult(b, sk.x).Bytes(), nil
}

// Unblind removes the blinding from a signed blinded point:
// x*B - r*P_x = x*H(m).
func Unblind(vkP *bls12381.G2, bf *BlindingFactor, signed []byte) ([]byte, error) {
	s, err := bls12381.G2FromBytes(signed)
	if err != nil {
		return nil, fmt.Errorf("signed blinded point: %w", err)
	}
	rPx := new(bls12381.G2).ScalarMult(vkP, bf.r)
	return new(bls12381.G2).Sub(s, rPx).Bytes(), nil
}

// SignDirect returns the plain BLS signature x*H(msg).
func SignDirect(msg []byte, sk *SigningKey) ([]byte, error) {
	hm, err := hashToPoint(msg)
	if err != nil {
		return nil, err
	}
	return new(bls12381.G2).ScalarMult(hm, sk.x).Bytes(), nil
}

// Verify checks e(G, sig) == e(G_x, H(msg)). Malformed signatures and the
// identity point never verify.
func Verify(vkG *bls12381.G1, msg, sig []byte) bool {
	s, err := decodeNonIdentity(sig)
	if err != nil {
		return false
	}
	hm, err := hashToPoint(msg)
	if err != nil {
		return false
	}
	ok, err := bls12381.PairingEquals(bls12381.G1Generator(), s, vkG, hm)
	return err == nil && ok
}

// hashToPoint returns H(msg) in G2, served from the cache when possible.
func hashToPoint(msg []byte) (*bls12381.G2, error) {
	if p, ok := messagePoints.Get(string(msg)); ok {
		return &p, nil
	}
	p, err := bls12381.HashToG2(msg, bls12381.DefaultDST)
	if err != nil {
		return nil, err
	}
	messagePoints.Add(string(msg), *p)
	return p, nil
}

func decodeNonIdentity(b []byte) (*bls12381.G2, error) {
	p, err := bls12381.G2FromBytes(b)
	if err != nil {
		return nil, err
	}
	if p.IsInfinity() {
		return nil, fmt.Errorf("%w: identity point", bls12381.ErrInvalidEncoding)
	}
	return p, nil
}
