// Package bls12381 wraps the gnark-crypto BLS12-381 implementation with the
// fixed-width encodings and the few group operations needed by the blind
// signature scheme. Points are always encoded compressed: 48 bytes in G1 and
// 96 bytes in G2. Scalars are 32 byte big-endian canonical field elements.
package bls12381

import (
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// CurveType is the identifier for the BLS12-381 curve implementation
const CurveType = "bls12_381"

const (
	// G1Size is the length of a compressed G1 point.
	G1Size = bls12381.SizeOfG1AffineCompressed
	// G2Size is the length of a compressed G2 point.
	G2Size = bls12381.SizeOfG2AffineCompressed
	// ScalarSize is the length of an encoded scalar.
	ScalarSize = fr.Bytes
)

// DefaultDST is the hash-to-curve domain separation tag of the BLS signature
// ciphersuite with signatures in G2.
var DefaultDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// ErrInvalidEncoding is returned when bytes do not decode to a canonical
// scalar or to a point on the curve and in the prime order subgroup.
var ErrInvalidEncoding = fmt.Errorf("invalid encoding")

var (
	g1Gen bls12381.G1Affine
	g2Gen bls12381.G2Affine
)

func init() {
	_, _, g1Gen, g2Gen = bls12381.Generators()
}

// Scalar is an element of the scalar field.
type Scalar struct {
	inner fr.Element
}

// RandomScalar draws a uniformly random non-zero scalar.
func RandomScalar() (*Scalar, error) {
	s := &Scalar{}
	for s.inner.IsZero() {
		if _, err := s.inner.SetRandom(); err != nil {
			return nil, fmt.Errorf("could not generate random scalar: %w", err)
		}
	}
	return s, nil
}

// ScalarFromBytes decodes a 32 byte big-endian scalar. Values equal to or
// above the field modulus are rejected.
func ScalarFromBytes(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, fmt.Errorf("%w: scalar has %d bytes, want %d", ErrInvalidEncoding, len(b), ScalarSize)
	}
	s := &Scalar{}
	if err := s.inner.SetBytesCanonical(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return s, nil
}

// Bytes returns the 32 byte big-endian encoding of the scalar.
func (s *Scalar) Bytes() []byte {
	b := s.inner.Bytes()
	return b[:]
}

// BigInt returns the scalar as a big.Int.
func (s *Scalar) BigInt() *big.Int {
	return s.inner.BigInt(new(big.Int))
}

// Equal reports whether both scalars are the same field element.
func (s *Scalar) Equal(o *Scalar) bool {
	return s.inner.Equal(&o.inner)
}

// G1 is a point of the first source group.
type G1 struct {
	inner bls12381.G1Affine
}

// G1Generator returns the standard generator of G1.
func G1Generator() *G1 {
	return &G1{inner: g1Gen}
}

// G1FromBytes decodes a compressed G1 point, checking it lies on the curve
// and in the prime order subgroup.
func G1FromBytes(b []byte) (*G1, error) {
	if len(b) != G1Size {
		return nil, fmt.Errorf("%w: G1 point has %d bytes, want %d", ErrInvalidEncoding, len(b), G1Size)
	}
	g := &G1{}
	if _, err := g.inner.SetBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return g, nil
}

// ScalarBaseMult sets g = s * G and returns g.
func (g *G1) ScalarBaseMult(s *Scalar) *G1 {
	g.inner.ScalarMultiplication(&g1Gen, s.BigInt())
	return g
}

// Neg sets g = -a and returns g.
func (g *G1) Neg(a *G1) *G1 {
	g.inner.Neg(&a.inner)
	return g
}

// Bytes returns the compressed encoding of the point.
func (g *G1) Bytes() []byte {
	b := g.inner.Bytes()
	return b[:]
}

// Equal checks if two points are equal
func (g *G1) Equal(a *G1) bool {
	return g.inner.Equal(&a.inner)
}

// String returns the hex encoding of the compressed point.
func (g *G1) String() string {
	return fmt.Sprintf("%x", g.Bytes())
}

// G2 is a point of the second source group.
type G2 struct {
	inner bls12381.G2Affine
}

// G2Generator returns the standard generator of G2.
func G2Generator() *G2 {
	return &G2{inner: g2Gen}
}

// G2FromBytes decodes a compressed G2 point, checking it lies on the curve
// and in the prime order subgroup.
func G2FromBytes(b []byte) (*G2, error) {
	if len(b) != G2Size {
		return nil, fmt.Errorf("%w: G2 point has %d bytes, want %d", ErrInvalidEncoding, len(b), G2Size)
	}
	g := &G2{}
	if _, err := g.inner.SetBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return g, nil
}

// HashToG2 maps msg to a G2 point (RFC 9380, SSWU, random oracle) under
// the given domain separation tag.
func HashToG2(msg, dst []byte) (*G2, error) {
	p, err := bls12381.HashToG2(msg, dst)
	if err != nil {
		return nil, fmt.Errorf("could not hash to G2: %w", err)
	}
	return &G2{inner: p}, nil
}

// Add sets g = a + b and returns g.
func (g *G2) Add(a, b *G2) *G2 {
	var ja, jb bls12381.G2Jac
	ja.FromAffine(&a.inner)
	jb.FromAffine(&b.inner)
	ja.AddAssign(&jb)
	g.inner.FromJacobian(&ja)
	return g
}

// Sub sets g = a - b and returns g.
func (g *G2) Sub(a, b *G2) *G2 {
	var ja, jb bls12381.G2Jac
	ja.FromAffine(&a.inner)
	jb.FromAffine(&b.inner)
	ja.SubAssign(&jb)
	g.inner.FromJacobian(&ja)
	return g
}

// ScalarMult sets g = s * a and returns g.
func (g *G2) ScalarMult(a *G2, s *Scalar) *G2 {
	g.inner.ScalarMultiplication(&a.inner, s.BigInt())
	return g
}

// ScalarBaseMult sets g = s * P, P being the G2 generator, and returns g.
func (g *G2) ScalarBaseMult(s *Scalar) *G2 {
	g.inner.ScalarMultiplication(&g2Gen, s.BigInt())
	return g
}

// IsInfinity reports whether g is the identity element.
func (g *G2) IsInfinity() bool {
	return g.inner.IsInfinity()
}

// Bytes returns the compressed encoding of the point.
func (g *G2) Bytes() []byte {
	b := g.inner.Bytes()
	return b[:]
}

// Equal checks if two points are equal
func (g *G2) Equal(a *G2) bool {
	return g.inner.Equal(&a.inner)
}

// String returns the hex encoding of the compressed point.
func (g *G2) String() string {
	return fmt.Sprintf("%x", g.Bytes())
}

// PairingEquals reports whether e(a1, a2) == e(b1, b2). It is evaluated as
// the single product check e(-a1, a2) * e(b1, b2) == 1.
func PairingEquals(a1 *G1, a2 *G2, b1 *G1, b2 *G2) (bool, error) {
	var negA1 G1
	negA1.Neg(a1)
	return bls12381.PairingCheck(
		[]bls12381.G1Affine{negA1.inner, b1.inner},
		[]bls12381.G2Affine{a2.inner, b2.inner},
	)
}

