// Package ethereum signs and verifies voter messages with secp256k1 keys
// using the Ethereum signed message format.
package ethereum

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/blindvote/types"
)

const (
	// SignatureLength is the size of an ECDSA signature in bytes
	SignatureLength = ethcrypto.SignatureLength
	// CompressedPubKeyLength is the size of a compressed public key
	CompressedPubKeyLength = 33
	// SigningPrefix is the prefix added when hashing Ethereum messages
	SigningPrefix = "\u0019Ethereum Signed Message:\n"
)

// Signer represents an ECDSA private key for signing Ethereum messages. The
// message is hashed (keccak256) with the Ethereum Signed Message prefix and
// the hash is signed.
type Signer ecdsa.PrivateKey

// NewSigner creates a new random signer.
func NewSigner() (*Signer, error) {
	s, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromHex creates a signer from a hex-encoded private key.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	s, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromSeed derives a signer from the keccak256 hash of seed, so any
// seed length works.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	s, err := ethcrypto.ToECDSA(ethcrypto.Keccak256(seed))
	if err != nil {
		return nil, fmt.Errorf("could not derive key: %w", err)
	}
	return (*Signer)(s), nil
}

// Address returns the Ethereum address derived from the public key of the signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// CompressedPublicKey returns the 33 byte compressed public key.
func (s *Signer) CompressedPublicKey() types.HexBytes {
	return ethcrypto.CompressPubkey(&s.PublicKey)
}

// HexPrivateKey returns the hex-encoded private key.
func (s *Signer) HexPrivateKey() types.HexBytes {
	return ethcrypto.FromECDSA((*ecdsa.PrivateKey)(s))
}

// Sign signs msg and returns the 65 byte [R || S || V] signature.
func (s *Signer) Sign(msg []byte) (types.HexBytes, error) {
	sig, err := ethcrypto.Sign(HashMessage(msg), (*ecdsa.PrivateKey)(s))
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	return sig, nil
}

// HashMessage performs a keccak256 hash over the data adding Ethereum Message
// prefix.
func HashMessage(data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%d%s", SigningPrefix, len(data), data)
	return ethcrypto.Keccak256(buf.Bytes())
}

// normalize accepts the 27/28 recovery ids used by wallets.
func normalize(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature has %d bytes, want %d", len(sig), SignatureLength)
	}
	if sig[64] < 27 {
		return sig, nil
	}
	out := bytes.Clone(sig)
	out[64] -= 27
	return out, nil
}

// RecoverPublicKey returns the compressed public key that produced sig over
// msg.
func RecoverPublicKey(msg, sig []byte) (types.HexBytes, error) {
	sig, err := normalize(sig)
	if err != nil {
		return nil, err
	}
	pub, err := ethcrypto.SigToPub(HashMessage(msg), sig)
	if err != nil {
		return nil, fmt.Errorf("could not recover public key: %w", err)
	}
	return ethcrypto.CompressPubkey(pub), nil
}

// VerifyCompressed reports whether sig is a signature of msg by the owner of
// the compressed public key.
func VerifyCompressed(msg, sig, compressedPubKey []byte) bool {
	if len(compressedPubKey) != CompressedPubKeyLength {
		return false
	}
	pub, err := RecoverPublicKey(msg, sig)
	if err != nil {
		return false
	}
	return bytes.Equal(pub, compressedPubKey)
}

// AddrFromSignature recovers the Ethereum address that created the signature
// of a message.
func AddrFromSignature(msg, sig []byte) (common.Address, error) {
	compressed, err := RecoverPublicKey(msg, sig)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := ethcrypto.DecompressPubkey(compressed)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
