package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/blindvote/log"
)

// ArtifactEncoding selects how records are serialized.
type ArtifactEncoding int

const (
	// ArtifactEncodingCBOR is the deterministic CBOR encoding used for
	// everything stored in the ballot box.
	ArtifactEncodingCBOR ArtifactEncoding = iota
	// ArtifactEncodingJSON is used when records are exported.
	ArtifactEncodingJSON
)

var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("could not build cbor encoding mode: %v", err))
	}
}

// EncodeArtifact encodes a record, CBOR by default. A failing JSON encoding
// falls back to CBOR.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	if len(encoding) == 0 {
		return cborEncMode.Marshal(a)
	}
	switch encoding[0] {
	case ArtifactEncodingCBOR:
		return cborEncMode.Marshal(a)
	case ArtifactEncodingJSON:
		res, err := json.Marshal(a)
		if err != nil {
			log.Warnw("falling back to CBOR encoding", "error", err)
			return cborEncMode.Marshal(a)
		}
		return res, nil
	default:
		return nil, fmt.Errorf("unknown artifact encoding: %d", encoding[0])
	}
}

// DecodeArtifact decodes a record previously produced by EncodeArtifact
// with the same encoding.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	if len(encoding) == 0 {
		return cbor.Unmarshal(data, out)
	}
	switch encoding[0] {
	case ArtifactEncodingCBOR:
		return cbor.Unmarshal(data, out)
	case ArtifactEncodingJSON:
		return json.Unmarshal(data, out)
	default:
		return fmt.Errorf("unknown artifact encoding: %d", encoding[0])
	}
}
