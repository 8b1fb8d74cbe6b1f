// Package fec implements the parity codec the block engine treats as an
// external collaborator: given a block's data segments it fills in parity
// segments, and given any numData-sized subset of data+parity segments it
// reconstructs whatever data segments are missing.
package fec

// Scheme generates and recovers parity shards for a fixed-size group of
// equally sized byte shards, shards[0:numData) holding data and
// shards[numData:] holding parity. It is the shape klauspost/reedsolomon's
// Encoder already exposes, so ReedSolomon wraps one directly; XOR
// implements the same shape for the single-parity-shard special case.
type Scheme interface {
	// Encode computes parity shards from the populated data shards,
	// writing into shards[numData:].
	Encode(shards [][]byte) error
	// Reconstruct fills in nil data entries of shards from the non-nil
	// ones. The Reed-Solomon scheme leaves nil parity entries nil; the XOR
	// scheme recovers a single missing entry of either kind.
	Reconstruct(shards [][]byte) error
}

// NewScheme builds a Scheme for the given parity policy, numData data
// shards, and numParity parity shards.
func NewScheme(id SchemeID, numData, numParity int) (Scheme, error) {
	switch id {
	case SchemeXOR:
		return NewXORScheme(numData, numParity)
	case SchemeReedSolomon:
		return NewReedSolomonScheme(numData, numParity)
	default:
		return nil, errUnknownScheme(id)
	}
}

// SchemeID names a parity policy, mirroring protocol.ParitySchemeID at the
// codec boundary so this package does not need to import internal/protocol
// just for an enum.
type SchemeID byte

const (
	SchemeXOR SchemeID = iota
	SchemeReedSolomon
)

type errUnknownScheme SchemeID

func (e errUnknownScheme) Error() string {
	return "fec: unknown scheme id"
}
