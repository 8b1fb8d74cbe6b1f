package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// reedSolomonScheme wraps a klauspost/reedsolomon Encoder, which already
// implements Scheme's Encode(shards)/Reconstruct(shards) shape directly.
type reedSolomonScheme struct {
	enc reedsolomon.Encoder
}

// NewReedSolomonScheme returns a Scheme backed by a systematic Reed-Solomon
// code over numData data shards and numParity parity shards, tolerating up
// to numParity missing shards per group.
func NewReedSolomonScheme(numData, numParity int) (*reedSolomonScheme, error) {
	enc, err := reedsolomon.New(numData, numParity)
	if err != nil {
		return nil, fmt.Errorf("fec: NewReedSolomonScheme: %w", err)
	}
	return &reedSolomonScheme{enc: enc}, nil
}

func (s *reedSolomonScheme) Encode(shards [][]byte) error {
	return s.enc.Encode(shards)
}

func (s *reedSolomonScheme) Reconstruct(shards [][]byte) error {
	return s.enc.ReconstructData(shards)
}
