package fec

import "fmt"

// xorScheme implements Scheme for the (numData+1, numData) special case:
// exactly one parity shard, computed as the XOR of every data shard.
type xorScheme struct {
	numData   int
	numParity int
}

// NewXORScheme returns a Scheme computing simple XOR parity. XOR can only
// repair a single missing shard per group, so numParity must be 1.
func NewXORScheme(numData, numParity int) (*xorScheme, error) {
	if numParity != 1 {
		return nil, fmt.Errorf("fec: XOR scheme only supports exactly 1 parity shard, got %d", numParity)
	}
	if numData < 1 {
		return nil, fmt.Errorf("fec: numData (%d) must be positive", numData)
	}
	return &xorScheme{numData: numData, numParity: numParity}, nil
}

func (s *xorScheme) Encode(shards [][]byte) error {
	if len(shards) != s.numData+s.numParity {
		return fmt.Errorf("fec: XOR Encode: expected %d shards, got %d", s.numData+s.numParity, len(shards))
	}
	parity := shards[s.numData]
	if parity == nil {
		return fmt.Errorf("fec: XOR Encode: parity shard must be preallocated")
	}
	clear(parity)
	for i := 0; i < s.numData; i++ {
		xorInto(parity, shards[i])
	}
	return nil
}

func (s *xorScheme) Reconstruct(shards [][]byte) error {
	if len(shards) != s.numData+s.numParity {
		return fmt.Errorf("fec: XOR Reconstruct: expected %d shards, got %d", s.numData+s.numParity, len(shards))
	}
	missing := -1
	missingCount := 0
	for i, shard := range shards {
		if shard == nil {
			missing = i
			missingCount++
		}
	}
	if missingCount == 0 {
		return nil
	}
	if missingCount > 1 {
		return fmt.Errorf("fec: XOR Reconstruct: can recover at most 1 missing shard, got %d", missingCount)
	}

	size := shardSize(shards)
	recovered := make([]byte, size)
	for i, shard := range shards {
		if i == missing {
			continue
		}
		xorInto(recovered, shard)
	}
	shards[missing] = recovered
	return nil
}

func shardSize(shards [][]byte) int {
	for _, s := range shards {
		if s != nil {
			return len(s)
		}
	}
	return 0
}

func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
