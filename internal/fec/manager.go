package fec

import (
	"fmt"

	"github.com/normkit/norm/internal/block"
)

// BlockCodec drives a Scheme against a block.Block's own segment table,
// rather than maintaining a second parallel id-to-payload map the way the
// map-based block tracker this package used to carry did: the block engine
// already owns that bookkeeping, so the codec only ever touches segments
// through Block.Segment/SetSegment.
type BlockCodec struct {
	scheme    Scheme
	numData   int
	numParity int
}

// NewBlockCodec returns a BlockCodec driving scheme over numData data
// segments and numParity parity segments per block.
func NewBlockCodec(scheme Scheme, numData, numParity int) *BlockCodec {
	return &BlockCodec{scheme: scheme, numData: numData, numParity: numParity}
}

// EncodeBlock computes parity for blk from its currently populated data
// segments, drawing fresh parity buffers from pool and installing them via
// SetSegment. blk must already hold every data segment.
func (c *BlockCodec) EncodeBlock(blk *block.Block, pool *block.SegmentPool) error {
	shards := make([][]byte, c.numData+c.numParity)
	size := 0
	for i := 0; i < c.numData; i++ {
		seg := blk.Segment(i)
		if seg == nil {
			return fmt.Errorf("fec: EncodeBlock: data segment %d missing", i)
		}
		shards[i] = seg
		if len(seg) > size {
			size = len(seg)
		}
	}
	for i := 0; i < c.numParity; i++ {
		seg := blk.Segment(c.numData + i)
		if seg == nil {
			got, ok := pool.Get()
			if !ok {
				return fmt.Errorf("fec: EncodeBlock: parity segment pool exhausted")
			}
			seg = got
			blk.SetSegment(c.numData+i, seg)
		}
		shards[c.numData+i] = seg[:size]
	}
	return c.scheme.Encode(shards)
}

// ReconstructBlock attempts to recover blk's missing data segments from
// whatever data and parity segments it currently holds, installing any
// recovered segments via SetSegment.
func (c *BlockCodec) ReconstructBlock(blk *block.Block) error {
	shards := make([][]byte, c.numData+c.numParity)
	for i := range shards {
		shards[i] = blk.Segment(i)
	}
	if err := c.scheme.Reconstruct(shards); err != nil {
		return fmt.Errorf("fec: ReconstructBlock: %w", err)
	}
	for i := 0; i < c.numData; i++ {
		if blk.Segment(i) == nil && shards[i] != nil {
			blk.SetSegment(i, shards[i])
		}
	}
	return nil
}
