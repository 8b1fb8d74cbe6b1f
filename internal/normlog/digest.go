package normlog

import "golang.org/x/crypto/blake2b"

// SegmentDigest returns a short content digest for seg, used purely as a
// debug/identity value in traced events and test assertions. It is not an
// authentication tag: NACK/advert messages carry no cryptographic
// protection, by design (see spec Non-goals).
func SegmentDigest(seg []byte) [16]byte {
	full := blake2b.Sum256(seg)
	var short [16]byte
	copy(short[:], full[:16])
	return short
}
