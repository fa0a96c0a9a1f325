// Package path identifies ordered stop sequences and the segments between
// consecutive stops.
package path

import (
	"crypto/sha1" //nolint:gosec // identity hash, must stay bit-compatible with stored ids
	"encoding/hex"
	"errors"
	"fmt"

	"transit-core/internal/area"
)

var ErrBrokenChain = errors.New("stop pairs are not chained")

// Pair is a directed edge between two consecutive stops.
type Pair struct {
	From uint16
	To   uint16
}

// Fingerprint returns the lowercase hex SHA-1 of the path encoding:
//
//	[class byte, 0x00, 0x00] ++ hi(s0) lo(s0) 0x00 hi(s1) lo(s1) ... hi(sn) lo(sn)
//
// The result is order- and classification-sensitive. Two distinct sequences
// with equal fingerprints are a SHA-1 collision and are not detected.
func Fingerprint(c area.Classification, seq []uint16) string {
	buf := make([]byte, 3, 3+3*len(seq))
	buf[0] = c.Byte()
	for i, s := range seq {
		if i > 0 {
			buf = append(buf, 0x00)
		}
		buf = append(buf, byte(s>>8), byte(s))
	}
	sum := sha1.Sum(buf) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// SequenceFromPairs rebuilds a stop sequence from chained edges. Each edge's
// From must equal the previous edge's To.
func SequenceFromPairs(pairs []Pair) ([]uint16, error) {
	if len(pairs) == 0 {
		return []uint16{}, nil
	}
	seq := make([]uint16, 0, len(pairs)+1)
	seq = append(seq, pairs[0].From)
	prev := pairs[0].From
	for i, p := range pairs {
		if p.From != prev {
			return nil, fmt.Errorf("%w: edge %d starts at %d, previous ended at %d", ErrBrokenChain, i, p.From, prev)
		}
		seq = append(seq, p.To)
		prev = p.To
	}
	return seq, nil
}

// MustSequenceFromPairs is SequenceFromPairs for edges already known to be
// chained; it panics otherwise.
func MustSequenceFromPairs(pairs []Pair) []uint16 {
	seq, err := SequenceFromPairs(pairs)
	if err != nil {
		panic(err)
	}
	return seq
}
