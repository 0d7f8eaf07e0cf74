package cram

import "github.com/pkg/errors"

// Position is a 1-based genomic coordinate. The zero value is not a valid
// Position; absence of a position is represented with a *Position or a
// separate bool, never with 0.
type Position int32

// NewPosition validates p and returns it as a Position.
func NewPosition(p int32) (Position, error) {
	if p <= 0 {
		return 0, errors.Errorf("cram: position must be > 0, got %d", p)
	}
	return Position(p), nil
}

// Base is one of the five symbols CRAM's substitution matrix and feature
// stream distinguish: A, C, G, T, N.
type Base byte

// The closed alphabet of bases, in the canonical A<C<G<T<N order the
// substitution matrix uses to break frequency ties.
const (
	BaseA Base = iota
	BaseC
	BaseG
	BaseT
	BaseN
)

// baseSymbols maps a Base to its ASCII representation.
var baseSymbols = [...]byte{BaseA: 'A', BaseC: 'C', BaseG: 'G', BaseT: 'T', BaseN: 'N'}

// String returns the single ASCII character for b.
func (b Base) String() string {
	if int(b) >= len(baseSymbols) {
		return "?"
	}
	return string(baseSymbols[b])
}

// Byte returns the single ASCII character for b.
func (b Base) Byte() byte { return baseSymbols[b] }

// BaseFromByte parses a single ASCII base character.
func BaseFromByte(c byte) (Base, error) {
	switch c {
	case 'A', 'a':
		return BaseA, nil
	case 'C', 'c':
		return BaseC, nil
	case 'G', 'g':
		return BaseG, nil
	case 'T', 't':
		return BaseT, nil
	case 'N', 'n':
		return BaseN, nil
	default:
		return 0, errors.Errorf("cram: invalid base byte %q", c)
	}
}

// NumBases is the size of the closed base alphabet.
const NumBases = 5

// QScore is a Phred-like quality score, 0-93 inclusive.
type QScore byte

// Sentinels used on the wire in place of an absent optional value.
const (
	// UnmappedReferenceID marks "no reference" for a record's reference
	// sequence ID or a mate's next-fragment reference sequence ID.
	UnmappedReferenceID = int32(-1)

	// MissingMappingQuality marks an absent mapping quality.
	MissingMappingQuality = byte(255)

	// MissingReadName is substituted for a record with no read name when
	// read names are not preserved verbatim.
	MissingReadName = "*"

	// MissingReadGroupID marks an absent read group.
	MissingReadGroupID = int32(-1)
)
