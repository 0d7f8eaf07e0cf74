// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package feature implements CRAM's per-base read features: the
// twelve-variant tagged union of read-vs-reference differences a mapped
// record carries instead of a full re-alignment, the codec that drives a
// feature list through the FC (code), FP (in-read position delta) and
// per-variant payload data series, and the replay logic that reconstructs
// a read's bases, quality scores and CIGAR by walking the reference.
package feature

import (
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/codec"
	"github.com/grailbio/cram/dsem"
	"github.com/grailbio/cram/substitution"
)

// Kind tags a Feature's variant.
type Kind int

const (
	KindBases Kind = iota
	KindScores
	KindReadBase
	KindSubstitution
	KindInsertion
	KindDeletion
	KindInsertBase
	KindQualityScore
	KindReferenceSkip
	KindSoftClip
	KindPadding
	KindHardClip
)

// Code is a Feature's one-byte wire tag (the FC data series' alphabet).
type Code byte

// The closed set of feature codes.
const (
	CodeBases         Code = 'b'
	CodeScores        Code = 'q'
	CodeReadBase      Code = 'B'
	CodeSubstitution  Code = 'X'
	CodeInsertion     Code = 'I'
	CodeDeletion      Code = 'D'
	CodeInsertBase    Code = 'i'
	CodeQualityScore  Code = 'Q'
	CodeReferenceSkip Code = 'N'
	CodeSoftClip      Code = 'S'
	CodePadding       Code = 'P'
	CodeHardClip      Code = 'H'
)

var kindToCode = map[Kind]Code{
	KindBases:         CodeBases,
	KindScores:        CodeScores,
	KindReadBase:      CodeReadBase,
	KindSubstitution:  CodeSubstitution,
	KindInsertion:     CodeInsertion,
	KindDeletion:      CodeDeletion,
	KindInsertBase:    CodeInsertBase,
	KindQualityScore:  CodeQualityScore,
	KindReferenceSkip: CodeReferenceSkip,
	KindSoftClip:      CodeSoftClip,
	KindPadding:       CodePadding,
	KindHardClip:      CodeHardClip,
}

var codeToKind = func() map[Code]Kind {
	m := make(map[Code]Kind, len(kindToCode))
	for k, c := range kindToCode {
		m[c] = k
	}
	return m
}()

// Feature is the tagged union of the twelve read-feature variants. Only
// the fields relevant to Kind are populated.
//
// A Substitution exists in two forms. Writers build it from the observed
// (reference base, read base) pair; the pair is what the histogram pass
// counts and what the matrix turns into a 2-bit rank at encode time.
// Readers produce the coded form, carrying only the rank, since resolving
// it back to a read base requires walking the reference (see Reconstruct).
type Feature struct {
	Kind Kind

	// Position is the feature's 1-based in-read position.
	Position int32

	Bases  []cram.Base   // Bases, Insertion, SoftClip
	Scores []cram.QScore // Scores
	Base   cram.Base     // ReadBase, InsertBase
	Score  cram.QScore   // ReadBase, QualityScore
	Length int32         // Deletion, ReferenceSkip, Padding, HardClip

	SubstitutionRef   cram.Base // Substitution, bases form
	SubstitutionRead  cram.Base // Substitution, bases form
	SubstitutionRank  int32     // Substitution, coded form
	SubstitutionCoded bool      // true once the pair has been reduced to a rank
}

// Code returns f's wire tag.
func (f *Feature) Code() Code { return kindToCode[f.Kind] }

func Bases(pos int32, bases []cram.Base) Feature {
	return Feature{Kind: KindBases, Position: pos, Bases: bases}
}
func Scores(pos int32, scores []cram.QScore) Feature {
	return Feature{Kind: KindScores, Position: pos, Scores: scores}
}
func ReadBase(pos int32, base cram.Base, score cram.QScore) Feature {
	return Feature{Kind: KindReadBase, Position: pos, Base: base, Score: score}
}

// Substitution builds the bases form: the observed reference and read base
// at pos. This is the only form EncodeList accepts.
func Substitution(pos int32, ref, read cram.Base) Feature {
	return Feature{Kind: KindSubstitution, Position: pos, SubstitutionRef: ref, SubstitutionRead: read}
}

// SubstitutionCode builds the coded form DecodeList produces: the matrix
// rank, with the base pair unresolved until replay.
func SubstitutionCode(pos int32, rank int32) Feature {
	return Feature{Kind: KindSubstitution, Position: pos, SubstitutionRank: rank, SubstitutionCoded: true}
}

func Insertion(pos int32, bases []cram.Base) Feature {
	return Feature{Kind: KindInsertion, Position: pos, Bases: bases}
}
func Deletion(pos int32, length int32) Feature {
	return Feature{Kind: KindDeletion, Position: pos, Length: length}
}
func InsertBase(pos int32, base cram.Base) Feature {
	return Feature{Kind: KindInsertBase, Position: pos, Base: base}
}
func QualityScore(pos int32, score cram.QScore) Feature {
	return Feature{Kind: KindQualityScore, Position: pos, Score: score}
}
func ReferenceSkip(pos int32, length int32) Feature {
	return Feature{Kind: KindReferenceSkip, Position: pos, Length: length}
}
func SoftClip(pos int32, bases []cram.Base) Feature {
	return Feature{Kind: KindSoftClip, Position: pos, Bases: bases}
}
func Padding(pos int32, length int32) Feature {
	return Feature{Kind: KindPadding, Position: pos, Length: length}
}
func HardClip(pos int32, length int32) Feature {
	return Feature{Kind: KindHardClip, Position: pos, Length: length}
}

// Tally adds every bases-form Substitution in features to h. Slice
// encoders run this over all records first; the built matrix then fixes
// the rank each pair encodes as. A coded Substitution cannot be tallied
// (the pair is gone) and is an input error.
func Tally(h *substitution.Histogram, features []Feature) error {
	for i := range features {
		f := &features[i]
		if f.Kind != KindSubstitution {
			continue
		}
		if f.SubstitutionCoded {
			return errors.Wrapf(cram.ErrInvalidInput, "feature[%d]: cannot tally a coded substitution", i)
		}
		h.Hit(f.SubstitutionRef, f.SubstitutionRead)
	}
	return nil
}

// EncodeList drives features through FC/FP and their per-variant payload
// data series, in order, tracking the previous feature's position so FP
// always carries a delta. matrix reduces each Substitution's base pair to
// its rank.
func EncodeList(m *dsem.Map, matrix *substitution.Matrix, sinks codec.Sinks, features []Feature) error {
	fc, err := m.Get(dsem.FC)
	if err != nil {
		return err
	}
	fp, err := m.Get(dsem.FP)
	if err != nil {
		return err
	}

	prev := int32(0)
	for i := range features {
		f := &features[i]
		if err := fc.EncodeByte(sinks, byte(f.Code())); err != nil {
			return errors.Wrapf(err, "feature[%d] code", i)
		}
		if err := fp.EncodeInt32(sinks, f.Position-prev); err != nil {
			return errors.Wrapf(err, "feature[%d] position delta", i)
		}
		prev = f.Position
		if err := encodePayload(m, matrix, sinks, f); err != nil {
			return errors.Wrapf(err, "feature[%d] payload", i)
		}
	}
	return nil
}

// DecodeList is the read-side counterpart of EncodeList, reading exactly
// count features. Substitutions come back in coded form.
func DecodeList(m *dsem.Map, sources codec.Sources, count int32) ([]Feature, error) {
	fc, err := m.Get(dsem.FC)
	if err != nil {
		return nil, err
	}
	fp, err := m.Get(dsem.FP)
	if err != nil {
		return nil, err
	}

	out := make([]Feature, count)
	prev := int32(0)
	for i := int32(0); i < count; i++ {
		codeByte, err := fc.DecodeByte(sources)
		if err != nil {
			return nil, errors.Wrapf(err, "feature[%d] code", i)
		}
		kind, ok := codeToKind[Code(codeByte)]
		if !ok {
			return nil, errors.Wrapf(cram.ErrInvalidData, "feature[%d] unknown code 0x%02x", i, codeByte)
		}
		delta, err := fp.DecodeInt32(sources)
		if err != nil {
			return nil, errors.Wrapf(err, "feature[%d] position delta", i)
		}
		pos := prev + delta
		prev = pos

		f := Feature{Kind: kind, Position: pos}
		if err := decodePayload(m, sources, &f); err != nil {
			return nil, errors.Wrapf(err, "feature[%d] payload", i)
		}
		out[i] = f
	}
	return out, nil
}

func encodePayload(m *dsem.Map, matrix *substitution.Matrix, sinks codec.Sinks, f *Feature) error {
	switch f.Kind {
	case KindBases:
		enc, err := m.Get(dsem.BB)
		if err != nil {
			return err
		}
		return enc.EncodeBytes(sinks, basesToBytes(f.Bases))
	case KindScores:
		enc, err := m.Get(dsem.QQ)
		if err != nil {
			return err
		}
		return enc.EncodeBytes(sinks, scoresToBytes(f.Scores))
	case KindReadBase:
		ba, err := m.Get(dsem.BA)
		if err != nil {
			return err
		}
		if err := ba.EncodeByte(sinks, f.Base.Byte()); err != nil {
			return err
		}
		qs, err := m.Get(dsem.QS)
		if err != nil {
			return err
		}
		return qs.EncodeByte(sinks, byte(f.Score))
	case KindSubstitution:
		if f.SubstitutionCoded {
			return errors.Wrap(cram.ErrInvalidInput, "substitution must carry its base pair on write")
		}
		rank, err := matrix.Rank(f.SubstitutionRef, f.SubstitutionRead)
		if err != nil {
			return err
		}
		enc, err := m.Get(dsem.BS)
		if err != nil {
			return err
		}
		return enc.EncodeByte(sinks, byte(rank))
	case KindInsertion:
		enc, err := m.Get(dsem.IN)
		if err != nil {
			return err
		}
		return enc.EncodeBytes(sinks, basesToBytes(f.Bases))
	case KindDeletion:
		enc, err := m.Get(dsem.DL)
		if err != nil {
			return err
		}
		return enc.EncodeInt32(sinks, f.Length)
	case KindInsertBase:
		enc, err := m.Get(dsem.BA)
		if err != nil {
			return err
		}
		return enc.EncodeByte(sinks, f.Base.Byte())
	case KindQualityScore:
		enc, err := m.Get(dsem.QS)
		if err != nil {
			return err
		}
		return enc.EncodeByte(sinks, byte(f.Score))
	case KindReferenceSkip:
		enc, err := m.Get(dsem.RS)
		if err != nil {
			return err
		}
		return enc.EncodeInt32(sinks, f.Length)
	case KindSoftClip:
		enc, err := m.Get(dsem.SC)
		if err != nil {
			return err
		}
		return enc.EncodeBytes(sinks, basesToBytes(f.Bases))
	case KindPadding:
		enc, err := m.Get(dsem.PD)
		if err != nil {
			return err
		}
		return enc.EncodeInt32(sinks, f.Length)
	case KindHardClip:
		enc, err := m.Get(dsem.HC)
		if err != nil {
			return err
		}
		return enc.EncodeInt32(sinks, f.Length)
	default:
		return errors.Wrapf(cram.ErrInvalidInput, "unknown feature kind %d", f.Kind)
	}
}

func decodePayload(m *dsem.Map, sources codec.Sources, f *Feature) error {
	switch f.Kind {
	case KindBases:
		enc, err := m.Get(dsem.BB)
		if err != nil {
			return err
		}
		b, err := enc.DecodeBytes(sources, 0)
		if err != nil {
			return err
		}
		f.Bases, err = bytesToBases(b)
		return err
	case KindScores:
		enc, err := m.Get(dsem.QQ)
		if err != nil {
			return err
		}
		b, err := enc.DecodeBytes(sources, 0)
		if err != nil {
			return err
		}
		f.Scores = bytesToScores(b)
		return nil
	case KindReadBase:
		ba, err := m.Get(dsem.BA)
		if err != nil {
			return err
		}
		b, err := ba.DecodeByte(sources)
		if err != nil {
			return err
		}
		if f.Base, err = cram.BaseFromByte(b); err != nil {
			return err
		}
		qs, err := m.Get(dsem.QS)
		if err != nil {
			return err
		}
		q, err := qs.DecodeByte(sources)
		f.Score = cram.QScore(q)
		return err
	case KindSubstitution:
		enc, err := m.Get(dsem.BS)
		if err != nil {
			return err
		}
		b, err := enc.DecodeByte(sources)
		f.SubstitutionRank = int32(b)
		f.SubstitutionCoded = true
		return err
	case KindInsertion:
		enc, err := m.Get(dsem.IN)
		if err != nil {
			return err
		}
		b, err := enc.DecodeBytes(sources, 0)
		if err != nil {
			return err
		}
		f.Bases, err = bytesToBases(b)
		return err
	case KindDeletion:
		enc, err := m.Get(dsem.DL)
		if err != nil {
			return err
		}
		v, err := enc.DecodeInt32(sources)
		f.Length = v
		return err
	case KindInsertBase:
		enc, err := m.Get(dsem.BA)
		if err != nil {
			return err
		}
		b, err := enc.DecodeByte(sources)
		if err != nil {
			return err
		}
		f.Base, err = cram.BaseFromByte(b)
		return err
	case KindQualityScore:
		enc, err := m.Get(dsem.QS)
		if err != nil {
			return err
		}
		b, err := enc.DecodeByte(sources)
		f.Score = cram.QScore(b)
		return err
	case KindReferenceSkip:
		enc, err := m.Get(dsem.RS)
		if err != nil {
			return err
		}
		v, err := enc.DecodeInt32(sources)
		f.Length = v
		return err
	case KindSoftClip:
		enc, err := m.Get(dsem.SC)
		if err != nil {
			return err
		}
		b, err := enc.DecodeBytes(sources, 0)
		if err != nil {
			return err
		}
		f.Bases, err = bytesToBases(b)
		return err
	case KindPadding:
		enc, err := m.Get(dsem.PD)
		if err != nil {
			return err
		}
		v, err := enc.DecodeInt32(sources)
		f.Length = v
		return err
	case KindHardClip:
		enc, err := m.Get(dsem.HC)
		if err != nil {
			return err
		}
		v, err := enc.DecodeInt32(sources)
		f.Length = v
		return err
	default:
		return errors.Wrapf(cram.ErrInvalidData, "unknown feature kind %d", f.Kind)
	}
}

// Reconstruct replays features against the reference to recover a mapped
// read's bases and quality scores. ref is the full reference sequence the
// record aligns to (ref[0] is reference position 1); alignmentStart is the
// record's 1-based alignment start. Read positions not touched by any
// feature are copied from the reference, one reference base per read base.
// Coded Substitutions are resolved through matrix against the reference
// base under the walk cursor.
//
// The returned quality scores are only those the features themselves carry
// (ReadBase, QualityScore, Scores); a record whose scores are stored as a
// flat array overwrites them wholesale.
func Reconstruct(ref []cram.Base, alignmentStart cram.Position, readLength int32, matrix *substitution.Matrix, features []Feature) ([]cram.Base, []cram.QScore, error) {
	if readLength < 0 {
		return nil, nil, errors.Wrapf(cram.ErrInvalidInput, "negative read length %d", readLength)
	}
	bases := make([]cram.Base, readLength)
	scores := make([]cram.QScore, readLength)

	readPos := int32(1)
	refPos := int32(alignmentStart)

	refBase := func() (cram.Base, error) {
		if refPos < 1 || int(refPos) > len(ref) {
			return 0, errors.Wrapf(cram.ErrInvalidData, "feature walk leaves the reference at position %d", refPos)
		}
		return ref[refPos-1], nil
	}
	// copy the matched run [readPos, upTo) straight off the reference.
	matchTo := func(upTo int32) error {
		for ; readPos < upTo; readPos++ {
			if readPos > readLength {
				return errors.Wrap(cram.ErrInvalidData, "feature position beyond read length")
			}
			b, err := refBase()
			if err != nil {
				return err
			}
			bases[readPos-1] = b
			refPos++
		}
		return nil
	}

	for i := range features {
		f := &features[i]
		if f.Position < readPos && f.Kind != KindQualityScore && f.Kind != KindScores {
			return nil, nil, errors.Wrapf(cram.ErrInvalidData, "feature[%d] position %d rewinds the read", i, f.Position)
		}
		if err := matchTo(f.Position); err != nil {
			return nil, nil, err
		}
		switch f.Kind {
		case KindReadBase, KindSubstitution, KindInsertBase:
			if f.Position > readLength {
				return nil, nil, errors.Wrapf(cram.ErrInvalidData, "feature[%d] position %d beyond read length", i, f.Position)
			}
		}
		switch f.Kind {
		case KindBases:
			for j, b := range f.Bases {
				p := f.Position + int32(j)
				if p > readLength {
					return nil, nil, errors.Wrap(cram.ErrInvalidData, "bases stretch beyond read length")
				}
				bases[p-1] = b
			}
			readPos = f.Position + int32(len(f.Bases))
			refPos += int32(len(f.Bases))
		case KindScores:
			for j, s := range f.Scores {
				p := f.Position + int32(j)
				if p < 1 || p > readLength {
					return nil, nil, errors.Wrap(cram.ErrInvalidData, "scores stretch outside the read")
				}
				scores[p-1] = s
			}
		case KindReadBase:
			bases[f.Position-1] = f.Base
			scores[f.Position-1] = f.Score
			readPos = f.Position + 1
			refPos++
		case KindSubstitution:
			rb, err := refBase()
			if err != nil {
				return nil, nil, err
			}
			read := f.SubstitutionRead
			if f.SubstitutionCoded {
				if read, err = matrix.Code(rb, int(f.SubstitutionRank)); err != nil {
					return nil, nil, err
				}
			}
			bases[f.Position-1] = read
			readPos = f.Position + 1
			refPos++
		case KindInsertion:
			for j, b := range f.Bases {
				p := f.Position + int32(j)
				if p > readLength {
					return nil, nil, errors.Wrap(cram.ErrInvalidData, "insertion beyond read length")
				}
				bases[p-1] = b
			}
			readPos = f.Position + int32(len(f.Bases))
		case KindDeletion:
			refPos += f.Length
		case KindInsertBase:
			bases[f.Position-1] = f.Base
			readPos = f.Position + 1
		case KindQualityScore:
			if f.Position < 1 || f.Position > readLength {
				return nil, nil, errors.Wrap(cram.ErrInvalidData, "quality score outside the read")
			}
			scores[f.Position-1] = f.Score
		case KindReferenceSkip:
			refPos += f.Length
		case KindSoftClip:
			for j, b := range f.Bases {
				p := f.Position + int32(j)
				if p > readLength {
					return nil, nil, errors.Wrap(cram.ErrInvalidData, "soft clip beyond read length")
				}
				bases[p-1] = b
			}
			readPos = f.Position + int32(len(f.Bases))
		case KindPadding, KindHardClip:
			// neither consumes read nor reference bases
		}
	}
	if err := matchTo(readLength + 1); err != nil {
		return nil, nil, err
	}
	return bases, scores, nil
}

// Cigar derives the alignment's CIGAR from features: the matched runs
// between features become M operations, and each read-or-reference-
// consuming feature contributes its own operation. Adjacent operations of
// the same type are merged.
func Cigar(readLength int32, features []Feature) sam.Cigar {
	var ops sam.Cigar
	add := func(t sam.CigarOpType, n int32) {
		if n <= 0 {
			return
		}
		if len(ops) > 0 && ops[len(ops)-1].Type() == t {
			ops[len(ops)-1] = sam.NewCigarOp(t, ops[len(ops)-1].Len()+int(n))
			return
		}
		ops = append(ops, sam.NewCigarOp(t, int(n)))
	}

	readPos := int32(1)
	for i := range features {
		f := &features[i]
		switch f.Kind {
		case KindBases:
			add(sam.CigarMatch, f.Position-readPos+int32(len(f.Bases)))
			readPos = f.Position + int32(len(f.Bases))
		case KindReadBase, KindSubstitution:
			add(sam.CigarMatch, f.Position-readPos+1)
			readPos = f.Position + 1
		case KindInsertion:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarInsertion, int32(len(f.Bases)))
			readPos = f.Position + int32(len(f.Bases))
		case KindInsertBase:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarInsertion, 1)
			readPos = f.Position + 1
		case KindDeletion:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarDeletion, f.Length)
			readPos = f.Position
		case KindReferenceSkip:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarSkipped, f.Length)
			readPos = f.Position
		case KindSoftClip:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarSoftClipped, int32(len(f.Bases)))
			readPos = f.Position + int32(len(f.Bases))
		case KindPadding:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarPadded, f.Length)
			readPos = f.Position
		case KindHardClip:
			add(sam.CigarMatch, f.Position-readPos)
			add(sam.CigarHardClipped, f.Length)
			readPos = f.Position
		case KindScores, KindQualityScore:
			// quality-only features do not shape the alignment
		}
	}
	add(sam.CigarMatch, readLength-readPos+1)
	return ops
}

func basesToBytes(bases []cram.Base) []byte {
	out := make([]byte, len(bases))
	for i, b := range bases {
		out[i] = b.Byte()
	}
	return out
}

func bytesToBases(b []byte) ([]cram.Base, error) {
	out := make([]cram.Base, len(b))
	for i, c := range b {
		base, err := cram.BaseFromByte(c)
		if err != nil {
			return nil, err
		}
		out[i] = base
	}
	return out, nil
}

func scoresToBytes(scores []cram.QScore) []byte {
	out := make([]byte, len(scores))
	for i, s := range scores {
		out[i] = byte(s)
	}
	return out
}

func bytesToScores(b []byte) []cram.QScore {
	out := make([]cram.QScore, len(b))
	for i, c := range b {
		out[i] = cram.QScore(c)
	}
	return out
}
