// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package record implements CRAM's record codec driver: the
// field-at-a-time, flag-gated read/write order every record in a slice
// follows - BF, CF, RI, RL, AP, RG, RN, mate data, TL, tags, then either
// features and MQ (mapped) or BA (unmapped), then QS - each field routed
// through the compression header's
// DataSeriesEncodingMap to either the core bit stream or an external
// block.
package record

import (
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/codec"
	"github.com/grailbio/cram/dsem"
	"github.com/grailbio/cram/feature"
	"github.com/grailbio/cram/preservation"
	"github.com/grailbio/cram/tagenc"
)

// Flags are CRAM's own per-record compression flags (CF data series),
// distinct from the BAM flags a record also carries.
type Flags uint8

const (
	// FlagDetached marks a record whose mate data is fully inline (NS/NP/
	// TS are all written) rather than referencing a downstream record.
	FlagDetached Flags = 1 << iota
	// FlagHasMateDownstream marks a record whose mate follows later in
	// the same slice, recorded only as a distance (NF).
	FlagHasMateDownstream
	// FlagUnmapped is a CRAM-side copy of the BAM unmapped flag. The
	// Driver does not consult it: EncodeRecord and DecodeRecord choose the
	// mapped or unmapped layout from the record's BAM flags.
	FlagUnmapped
	// FlagQualityScoresStoredAsArray marks a record whose quality scores
	// are written as a flat byte array (QS per base) rather than derived.
	FlagQualityScoresStoredAsArray
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Tag is one record-level auxiliary tag: its encoding-map key and its
// already-serialized value bytes (the same per-type byte layout a
// sam.Aux value carries after its name and type prefix).
type Tag struct {
	ID    tagenc.ID
	Value []byte
}

// TagFromAux converts one BAM auxiliary field into its CRAM tag form: the
// packed (name, type) id plus the value bytes that follow them. The value
// layout (int widths, NUL-terminated strings, array headers) is exactly
// the aux field's own, so no re-serialization happens.
func TagFromAux(aux sam.Aux) (Tag, error) {
	if len(aux) < 3 {
		return Tag{}, errors.Wrapf(cram.ErrInvalidInput, "aux field too short: %d bytes", len(aux))
	}
	return Tag{
		ID:    tagenc.Pack([2]byte{aux[0], aux[1]}, aux[2]),
		Value: append([]byte(nil), aux[3:]...),
	}, nil
}

// Aux converts t back into a BAM auxiliary field.
func (t Tag) Aux() sam.Aux {
	name, typ := t.ID.Unpack()
	aux := make(sam.Aux, 0, 3+len(t.Value))
	aux = append(aux, name[0], name[1], typ)
	return append(aux, t.Value...)
}

// Record is one CRAM record's decoded field values, independent of how
// they are laid out on the wire.
type Record struct {
	BAMFlags  sam.Flags
	CRAMFlags Flags

	ReferenceSequenceID int32 // cram.UnmappedReferenceID if none
	ReadLength          int32
	AlignmentStart      *cram.Position // nil if none
	ReadGroupID         int32          // cram.MissingReadGroupID if none
	ReadName            string         // cram.MissingReadName if absent

	NextMateFlags                   byte
	NextFragmentReferenceSequenceID int32          // cram.UnmappedReferenceID if none
	NextMateAlignmentStart          *cram.Position // nil if none
	TemplateSize                    int32
	DistanceToNextFragment          int32

	Tags     []Tag
	Features []feature.Feature

	MappingQuality byte // cram.MissingMappingQuality if none
	QualityScores  []cram.QScore
	Bases          []cram.Base
}

// Driver drives Records through a slice's compression header maps. One
// Driver is used for an entire slice; it tracks the previous record's
// alignment start across calls to compute AP's delta. The first record's
// delta is taken from zero, so the sum of deltas through record i is
// record i's absolute alignment start.
type Driver struct {
	DSEM               *dsem.Map
	Preservation       *preservation.Map
	TagEncodings       *tagenc.Map
	MultipleReferences bool // whether RI is written at all (container has >1 reference)

	started            bool // a record has already passed through
	prevAlignmentStart *cram.Position
}

func (d *Driver) get(k dsem.Key) (codec.Encoding, error) { return d.DSEM.Get(k) }

// EncodeRecord writes r through sinks, one data series at a time.
func (d *Driver) EncodeRecord(sinks codec.Sinks, r *Record) error {
	if err := d.encodeBF(sinks, r); err != nil {
		return err
	}
	if err := d.encodeCF(sinks, r); err != nil {
		return err
	}
	if d.MultipleReferences {
		if err := d.encodeRI(sinks, r); err != nil {
			return err
		}
	}
	if err := d.encodeRL(sinks, r); err != nil {
		return err
	}
	if err := d.encodeAP(sinks, r); err != nil {
		return err
	}
	if err := d.encodeRG(sinks, r); err != nil {
		return err
	}
	if d.Preservation.ReadNamesIncluded {
		if err := d.encodeRN(sinks, r.ReadName); err != nil {
			return err
		}
	}
	if err := d.encodeMateData(sinks, r); err != nil {
		return err
	}
	if err := d.encodeTagData(sinks, r); err != nil {
		return err
	}
	if r.BAMFlags&sam.Unmapped != 0 {
		if err := d.encodeUnmappedRead(sinks, r); err != nil {
			return err
		}
	} else {
		if err := d.encodeMappedRead(sinks, r); err != nil {
			return err
		}
	}
	d.prevAlignmentStart = r.AlignmentStart
	d.started = true
	return nil
}

func (d *Driver) encodeBF(sinks codec.Sinks, r *Record) error {
	enc, err := d.get(dsem.BF)
	if err != nil {
		return err
	}
	return enc.EncodeInt32(sinks, int32(r.BAMFlags))
}

func (d *Driver) encodeCF(sinks codec.Sinks, r *Record) error {
	enc, err := d.get(dsem.CF)
	if err != nil {
		return err
	}
	return enc.EncodeInt32(sinks, int32(r.CRAMFlags))
}

func (d *Driver) encodeRI(sinks codec.Sinks, r *Record) error {
	enc, err := d.get(dsem.RI)
	if err != nil {
		return err
	}
	return enc.EncodeInt32(sinks, r.ReferenceSequenceID)
}

func (d *Driver) encodeRL(sinks codec.Sinks, r *Record) error {
	enc, err := d.get(dsem.RL)
	if err != nil {
		return err
	}
	return enc.EncodeInt32(sinks, r.ReadLength)
}

func (d *Driver) encodeAP(sinks codec.Sinks, r *Record) error {
	enc, err := d.get(dsem.AP)
	if err != nil {
		return err
	}
	var value int32
	if d.Preservation.APDataSeriesDelta {
		switch {
		case !d.started:
			// The slice's first delta is from zero.
			if r.AlignmentStart != nil {
				value = int32(*r.AlignmentStart)
			}
		case r.AlignmentStart == nil && d.prevAlignmentStart == nil:
			value = 0
		case r.AlignmentStart != nil && d.prevAlignmentStart != nil:
			value = int32(*r.AlignmentStart) - int32(*d.prevAlignmentStart)
		default:
			return errors.Wrap(cram.ErrInvalidInput, "alignment start and previous alignment start must both be present or both be absent")
		}
	} else if r.AlignmentStart != nil {
		value = int32(*r.AlignmentStart)
	}
	return enc.EncodeInt32(sinks, value)
}

func (d *Driver) encodeRG(sinks codec.Sinks, r *Record) error {
	enc, err := d.get(dsem.RG)
	if err != nil {
		return err
	}
	return enc.EncodeInt32(sinks, r.ReadGroupID)
}

func (d *Driver) encodeRN(sinks codec.Sinks, name string) error {
	enc, err := d.get(dsem.RN)
	if err != nil {
		return err
	}
	if name == "" {
		name = cram.MissingReadName
	}
	return enc.EncodeBytes(sinks, []byte(name))
}

func (d *Driver) encodeMateData(sinks codec.Sinks, r *Record) error {
	switch {
	case r.CRAMFlags.Has(FlagDetached):
		mf, err := d.get(dsem.MF)
		if err != nil {
			return err
		}
		if err := mf.EncodeInt32(sinks, int32(r.NextMateFlags)); err != nil {
			return err
		}
		if !d.Preservation.ReadNamesIncluded {
			if err := d.encodeRN(sinks, r.ReadName); err != nil {
				return err
			}
		}
		ns, err := d.get(dsem.NS)
		if err != nil {
			return err
		}
		if err := ns.EncodeInt32(sinks, r.NextFragmentReferenceSequenceID); err != nil {
			return err
		}
		np, err := d.get(dsem.NP)
		if err != nil {
			return err
		}
		var npVal int32
		if r.NextMateAlignmentStart != nil {
			npVal = int32(*r.NextMateAlignmentStart)
		}
		if err := np.EncodeInt32(sinks, npVal); err != nil {
			return err
		}
		ts, err := d.get(dsem.TS)
		if err != nil {
			return err
		}
		return ts.EncodeInt32(sinks, r.TemplateSize)
	case r.CRAMFlags.Has(FlagHasMateDownstream):
		nf, err := d.get(dsem.NF)
		if err != nil {
			return err
		}
		return nf.EncodeInt32(sinks, r.DistanceToNextFragment)
	default:
		return nil
	}
}

func (d *Driver) encodeTagData(sinks codec.Sinks, r *Record) error {
	ids := make([]tagenc.ID, len(r.Tags))
	for i, t := range r.Tags {
		ids[i] = t.ID
	}
	tl, err := d.findTagLine(ids)
	if err != nil {
		return err
	}
	tlEnc, err := d.get(dsem.TL)
	if err != nil {
		return err
	}
	if err := tlEnc.EncodeInt32(sinks, tl); err != nil {
		return err
	}
	for _, t := range r.Tags {
		enc, err := d.TagEncodings.Get(t.ID)
		if err != nil {
			return err
		}
		if err := enc.EncodeBytes(sinks, t.Value); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) findTagLine(ids []tagenc.ID) (int32, error) {
	for i, line := range d.Preservation.TagIDsDictionary.Lines {
		if tagLineEqual(line, ids) {
			return int32(i), nil
		}
	}
	return 0, errors.Wrap(cram.ErrTagLineNotFound, "record's tag set not found in tag ids dictionary")
}

func tagLineEqual(a, b []tagenc.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *Driver) encodeMappedRead(sinks codec.Sinks, r *Record) error {
	fn, err := d.get(dsem.FN)
	if err != nil {
		return err
	}
	if err := fn.EncodeInt32(sinks, int32(len(r.Features))); err != nil {
		return err
	}
	if err := feature.EncodeList(d.DSEM, d.Preservation.SubstitutionMatrix, sinks, r.Features); err != nil {
		return err
	}
	mq, err := d.get(dsem.MQ)
	if err != nil {
		return err
	}
	if err := mq.EncodeInt32(sinks, int32(r.MappingQuality)); err != nil {
		return err
	}
	if r.CRAMFlags.Has(FlagQualityScoresStoredAsArray) {
		return d.encodeQualityScores(sinks, r.QualityScores)
	}
	return nil
}

func (d *Driver) encodeUnmappedRead(sinks codec.Sinks, r *Record) error {
	ba, err := d.get(dsem.BA)
	if err != nil {
		return err
	}
	for _, b := range r.Bases {
		if err := ba.EncodeByte(sinks, b.Byte()); err != nil {
			return err
		}
	}
	if r.CRAMFlags.Has(FlagQualityScoresStoredAsArray) {
		return d.encodeQualityScores(sinks, r.QualityScores)
	}
	return nil
}

func (d *Driver) encodeQualityScores(sinks codec.Sinks, scores []cram.QScore) error {
	qs, err := d.get(dsem.QS)
	if err != nil {
		return err
	}
	for _, s := range scores {
		if err := qs.EncodeByte(sinks, byte(s)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRecord reads one Record through sources, mirroring EncodeRecord's
// field order exactly. The read length and the mapped/unmapped layout are
// taken from the RL and BF values this same call decodes; the caller
// supplies neither.
func (d *Driver) DecodeRecord(sources codec.Sources) (*Record, error) {
	r := &Record{}

	bf, err := d.get(dsem.BF)
	if err != nil {
		return nil, err
	}
	bfVal, err := bf.DecodeInt32(sources)
	if err != nil {
		return nil, err
	}
	r.BAMFlags = sam.Flags(bfVal)

	cf, err := d.get(dsem.CF)
	if err != nil {
		return nil, err
	}
	cfVal, err := cf.DecodeInt32(sources)
	if err != nil {
		return nil, err
	}
	r.CRAMFlags = Flags(cfVal)

	if d.MultipleReferences {
		ri, err := d.get(dsem.RI)
		if err != nil {
			return nil, err
		}
		if r.ReferenceSequenceID, err = ri.DecodeInt32(sources); err != nil {
			return nil, err
		}
	} else {
		r.ReferenceSequenceID = cram.UnmappedReferenceID
	}

	rl, err := d.get(dsem.RL)
	if err != nil {
		return nil, err
	}
	if r.ReadLength, err = rl.DecodeInt32(sources); err != nil {
		return nil, err
	}

	if err := d.decodeAP(sources, r); err != nil {
		return nil, err
	}

	rg, err := d.get(dsem.RG)
	if err != nil {
		return nil, err
	}
	if r.ReadGroupID, err = rg.DecodeInt32(sources); err != nil {
		return nil, err
	}

	if d.Preservation.ReadNamesIncluded {
		name, err := d.decodeRN(sources)
		if err != nil {
			return nil, err
		}
		r.ReadName = name
	}

	if err := d.decodeMateData(sources, r); err != nil {
		return nil, err
	}
	if err := d.decodeTagData(sources, r); err != nil {
		return nil, err
	}

	if r.BAMFlags&sam.Unmapped != 0 {
		if err := d.decodeUnmappedRead(sources, r); err != nil {
			return nil, err
		}
	} else {
		if err := d.decodeMappedRead(sources, r); err != nil {
			return nil, err
		}
	}

	d.prevAlignmentStart = r.AlignmentStart
	d.started = true
	return r, nil
}

// RestoreSequence fills in a freshly decoded mapped record's bases (and,
// when the features carry them, quality scores) by replaying its features
// against ref, the full sequence of the reference the record aligns to.
// Quality scores already decoded from a flat QS array are kept as-is.
func (d *Driver) RestoreSequence(r *Record, ref []cram.Base) error {
	if r.BAMFlags&sam.Unmapped != 0 {
		return nil
	}
	if r.AlignmentStart == nil {
		return errors.Wrap(cram.ErrInvalidInput, "mapped record has no alignment start")
	}
	bases, scores, err := feature.Reconstruct(ref, *r.AlignmentStart, r.ReadLength, d.Preservation.SubstitutionMatrix, r.Features)
	if err != nil {
		return err
	}
	r.Bases = bases
	if !r.CRAMFlags.Has(FlagQualityScoresStoredAsArray) {
		r.QualityScores = scores
	}
	return nil
}

// Cigar derives the record's CIGAR from its features. Unmapped records
// have none.
func (r *Record) Cigar() sam.Cigar {
	if r.BAMFlags&sam.Unmapped != 0 {
		return nil
	}
	return feature.Cigar(r.ReadLength, r.Features)
}

func (d *Driver) decodeAP(sources codec.Sources, r *Record) error {
	enc, err := d.get(dsem.AP)
	if err != nil {
		return err
	}
	val, err := enc.DecodeInt32(sources)
	if err != nil {
		return err
	}
	if d.Preservation.APDataSeriesDelta {
		var base int32
		switch {
		case !d.started:
			// base stays zero: the first delta is absolute.
		case d.prevAlignmentStart == nil:
			if val != 0 {
				return errors.Wrap(cram.ErrInvalidInput, "alignment start delta with no previous alignment start")
			}
			return nil
		default:
			base = int32(*d.prevAlignmentStart)
		}
		abs := base + val
		if abs == 0 {
			return nil
		}
		if abs < 0 {
			return errors.Wrapf(cram.ErrInvalidData, "alignment start %d is not positive", abs)
		}
		pos := cram.Position(abs)
		r.AlignmentStart = &pos
		return nil
	}
	if val != 0 {
		pos := cram.Position(val)
		r.AlignmentStart = &pos
	}
	return nil
}

func (d *Driver) decodeRN(sources codec.Sources) (string, error) {
	enc, err := d.get(dsem.RN)
	if err != nil {
		return "", err
	}
	b, err := enc.DecodeBytes(sources, 0)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Driver) decodeMateData(sources codec.Sources, r *Record) error {
	switch {
	case r.CRAMFlags.Has(FlagDetached):
		mf, err := d.get(dsem.MF)
		if err != nil {
			return err
		}
		mfVal, err := mf.DecodeInt32(sources)
		if err != nil {
			return err
		}
		r.NextMateFlags = byte(mfVal)

		if !d.Preservation.ReadNamesIncluded {
			name, err := d.decodeRN(sources)
			if err != nil {
				return err
			}
			r.ReadName = name
		}

		ns, err := d.get(dsem.NS)
		if err != nil {
			return err
		}
		if r.NextFragmentReferenceSequenceID, err = ns.DecodeInt32(sources); err != nil {
			return err
		}

		np, err := d.get(dsem.NP)
		if err != nil {
			return err
		}
		npVal, err := np.DecodeInt32(sources)
		if err != nil {
			return err
		}
		if npVal != 0 {
			pos := cram.Position(npVal)
			r.NextMateAlignmentStart = &pos
		}

		ts, err := d.get(dsem.TS)
		if err != nil {
			return err
		}
		r.TemplateSize, err = ts.DecodeInt32(sources)
		return err
	case r.CRAMFlags.Has(FlagHasMateDownstream):
		nf, err := d.get(dsem.NF)
		if err != nil {
			return err
		}
		var err2 error
		r.DistanceToNextFragment, err2 = nf.DecodeInt32(sources)
		return err2
	default:
		return nil
	}
}

func (d *Driver) decodeTagData(sources codec.Sources, r *Record) error {
	tlEnc, err := d.get(dsem.TL)
	if err != nil {
		return err
	}
	tl, err := tlEnc.DecodeInt32(sources)
	if err != nil {
		return err
	}
	line, err := d.Preservation.TagIDsDictionary.Line(tl)
	if err != nil {
		return err
	}
	tags := make([]Tag, len(line))
	for i, id := range line {
		enc, err := d.TagEncodings.Get(id)
		if err != nil {
			return err
		}
		val, err := enc.DecodeBytes(sources, 0)
		if err != nil {
			return err
		}
		tags[i] = Tag{ID: id, Value: val}
	}
	r.Tags = tags
	return nil
}

func (d *Driver) decodeMappedRead(sources codec.Sources, r *Record) error {
	fn, err := d.get(dsem.FN)
	if err != nil {
		return err
	}
	count, err := fn.DecodeInt32(sources)
	if err != nil {
		return err
	}
	r.Features, err = feature.DecodeList(d.DSEM, sources, count)
	if err != nil {
		return err
	}

	mq, err := d.get(dsem.MQ)
	if err != nil {
		return err
	}
	mqVal, err := mq.DecodeInt32(sources)
	if err != nil {
		return err
	}
	r.MappingQuality = byte(mqVal)

	if r.CRAMFlags.Has(FlagQualityScoresStoredAsArray) {
		scores, err := d.decodeQualityScores(sources, int(r.ReadLength))
		if err != nil {
			return err
		}
		r.QualityScores = scores
	}
	return nil
}

func (d *Driver) decodeUnmappedRead(sources codec.Sources, r *Record) error {
	ba, err := d.get(dsem.BA)
	if err != nil {
		return err
	}
	bases := make([]cram.Base, r.ReadLength)
	for i := range bases {
		b, err := ba.DecodeByte(sources)
		if err != nil {
			return err
		}
		base, err := cram.BaseFromByte(b)
		if err != nil {
			return err
		}
		bases[i] = base
	}
	r.Bases = bases

	if r.CRAMFlags.Has(FlagQualityScoresStoredAsArray) {
		scores, err := d.decodeQualityScores(sources, int(r.ReadLength))
		if err != nil {
			return err
		}
		r.QualityScores = scores
	}
	return nil
}

func (d *Driver) decodeQualityScores(sources codec.Sources, n int) ([]cram.QScore, error) {
	qs, err := d.get(dsem.QS)
	if err != nil {
		return nil, err
	}
	scores := make([]cram.QScore, n)
	for i := range scores {
		b, err := qs.DecodeByte(sources)
		if err != nil {
			return nil, err
		}
		scores[i] = cram.QScore(b)
	}
	return scores, nil
}
