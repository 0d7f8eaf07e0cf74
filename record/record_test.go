package record_test

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/bitio"
	"github.com/grailbio/cram/codec"
	"github.com/grailbio/cram/dsem"
	"github.com/grailbio/cram/feature"
	"github.com/grailbio/cram/preservation"
	"github.com/grailbio/cram/record"
	"github.com/grailbio/cram/substitution"
	"github.com/grailbio/cram/tagenc"
)

var externalIDs = []int32{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21,
}

func newTestDriver(multipleReferences bool, td *tagenc.Dictionary) (*record.Driver, codec.Sinks, func() codec.Sources) {
	m := dsem.NewMap()
	m.Set(dsem.BF, codec.External(1))
	m.Set(dsem.CF, codec.External(2))
	m.Set(dsem.RI, codec.External(3))
	m.Set(dsem.RL, codec.External(4))
	m.Set(dsem.AP, codec.External(5))
	m.Set(dsem.RG, codec.External(6))
	m.Set(dsem.RN, codec.ByteArrayStop(0, 7))
	m.Set(dsem.MF, codec.External(8))
	m.Set(dsem.NS, codec.External(9))
	m.Set(dsem.NP, codec.External(10))
	m.Set(dsem.TS, codec.External(11))
	m.Set(dsem.NF, codec.External(12))
	m.Set(dsem.TL, codec.External(13))
	m.Set(dsem.FN, codec.External(14))
	m.Set(dsem.FC, codec.External(15))
	m.Set(dsem.FP, codec.External(16))
	m.Set(dsem.BS, codec.External(17))
	m.Set(dsem.DL, codec.External(18))
	m.Set(dsem.MQ, codec.External(19))
	m.Set(dsem.QS, codec.External(20))
	m.Set(dsem.BA, codec.External(21))
	m.Set(dsem.IN, codec.ByteArrayLen(codec.External(22), codec.External(23)))

	sinkMap := map[int32]*bitio.BufferSink{}
	ext := bitio.ExternalBlocks{}
	for _, id := range append(append([]int32{}, externalIDs...), 22, 23) {
		s := &bitio.BufferSink{}
		sinkMap[id] = s
		ext[id] = s
	}
	sinks := codec.Sinks{External: ext}
	makeSources := func() codec.Sources {
		srcs := bitio.ExternalSources{}
		for id, s := range sinkMap {
			srcs[id] = bitio.NewBufferSource(s.Bytes())
		}
		return codec.Sources{External: srcs}
	}

	sm := substitution.NewHistogram().Build()
	tagEncodings := tagenc.NewMap()

	if td == nil {
		td = &tagenc.Dictionary{Lines: [][]tagenc.ID{{}}}
	}

	d := &record.Driver{
		DSEM:               m,
		Preservation:       preservation.New(sm, td),
		TagEncodings:       tagEncodings,
		MultipleReferences: multipleReferences,
	}
	return d, sinks, makeSources
}

func TestRecordRoundTripUnmappedSimple(t *testing.T) {
	d, sinks, makeSources := newTestDriver(false, nil)

	r := &record.Record{
		BAMFlags:            sam.Unmapped,
		CRAMFlags:           0,
		ReferenceSequenceID: cram.UnmappedReferenceID,
		ReadLength:          4,
		ReadGroupID:         cram.MissingReadGroupID,
		ReadName:            "read1",
		Bases:               []cram.Base{cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseT},
	}
	d.Preservation.ReadNamesIncluded = true

	require.NoError(t, d.EncodeRecord(sinks, r))

	got, err := d.DecodeRecord(makeSources())
	require.NoError(t, err)
	require.Equal(t, r.Bases, got.Bases)
	require.Equal(t, r.ReadName, got.ReadName)
	require.Equal(t, r.BAMFlags, got.BAMFlags)
}

func TestRecordRoundTripMappedWithFeaturesAndQuality(t *testing.T) {
	d, sinks, makeSources := newTestDriver(false, nil)

	pos := cram.Position(100)
	r := &record.Record{
		BAMFlags:            0,
		CRAMFlags:           record.FlagQualityScoresStoredAsArray,
		ReferenceSequenceID: cram.UnmappedReferenceID,
		ReadLength:          10,
		AlignmentStart:      &pos,
		ReadGroupID:         cram.MissingReadGroupID,
		ReadName:            "read2",
		Features: []feature.Feature{
			feature.Substitution(2, cram.BaseA, cram.BaseC),
			feature.Deletion(5, 3),
		},
		MappingQuality: 40,
		QualityScores:  []cram.QScore{30, 31, 32, 33, 34, 35, 36, 37, 38, 39},
	}
	d.Preservation.ReadNamesIncluded = true
	d.Preservation.APDataSeriesDelta = false

	require.NoError(t, d.EncodeRecord(sinks, r))

	got, err := d.DecodeRecord(makeSources())
	require.NoError(t, err)
	rank, err := d.Preservation.SubstitutionMatrix.Rank(cram.BaseA, cram.BaseC)
	require.NoError(t, err)
	wantFeatures := []feature.Feature{
		feature.SubstitutionCode(2, int32(rank)),
		feature.Deletion(5, 3),
	}
	require.Equal(t, wantFeatures, got.Features)
	require.Equal(t, r.MappingQuality, got.MappingQuality)
	require.Equal(t, r.QualityScores, got.QualityScores)
	require.NotNil(t, got.AlignmentStart)
	require.Equal(t, *r.AlignmentStart, *got.AlignmentStart)
}

func TestRecordAlignmentStartDeltaAcrossRecords(t *testing.T) {
	d, sinks, makeSources := newTestDriver(false, nil)
	d.Preservation.ReadNamesIncluded = true
	d.Preservation.APDataSeriesDelta = true

	pos1 := cram.Position(50)
	r1 := &record.Record{
		BAMFlags: sam.Unmapped, ReadLength: 1, ReadGroupID: cram.MissingReadGroupID,
		ReadName: "a", AlignmentStart: &pos1, Bases: []cram.Base{cram.BaseA},
	}
	pos2 := cram.Position(55)
	r2 := &record.Record{
		BAMFlags: sam.Unmapped, ReadLength: 1, ReadGroupID: cram.MissingReadGroupID,
		ReadName: "b", AlignmentStart: &pos2, Bases: []cram.Base{cram.BaseC},
	}

	require.NoError(t, d.EncodeRecord(sinks, r1))
	require.NoError(t, d.EncodeRecord(sinks, r2))

	sources := makeSources()
	d2, _, _ := newTestDriver(false, nil)
	d2.Preservation = d.Preservation

	got1, err := d2.DecodeRecord(sources)
	require.NoError(t, err)
	require.Equal(t, *r1.AlignmentStart, *got1.AlignmentStart)

	got2, err := d2.DecodeRecord(sources)
	require.NoError(t, err)
	require.Equal(t, *r2.AlignmentStart, *got2.AlignmentStart)
}

func TestRecordDetachedMateData(t *testing.T) {
	d, sinks, makeSources := newTestDriver(false, nil)
	d.Preservation.ReadNamesIncluded = false

	r := &record.Record{
		BAMFlags:                        sam.Unmapped,
		CRAMFlags:                       record.FlagDetached,
		ReadLength:                      1,
		ReadGroupID:                     cram.MissingReadGroupID,
		ReadName:                        "mate1",
		NextMateFlags:                   3,
		NextFragmentReferenceSequenceID: cram.UnmappedReferenceID,
		TemplateSize:                    200,
		Bases:                           []cram.Base{cram.BaseN},
	}

	require.NoError(t, d.EncodeRecord(sinks, r))

	got, err := d.DecodeRecord(makeSources())
	require.NoError(t, err)
	require.Equal(t, r.ReadName, got.ReadName)
	require.Equal(t, r.NextMateFlags, got.NextMateFlags)
	require.Equal(t, r.TemplateSize, got.TemplateSize)
}

func TestRecordHasMateDownstream(t *testing.T) {
	d, sinks, makeSources := newTestDriver(false, nil)
	d.Preservation.ReadNamesIncluded = true

	r := &record.Record{
		BAMFlags:               sam.Unmapped,
		CRAMFlags:              record.FlagHasMateDownstream,
		ReadLength:             1,
		ReadGroupID:            cram.MissingReadGroupID,
		ReadName:               "x",
		DistanceToNextFragment: 7,
		Bases:                  []cram.Base{cram.BaseG},
	}

	require.NoError(t, d.EncodeRecord(sinks, r))

	got, err := d.DecodeRecord(makeSources())
	require.NoError(t, err)
	require.Equal(t, int32(7), got.DistanceToNextFragment)
}

func TestRecordTags(t *testing.T) {
	id1 := tagenc.Pack([2]byte{'N', 'M'}, 'i')
	id2 := tagenc.Pack([2]byte{'A', 'S'}, 'i')
	td := &tagenc.Dictionary{Lines: [][]tagenc.ID{{id1, id2}}}

	d, sinks, makeSources := newTestDriver(false, td)
	d.Preservation.ReadNamesIncluded = true
	d.TagEncodings.Set(id1, codec.ByteArrayLen(codec.External(22), codec.External(23)))
	d.TagEncodings.Set(id2, codec.ByteArrayLen(codec.External(22), codec.External(23)))

	r := &record.Record{
		BAMFlags:    sam.Unmapped,
		ReadLength:  1,
		ReadGroupID: cram.MissingReadGroupID,
		ReadName:    "tagged",
		Tags: []record.Tag{
			{ID: id1, Value: []byte{0}},
			{ID: id2, Value: []byte{1}},
		},
		Bases: []cram.Base{cram.BaseT},
	}

	require.NoError(t, d.EncodeRecord(sinks, r))

	got, err := d.DecodeRecord(makeSources())
	require.NoError(t, err)
	require.Equal(t, r.Tags, got.Tags)
}

func TestTagAuxRoundTrip(t *testing.T) {
	aux, err := sam.NewAux(sam.NewTag("NM"), int8(3))
	require.NoError(t, err)

	tag, err := record.TagFromAux(aux)
	require.NoError(t, err)
	require.Equal(t, tagenc.Pack([2]byte{'N', 'M'}, 'c'), tag.ID)
	require.Equal(t, aux, tag.Aux())

	_, err = record.TagFromAux(sam.Aux{'N'})
	require.ErrorIs(t, err, cram.ErrInvalidInput)
}

func TestRecordTagLineNotFoundErrors(t *testing.T) {
	d, sinks, _ := newTestDriver(false, nil)
	d.Preservation.ReadNamesIncluded = true

	r := &record.Record{
		BAMFlags:    sam.Unmapped,
		ReadLength:  1,
		ReadGroupID: cram.MissingReadGroupID,
		ReadName:    "x",
		Tags:        []record.Tag{{ID: tagenc.Pack([2]byte{'Z', 'Z'}, 'i'), Value: []byte{0}}},
		Bases:       []cram.Base{cram.BaseA},
	}

	err := d.EncodeRecord(sinks, r)
	require.ErrorIs(t, err, cram.ErrTagLineNotFound)
}

func TestRecordMissingDataSeriesEncoding(t *testing.T) {
	sm := substitution.NewHistogram().Build()
	td := &tagenc.Dictionary{Lines: [][]tagenc.ID{{}}}
	d := &record.Driver{
		DSEM:         dsem.NewMap(),
		Preservation: preservation.New(sm, td),
		TagEncodings: tagenc.NewMap(),
	}

	r := &record.Record{
		BAMFlags:    sam.Unmapped,
		ReadLength:  1,
		ReadGroupID: cram.MissingReadGroupID,
		Bases:       []cram.Base{cram.BaseA},
	}
	err := d.EncodeRecord(codec.Sinks{}, r)
	require.ErrorIs(t, err, cram.ErrMissingDataSeriesEncoding)
}

func TestRecordRestoreSequence(t *testing.T) {
	d, sinks, makeSources := newTestDriver(false, nil)
	d.Preservation.ReadNamesIncluded = true
	d.Preservation.APDataSeriesDelta = false

	ref := []cram.Base{
		cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseT,
		cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseT,
	}
	pos := cram.Position(2)
	r := &record.Record{
		BAMFlags:       0,
		ReadLength:     4,
		AlignmentStart: &pos,
		ReadGroupID:    cram.MissingReadGroupID,
		ReadName:       "restored",
		Features: []feature.Feature{
			feature.Substitution(3, cram.BaseT, cram.BaseA),
		},
		MappingQuality: 30,
	}
	require.NoError(t, d.EncodeRecord(sinks, r))

	d2, _, _ := newTestDriver(false, nil)
	d2.Preservation = d.Preservation
	got, err := d2.DecodeRecord(makeSources())
	require.NoError(t, err)
	require.Empty(t, got.Bases)

	require.NoError(t, d2.RestoreSequence(got, ref))
	// Read covers reference positions 2-5 (CGTA) with position 3 (the
	// reference T) substituted to A.
	require.Equal(t, []cram.Base{cram.BaseC, cram.BaseG, cram.BaseA, cram.BaseA}, got.Bases)
}

func TestRecordCigar(t *testing.T) {
	pos := cram.Position(1)
	r := &record.Record{
		ReadLength:     6,
		AlignmentStart: &pos,
		Features: []feature.Feature{
			feature.SoftClip(1, []cram.Base{cram.BaseT, cram.BaseT}),
			feature.Deletion(3, 2),
		},
	}
	want := sam.Cigar{
		sam.NewCigarOp(sam.CigarSoftClipped, 2),
		sam.NewCigarOp(sam.CigarDeletion, 2),
		sam.NewCigarOp(sam.CigarMatch, 4),
	}
	require.Equal(t, want, r.Cigar())
}

func TestRecordAlignmentStartMismatchErrors(t *testing.T) {
	d, sinks, _ := newTestDriver(false, nil)
	d.Preservation.ReadNamesIncluded = true
	d.Preservation.APDataSeriesDelta = true

	pos := cram.Position(10)
	r := &record.Record{
		BAMFlags: sam.Unmapped, ReadLength: 1, ReadGroupID: cram.MissingReadGroupID,
		ReadName: "x", AlignmentStart: &pos, Bases: []cram.Base{cram.BaseA},
	}
	err := d.EncodeRecord(sinks, r)
	require.NoError(t, err)

	r2 := &record.Record{
		BAMFlags: sam.Unmapped, ReadLength: 1, ReadGroupID: cram.MissingReadGroupID,
		ReadName: "y", Bases: []cram.Base{cram.BaseA},
	}
	err = d.EncodeRecord(sinks, r2)
	require.ErrorIs(t, err, cram.ErrInvalidInput)
}
