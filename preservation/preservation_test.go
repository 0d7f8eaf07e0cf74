package preservation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/preservation"
	"github.com/grailbio/cram/substitution"
	"github.com/grailbio/cram/tagenc"
)

func newDefaultHistogram() *substitution.Histogram {
	h := substitution.NewHistogram()
	h.Hit(cram.BaseA, cram.BaseC)
	return h
}

func newCommentOnlyDictionary() *tagenc.Dictionary {
	d := &tagenc.Dictionary{}
	d.IndexOf([]tagenc.ID{tagenc.Pack([2]byte{'C', 'O'}, 'Z')})
	return d
}

// RN=false, AP=false, RR=false, SM=default matrix, TD=[[CO:Z]].
func TestUnmarshalPreservationMap(t *testing.T) {
	data := []byte{
		0x18,       // data_len = 24
		0x05,       // map_len = 5
		0x52, 0x4e, // key = "RN"
		0x00, // RN = false
		0x41, 0x50, // key = "AP"
		0x00, // AP = false
		0x52, 0x52, // key = "RR"
		0x00, // RR = false
		0x53, 0x4d, // key = "SM"
		0x1b, 0x1b, 0x1b, 0x1b, 0x1b, // substitution matrix
		0x54, 0x44, // key = "TD"
		0x04, 0x43, 0x4f, 0x5a, 0x00, // tag ids dictionary = [[CO:Z]]
	}

	m, n, err := preservation.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.False(t, m.ReadNamesIncluded)
	require.False(t, m.APDataSeriesDelta)
	require.False(t, m.ReferenceRequired)
	require.Len(t, m.TagIDsDictionary.Lines, 1)
	require.Len(t, m.TagIDsDictionary.Lines[0], 1)
}

func TestUnmarshalMissingSubstitutionMatrix(t *testing.T) {
	data := []byte{
		0x08, // data_len = 8
		0x01, // map_len = 1
		0x54, 0x44, // key = "TD"
		0x04, 0x43, 0x4f, 0x5a, 0x00, // tag ids dictionary = [[CO:Z]]
	}
	_, _, err := preservation.Unmarshal(data)
	require.Error(t, err)
}

func TestUnmarshalMissingTagIDsDictionary(t *testing.T) {
	data := []byte{
		0x08, // data_len = 8
		0x01, // map_len = 1
		0x53, 0x4d, // key = "SM"
		0x1b, 0x1b, 0x1b, 0x1b, 0x1b, // substitution matrix
	}
	_, _, err := preservation.Unmarshal(data)
	require.Error(t, err)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	h := newDefaultHistogram()
	sm := h.Build()
	td := newCommentOnlyDictionary()
	m := preservation.New(sm, td)
	m.ReadNamesIncluded = false

	buf := m.Marshal()
	got, n, err := preservation.Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.False(t, got.ReadNamesIncluded)
	require.True(t, got.APDataSeriesDelta)
	require.True(t, got.ReferenceRequired)
	require.Equal(t, td.Lines, got.TagIDsDictionary.Lines)
}
