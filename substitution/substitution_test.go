package substitution_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/substitution"
)

func TestHistogramBuildRanksByDescendingCount(t *testing.T) {
	h := substitution.NewHistogram()
	// ref=A: C hit 5x, G hit 1x, T hit 1x, N never -> C first, then G<T tie
	// broken canonically, then N last.
	for i := 0; i < 5; i++ {
		h.Hit(cram.BaseA, cram.BaseC)
	}
	h.Hit(cram.BaseA, cram.BaseG)
	h.Hit(cram.BaseA, cram.BaseT)

	m := h.Build()
	c0, err := m.Code(cram.BaseA, 0)
	require.NoError(t, err)
	require.Equal(t, cram.BaseC, c0)
	c1, err := m.Code(cram.BaseA, 1)
	require.NoError(t, err)
	require.Equal(t, cram.BaseG, c1)
	c2, err := m.Code(cram.BaseA, 2)
	require.NoError(t, err)
	require.Equal(t, cram.BaseT, c2)
	c3, err := m.Code(cram.BaseA, 3)
	require.NoError(t, err)
	require.Equal(t, cram.BaseN, c3)
}

func TestHistogramFromReferenceWalk(t *testing.T) {
	reference := "ACAGGAATAANNNNNN"
	// Observed read bases at a handful of 1-based reference positions.
	observations := map[int]byte{1: 'T', 3: 'T', 6: 'C', 7: 'G', 9: 'G', 10: 'T'}

	h := substitution.NewHistogram()
	for pos, readByte := range observations {
		ref, err := cram.BaseFromByte(reference[pos-1])
		require.NoError(t, err)
		read, err := cram.BaseFromByte(readByte)
		require.NoError(t, err)
		if ref != read {
			h.Hit(ref, read)
		}
	}
	m := h.Build()

	wantRows := map[cram.Base][4]cram.Base{
		// T seen 3x, G 2x, C 1x at A-reference positions; N never.
		cram.BaseA: {cram.BaseT, cram.BaseG, cram.BaseC, cram.BaseN},
		// No observations: canonical non-self order.
		cram.BaseC: {cram.BaseA, cram.BaseG, cram.BaseT, cram.BaseN},
		cram.BaseG: {cram.BaseA, cram.BaseC, cram.BaseT, cram.BaseN},
		cram.BaseT: {cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseN},
		cram.BaseN: {cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseT},
	}
	for ref, want := range wantRows {
		for rank, wantBase := range want {
			got, err := m.Code(ref, rank)
			require.NoError(t, err)
			require.Equalf(t, wantBase, got, "ref %v rank %d", ref, rank)
		}
	}
}

func TestHistogramHitPanicsOnSelfSubstitution(t *testing.T) {
	h := substitution.NewHistogram()
	require.Panics(t, func() { h.Hit(cram.BaseA, cram.BaseA) })
}

func TestMatrixRankIsInverseOfCode(t *testing.T) {
	h := substitution.NewHistogram()
	h.Hit(cram.BaseG, cram.BaseT)
	h.Hit(cram.BaseG, cram.BaseT)
	h.Hit(cram.BaseG, cram.BaseA)
	m := h.Build()

	rank, err := m.Rank(cram.BaseG, cram.BaseT)
	require.NoError(t, err)
	require.Equal(t, 0, rank)

	base, err := m.Code(cram.BaseG, rank)
	require.NoError(t, err)
	require.Equal(t, cram.BaseT, base)
}

func TestMatrixMarshalUnmarshalRoundTrip(t *testing.T) {
	h := substitution.NewHistogram()
	h.Hit(cram.BaseA, cram.BaseG)
	h.Hit(cram.BaseC, cram.BaseT)
	h.Hit(cram.BaseC, cram.BaseT)
	h.Hit(cram.BaseN, cram.BaseA)
	m := h.Build()

	buf := m.Marshal()
	require.Len(t, buf, cram.NumBases)

	got, err := substitution.Unmarshal(buf)
	require.NoError(t, err)
	for _, ref := range []cram.Base{cram.BaseA, cram.BaseC, cram.BaseG, cram.BaseT, cram.BaseN} {
		for rank := 0; rank < 4; rank++ {
			want, err := m.Code(ref, rank)
			require.NoError(t, err)
			gotCode, err := got.Code(ref, rank)
			require.NoError(t, err)
			require.Equal(t, want, gotCode)
		}
	}
}

func TestUnmarshalWrongLength(t *testing.T) {
	_, err := substitution.Unmarshal([]byte{1, 2, 3})
	require.Error(t, err)
}
