package dsem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/cram"
	"github.com/grailbio/cram/codec"
	"github.com/grailbio/cram/dsem"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := dsem.NewMap()
	m.Set(dsem.BF, codec.External(0))
	m.Set(dsem.RL, codec.Beta(0, 8))
	m.Set(dsem.RN, codec.ByteArrayStop(0, 1))
	buf := m.Marshal()

	got, n, err := dsem.Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	e, err := got.Get(dsem.BF)
	require.NoError(t, err)
	require.Equal(t, codec.KindExternal, e.Kind)

	e, err = got.Get(dsem.RL)
	require.NoError(t, err)
	require.Equal(t, codec.KindBeta, e.Kind)

	require.True(t, got.Has(dsem.RN))
	require.False(t, got.Has(dsem.MQ))
}

func TestGetMissingKeyErrors(t *testing.T) {
	m := dsem.NewMap()
	_, err := m.Get(dsem.BF)
	require.ErrorIs(t, err, cram.ErrMissingDataSeriesEncoding)
}

func TestUnknownKeyRejected(t *testing.T) {
	m := dsem.NewMap()
	m.Set(dsem.Key("ZZ"), codec.External(0))
	buf := m.Marshal()

	_, _, err := dsem.Unmarshal(buf)
	require.ErrorIs(t, err, cram.ErrInvalidData)
}

func TestReservedKeysAcceptedAndDiscarded(t *testing.T) {
	m := dsem.NewMap()
	m.Set(dsem.BF, codec.External(0))
	m.Set(dsem.TC, codec.External(1))
	m.Set(dsem.TN, codec.External(2))
	buf := m.Marshal()

	got, _, err := dsem.Unmarshal(buf)
	require.NoError(t, err)
	require.False(t, got.Has(dsem.TC))
	require.False(t, got.Has(dsem.TN))
	require.True(t, got.Has(dsem.BF))
}
