package itf8_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/cram/itf8"
)

func roundTripInt32(t *testing.T, v int32) {
	t.Helper()
	buf := itf8.PutInt32(nil, v)
	require.Equal(t, len(buf), itf8.AppendedLen(v))
	got, n, err := itf8.GetInt32(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, v, got)

	got2, err := itf8.GetInt32Reader(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, v, got2)
}

func TestITF8RoundTrip(t *testing.T) {
	values := []int32{
		0, 1, 5, 127, 128, 255, 256, 8191, 8192, 16383, 16384,
		1 << 20, 1<<21 - 1, 1 << 21, 1 << 27, 1<<28 - 1, 1 << 28,
		math.MaxInt32, math.MinInt32, -1, -5, -128, -1000000,
	}
	for _, v := range values {
		roundTripInt32(t, v)
	}
}

func TestITF8SingleByteValues(t *testing.T) {
	require.Equal(t, []byte{5}, itf8.PutInt32(nil, 5))
	require.Equal(t, []byte{13}, itf8.PutInt32(nil, 13))
	require.Equal(t, []byte{21}, itf8.PutInt32(nil, 21))
}

func TestITF8SentinelNegativeOne(t *testing.T) {
	buf := itf8.PutInt32(nil, -1)
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, buf)
	v, n, err := itf8.GetInt32(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, int32(-1), v)
}

func TestITF8ShortBuffer(t *testing.T) {
	_, _, err := itf8.GetInt32([]byte{0x80})
	require.Error(t, err)
	_, _, err = itf8.GetInt32(nil)
	require.Error(t, err)
}

func roundTripInt64(t *testing.T, v int64) {
	t.Helper()
	buf := itf8.PutInt64(nil, v)
	got, n, err := itf8.GetInt64(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, v, got)
}

func TestLTF8RoundTrip(t *testing.T) {
	values := []int64{
		0, 1, 127, 128, 1 << 14, 1 << 21, 1 << 28, 1 << 35, 1 << 42, 1 << 49, 1 << 56,
		math.MaxInt64, math.MinInt64, -1, -123456789012345,
	}
	for _, v := range values {
		roundTripInt64(t, v)
	}
}
