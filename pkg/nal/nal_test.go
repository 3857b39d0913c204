package nal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_ConcatenationInvariant(t *testing.T) {
	buf := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0xAA, 0xBB, // SPS (4-byte start code)
		0x00, 0x00, 0x01, 0x68, 0xCC, // PPS (3-byte start code)
		0x00, 0x00, 0x01, 0x65, 0xDD, 0xEE, 0xFF, // IDR slice
	}

	units := Split(buf)
	require.Len(t, units, 3)

	require.Equal(t, TypeSPS, units[0].Type(buf))
	require.Equal(t, TypePPS, units[1].Type(buf))
	require.Equal(t, TypeIDR, units[2].Type(buf))

	for _, u := range units {
		whole := buf[u.Offset-u.PrefixLen : u.Offset+u.Length]
		require.Equal(t, buf[u.Offset-u.PrefixLen:u.Offset+u.Length], whole)
		require.True(t, u.Type(buf)&0x1F == u.Type(buf))
	}
}

func TestSplit_TrailingBytesNoStartCode(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x01, 0x09, 0xF0}
	units := Split(buf)
	require.Len(t, units, 1)
	require.Equal(t, TypeAUD, units[0].Type(buf))
	require.Equal(t, 2, units[0].Length)
}

func TestSplit_NoStartCode(t *testing.T) {
	require.Nil(t, Split([]byte{0x01, 0x02, 0x03}))
}

func TestAppendLengthPrefixed(t *testing.T) {
	dst := AppendLengthPrefixed(nil, []byte{0xAA, 0xBB})
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x02, 0xAA, 0xBB}, dst)
}
