package preview

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAnnexB_SinglePrefixedNALUnit(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xAA, 0xBB}
	nalus := splitAnnexB(data)
	require.Len(t, nalus, 1)
	require.Equal(t, []byte{0x65, 0xAA, 0xBB}, nalus[0])
}

func TestSplitAnnexB_MultipleNALUnitsInOneAccessUnit(t *testing.T) {
	var data []byte
	data = append(data, 0x00, 0x00, 0x00, 0x01, 0x67, 0xAA) // SPS
	data = append(data, 0x00, 0x00, 0x01, 0x68, 0xBB)       // PPS, 3-byte start code
	nalus := splitAnnexB(data)
	require.Len(t, nalus, 2)
	require.Equal(t, []byte{0x67, 0xAA}, nalus[0])
	require.Equal(t, []byte{0x68, 0xBB}, nalus[1])
}

func TestSplitAnnexB_NoStartCodeYieldsNothing(t *testing.T) {
	require.Empty(t, splitAnnexB([]byte{0xAA, 0xBB, 0xCC}))
	require.Empty(t, splitAnnexB(nil))
}

func TestBridge_WriteVideoSampleWithoutViewerIsNoop(t *testing.T) {
	b := New(nil)
	err := b.WriteVideoSample([]byte{0x00, 0x00, 0x00, 0x01, 0xAA}, 90000)
	require.NoError(t, err)
}

func TestBridge_CloseWithoutStartIsNoop(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Close())
}
