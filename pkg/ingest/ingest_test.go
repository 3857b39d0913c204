package ingest

import (
	"testing"

	"github.com/asticode/go-astits"
	"github.com/stretchr/testify/require"

	"github.com/ethan/wfd-sink/pkg/media"
)

func syntheticPES(t *testing.T, data []byte, pts int64) *astits.PESData {
	t.Helper()
	return &astits.PESData{
		Data: data,
		Header: &astits.PESHeader{
			OptionalHeader: &astits.PESOptionalHeader{
				PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
				PTS:             &astits.ClockReference{Base: pts},
			},
		},
	}
}

func TestSplitADTSFrames_WalksBackToBackFrames(t *testing.T) {
	frame := func(payloadLen int) []byte {
		total := adtsHeaderLen + payloadLen
		b := make([]byte, total)
		b[0] = 0xFF
		b[1] = 0xF1
		b[3] = byte((total >> 11) & 0x03)
		b[4] = byte((total >> 3) & 0xFF)
		b[5] = byte((total & 0x07) << 5)
		return b
	}

	buf := append(frame(4), frame(6)...)
	frames := splitADTSFrames(buf)
	require.Len(t, frames, 2)
	require.Len(t, frames[0], adtsHeaderLen+4)
	require.Len(t, frames[1], adtsHeaderLen+6)
}

func TestSplitADTSFrames_StopsOnMalformedSync(t *testing.T) {
	frames := splitADTSFrames([]byte{0x00, 0x01, 0x02})
	require.Empty(t, frames)
}

func TestDemuxer_HandleVideoPESEmitsOneFramePerNALUnit(t *testing.T) {
	var got []media.Frame
	d := &demuxer{
		onFrame:  func(f media.Frame) { got = append(got, f) },
		videoPID: 256,
	}

	pes := syntheticPES(t, []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0xAA, // SPS
		0x00, 0x00, 0x00, 0x01, 0x68, 0xBB, // PPS
		0x00, 0x00, 0x00, 0x01, 0x65, 0xCC, // IDR slice
	}, 90000)
	d.handleVideoPES(pes)

	require.Len(t, got, 3)
	require.False(t, got[0].KeyFrame)
	require.False(t, got[1].KeyFrame)
	require.True(t, got[2].KeyFrame)
	for _, f := range got {
		require.Equal(t, media.CodecH264, f.Codec)
		require.Equal(t, int64(90000), f.PTS)
	}
}

func TestDemuxer_HandleAudioPESSplitsAACFrames(t *testing.T) {
	var got []media.Frame
	d := &demuxer{
		onFrame:   func(f media.Frame) { got = append(got, f) },
		audioPID:  257,
		audioKind: streamTypeAACAudio,
	}

	au := make([]byte, adtsHeaderLen+3)
	au[0], au[1] = 0xFF, 0xF1
	total := len(au)
	au[3] = byte((total >> 11) & 0x03)
	au[4] = byte((total >> 3) & 0xFF)
	au[5] = byte((total & 0x07) << 5)

	pes := syntheticPES(t, au, 48000)
	d.handleAudioPES(pes)

	require.Len(t, got, 1)
	require.Equal(t, media.CodecAAC, got[0].Codec)
	require.Equal(t, media.TrackAudio, got[0].Track)
}
