package ingest

import (
	"github.com/asticode/go-astits"

	"github.com/ethan/wfd-sink/pkg/media"
)

// handleAudioPES frames one TS-demuxed audio PES into media.Frame
// values: an AAC PES carries one or more back-to-back ADTS frames, so
// it is split the same way the teacher's RTP depacketizer splits one
// RTP packet into multiple AU-headers-delimited AUs (pkg/rtp/aac.go);
// an LPCM PES is already exactly one access unit and passes through
// whole, matching RtpDecoderTs's one-AACFrame-per-AVPacket shape
// generalized to whichever codec was negotiated.
func (d *demuxer) handleAudioPES(pes *astits.PESData) {
	pts, dts, ok := pesTimestamps(pes)
	if !ok {
		return
	}

	switch d.audioKind {
	case streamTypeAACAudio:
		for _, au := range splitADTSFrames(pes.Data) {
			d.onFrame(media.Frame{
				Codec:   media.CodecAAC,
				Track:   media.TrackAudio,
				DTS:     dts,
				PTS:     pts,
				Payload: au,
			})
		}
	default:
		d.onFrame(media.Frame{
			Codec:   media.CodecPCMS16BE,
			Track:   media.TrackAudio,
			DTS:     dts,
			PTS:     pts,
			Payload: pes.Data,
		})
	}
}

// adtsHeaderLen is the fixed ADTS header size for streams without CRC
// protection (protection_absent=1), the common case for live WFD AAC.
const adtsHeaderLen = 7

// splitADTSFrames walks a byte run of concatenated ADTS frames and
// returns each frame's payload (header included, matching the
// dispatcher's convention of carrying whatever wire format the
// decoder backend expects to strip itself). Malformed trailing bytes
// that don't form a full frame are dropped.
func splitADTSFrames(buf []byte) [][]byte {
	var frames [][]byte
	for len(buf) >= adtsHeaderLen {
		if buf[0] != 0xFF || buf[1]&0xF0 != 0xF0 {
			break
		}
		frameLen := int(buf[3]&0x03)<<11 | int(buf[4])<<3 | int(buf[5])>>5
		if frameLen < adtsHeaderLen || frameLen > len(buf) {
			break
		}
		frames = append(frames, buf[:frameLen])
		buf = buf[frameLen:]
	}
	return frames
}
