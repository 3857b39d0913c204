package ingest

import (
	"github.com/asticode/go-astits"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/nal"
)

// handleVideoPES splits one TS-demuxed video access unit into its
// constituent NAL units and emits each as its own media.Frame — the
// dispatcher's SPS/PPS caching (pkg/media/dispatcher.go) expects one
// NAL per Frame, the same granularity the teacher's RTP H.264
// depacketizer (pkg/rtp/h264.go) already hands upward per packet.
func (d *demuxer) handleVideoPES(pes *astits.PESData) {
	pts, dts, ok := pesTimestamps(pes)
	if !ok {
		return
	}

	units := nal.Split(pes.Data)
	for _, u := range units {
		naluType := u.Type(pes.Data)
		if naluType == nal.TypeAUD {
			continue
		}

		body := u.Bytes(pes.Data)
		payload := make([]byte, 0, u.PrefixLen+len(body))
		payload = append(payload, pes.Data[u.Offset-u.PrefixLen:u.Offset]...)
		payload = append(payload, body...)

		d.onFrame(media.Frame{
			Codec:    media.CodecH264,
			Track:    media.TrackVideo,
			KeyFrame: naluType == nal.TypeIDR,
			DTS:      dts,
			PTS:      pts,
			Payload:  payload,
		})
	}
}
