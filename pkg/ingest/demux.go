package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/wfdlog"
)

// streamType mirrors the MPEG-2 TS PMT stream_type values this sink
// recognizes. WFD mandates H.264 video; audio is negotiated as one of
// LPCM/AAC/AC-3 (spec.md §4.2) — this rendition carries AAC (ADTS) and
// raw LPCM, the two the teacher's AudioTrack/CodecID enum already
// names.
const (
	streamTypeH264Video = 0x1b
	streamTypeAACAudio  = 0x0f
	streamTypeLPCMAudio = 0x83 // private/registered descriptor in practice; treated as raw PES passthrough
)

// demuxer wraps an astits.Demuxer over the ingest pipe, discovering
// the video/audio elementary stream PIDs from the PMT and converting
// each PES into one or more media.Frame values.
type demuxer struct {
	dem     *astits.Demuxer
	onFrame func(media.Frame)
	logger  *wfdlog.Logger

	videoPID  uint16
	audioPID  uint16
	audioKind int // streamTypeAACAudio or streamTypeLPCMAudio
}

func newDemuxer(r io.Reader, onFrame func(media.Frame), logger *wfdlog.Logger) (*demuxer, error) {
	if onFrame == nil {
		return nil, fmt.Errorf("ingest: demuxer requires a non-nil OnFrame callback")
	}
	return &demuxer{
		dem:     astits.NewDemuxer(context.Background(), r, astits.DemuxerOptPacketSize(188)),
		onFrame: onFrame,
		logger:  logger,
	}, nil
}

// run pumps astits.NextData until the context is cancelled or the
// underlying pipe closes, discovering PIDs from the PMT and framing
// PES payloads for every recognized stream.
func (d *demuxer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := d.dem.NextData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if d.logger != nil {
				d.logger.DebugTS("ts demux error", "error", err)
			}
			continue
		}

		if data.PMT != nil {
			d.discoverTracks(data.PMT)
			continue
		}
		if data.PES == nil {
			continue
		}

		switch data.PID {
		case d.videoPID:
			d.handleVideoPES(data.PES)
		case d.audioPID:
			d.handleAudioPES(data.PES)
		}
	}
}

func (d *demuxer) discoverTracks(pmt *astits.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		switch es.StreamType {
		case streamTypeH264Video:
			d.videoPID = es.ElementaryPID
		case streamTypeAACAudio:
			d.audioPID = es.ElementaryPID
			d.audioKind = streamTypeAACAudio
		case streamTypeLPCMAudio:
			d.audioPID = es.ElementaryPID
			d.audioKind = streamTypeLPCMAudio
		}
	}
}

// pesTimestamps extracts the PTS/DTS carried by a PES optional header.
// WFD TS streams always carry PTS (DTS only differs from PTS for
// video with B-frames, which the WFD baseline profile excludes) —
// DTS falls back to PTS when absent, matching the original's
// AVPacket dts/pts being equal for this profile.
func pesTimestamps(pes *astits.PESData) (pts, dts int64, ok bool) {
	if pes.Header.OptionalHeader == nil {
		return 0, 0, false
	}
	switch pes.Header.OptionalHeader.PTSDTSIndicator {
	case astits.PTSDTSIndicatorNoPTSOrDTS, astits.PTSDTSIndicatorIsForbidden:
		return 0, 0, false
	case astits.PTSDTSIndicatorOnlyPTS:
		p := int64(pes.Header.OptionalHeader.PTS.Base)
		return p, p, true
	default:
		p := int64(pes.Header.OptionalHeader.PTS.Base)
		dtsVal := p
		if pes.Header.OptionalHeader.DTS != nil {
			dtsVal = int64(pes.Header.OptionalHeader.DTS.Base)
		}
		return p, dtsVal, true
	}
}
