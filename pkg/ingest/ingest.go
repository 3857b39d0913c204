// Package ingest implements the sink's RTP/MPEG-2 TS receive path
// (C3): a UDP receiver for the RTP/AVP/UDP session negotiated in M6,
// an MPEG-2 TS demuxer, and per-elementary-stream framing that emits
// media.Frame values for the buffer dispatcher (pkg/media) to carry
// onward to the decoder runners (pkg/decoder).
//
// Grounded on original_source/utils/rtp_codec_ts.cpp's RtpDecoderTs:
// one queue fed by InputRtp, one decode-thread pulling from it. This
// rendition swaps RtpDecoderTs's FFmpeg avformat/avio custom-IO
// plumbing for github.com/asticode/go-astits, the MPEG-TS demuxer the
// rest of this retrieval pack reaches for (see
// internal/core/udp_source.go's astits.NewDemuxer/dem.NextData loop),
// since this module's stack has no FFmpeg bindings.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	pionrtcp "github.com/pion/rtcp"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/wfdlog"
)

// Config bundles the ingest pipeline's negotiated ports and output
// callbacks.
type Config struct {
	LocalRTPPort  uint16
	LocalRTCPPort uint16
	OnFrame       func(media.Frame)
	OnRTCP        func([]pionrtcp.Packet)
	Logger        *wfdlog.Logger
}

// Ingest owns the RTP/RTCP sockets and the TS demuxer pumping frames
// out of them.
type Ingest struct {
	cfg Config

	rtpConn  net.PacketConn
	rtcpConn net.PacketConn

	tsWriter *io.PipeWriter
	tsReader *io.PipeReader
	demux    *demuxer

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs an Ingest; call Start to open sockets and begin
// receiving.
func New(cfg Config) *Ingest {
	return &Ingest{cfg: cfg}
}

// Start binds the negotiated RTP/RTCP ports and starts the receive,
// demux, and frame-emission goroutines.
func (ig *Ingest) Start(ctx context.Context) error {
	rtpConn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", ig.cfg.LocalRTPPort))
	if err != nil {
		return fmt.Errorf("ingest: listen rtp: %w", err)
	}
	ig.rtpConn = rtpConn

	if ig.cfg.LocalRTCPPort != 0 {
		rtcpConn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", ig.cfg.LocalRTCPPort))
		if err != nil {
			rtpConn.Close()
			return fmt.Errorf("ingest: listen rtcp: %w", err)
		}
		ig.rtcpConn = rtcpConn
	}

	pr, pw := io.Pipe()
	ig.tsReader, ig.tsWriter = pr, pw

	dm, err := newDemuxer(ig.tsReader, ig.cfg.OnFrame, ig.cfg.Logger)
	if err != nil {
		return fmt.Errorf("ingest: new demuxer: %w", err)
	}
	ig.demux = dm

	runCtx, cancel := context.WithCancel(ctx)
	ig.cancel = cancel

	ig.wg.Add(1)
	go func() {
		defer ig.wg.Done()
		ig.rtpReadLoop(runCtx)
	}()

	if ig.rtcpConn != nil {
		ig.wg.Add(1)
		go func() {
			defer ig.wg.Done()
			ig.rtcpReadLoop(runCtx)
		}()
	}

	ig.wg.Add(1)
	go func() {
		defer ig.wg.Done()
		dm.run(runCtx)
	}()

	return nil
}

// Stop closes the sockets and the TS pipe, unblocking every receive
// and demux goroutine, then waits for them to exit.
func (ig *Ingest) Stop() {
	if ig.cancel != nil {
		ig.cancel()
	}
	if ig.rtpConn != nil {
		ig.rtpConn.Close()
	}
	if ig.rtcpConn != nil {
		ig.rtcpConn.Close()
	}
	if ig.tsWriter != nil {
		ig.tsWriter.Close()
	}
	ig.wg.Wait()
}
