package ingest

import (
	"context"
	"errors"
	"net"

	pionrtp "github.com/pion/rtp"

	"github.com/ethan/wfd-sink/pkg/rtcp"
)

// maxUDPDatagram is sized for the WFD-mandated link MTU; a TS-over-RTP
// payload is always a whole multiple of 188 bytes and never
// approaches this.
const maxUDPDatagram = 1500

// rtpReadLoop reads RTP/AVP/UDP datagrams carrying MP2T (payload type
// 33), strips the RTP header, and feeds the raw TS bytes to the
// demuxer's pipe. Unmarshal failures and non-PT-33 packets are
// dropped silently, matching RtpDecoderTs::InputRtp's "payload_size <=
// 0 returns" tolerance for malformed input.
func (ig *Ingest) rtpReadLoop(ctx context.Context) {
	buf := make([]byte, maxUDPDatagram)
	var pkt pionrtp.Packet

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := ig.rtpConn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if pkt.PayloadType != 33 {
			continue
		}

		if _, err := ig.tsWriter.Write(pkt.Payload); err != nil {
			return
		}
	}
}

// rtcpReadLoop parses inbound RTCP compound packets (SR/RR/SDES/BYE/FB
// from the source, per §4.3) and forwards them to the configured
// callback; this rendition does not originate its own RR/SR here —
// that belongs to the session/controller layer that tracks playback
// position, not the raw ingest path.
func (ig *Ingest) rtcpReadLoop(ctx context.Context) {
	buf := make([]byte, maxUDPDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := ig.rtcpConn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		packets, err := rtcp.Parse(buf[:n])
		if err != nil {
			continue
		}
		if ig.cfg.OnRTCP != nil {
			ig.cfg.OnRTCP(packets)
		}
	}
}
