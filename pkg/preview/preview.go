// Package preview implements the optional diagnostics preview bridge
// (C14, §11): a loopback WebRTC mirror of this sink's decoded video,
// so a developer can watch what the sink is rendering from a browser
// tab without touching the production renderer path. Off by default;
// cmd/wfdsink enables it when -preview-addr names a bind address or
// when diagnostics_enabled is set in config.
//
// Adapted wholesale from pkg/bridge/bridge.go + pkg/bridge/pacer.go —
// same PeerConnection setup, H.264 NALU payloader, leaky-bucket pacer,
// and RTCP reader goroutines — re-themed from "relay a camera to
// Cloudflare Calls" to "mirror sink output to a loopback browser
// viewer": CreateSession's Cloudflare REST round trip is replaced by
// one HTTP handler that takes a browser's SDP offer and returns this
// PeerConnection's answer directly (no external signaling service is
// needed for a same-host preview).
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"

	"github.com/ethan/wfd-sink/pkg/bridge"
	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/nal"
	"github.com/ethan/wfd-sink/pkg/wfdlog"
)

// Bridge mirrors decoded video frames to a single loopback WebRTC
// viewer. Only one viewer is supported at a time, matching the
// diagnostics-tool scope this exists for.
type Bridge struct {
	logger *wfdlog.Logger

	pc         *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticRTP

	pacer         *bridge.Pacer
	h264Payloader *codecs.H264Payloader
	videoSeqNum   uint16
	videoMu       sync.Mutex

	connStateMu     sync.RWMutex
	cachedConnState webrtc.PeerConnectionState

	httpServer *http.Server
}

// New constructs a preview Bridge. Call Start to bind the signaling
// HTTP endpoint; the PeerConnection itself is created lazily per
// incoming offer since only one viewer is served at a time.
func New(logger *wfdlog.Logger) *Bridge {
	return &Bridge{
		logger:          logger,
		h264Payloader:   &codecs.H264Payloader{},
		videoSeqNum:     uint16(time.Now().UnixNano() & 0xFFFF),
		cachedConnState: webrtc.PeerConnectionStateNew,
	}
}

// Start serves a single POST /offer endpoint accepting a browser's
// SDP offer (JSON {"sdp": "...", "type": "offer"}) and replying with
// this bridge's answer, then blocks until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/offer", b.handleOffer)

	b.httpServer = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return b.Close()
	case err := <-errCh:
		return err
	}
}

func (b *Bridge) handleOffer(w http.ResponseWriter, r *http.Request) {
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, fmt.Sprintf("decode offer: %v", err), http.StatusBadRequest)
		return
	}

	answer, err := b.negotiate(offer)
	if err != nil {
		http.Error(w, fmt.Sprintf("negotiate: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}

func (b *Bridge) negotiate(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", "wfd-sink-preview",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("new video track: %w", err)
	}

	sender, err := pc.AddTrack(videoTrack)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video track: %w", err)
	}
	go b.readRTCP(sender)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		b.connStateMu.Lock()
		b.cachedConnState = state
		b.connStateMu.Unlock()
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	b.pc = pc
	b.videoTrack = videoTrack
	b.pacer = bridge.NewPacer(context.Background(), b.slogger())
	b.pacer.SetWriteCallbacks(b.writeVideoSampleDirect, nil)
	b.pacer.Start()

	return pc.LocalDescription(), nil
}

// Render implements pkg/decoder.VideoRenderer, letting a Bridge sit
// directly in a decoder.Options.VideoSink slot alongside (or instead
// of) the production renderer. Non-video frames and audio are ignored;
// this mirror is video-only.
func (b *Bridge) Render(f media.Frame) error {
	if f.Codec != media.CodecH264 {
		return nil
	}
	return b.WriteVideoSample(f.Payload, uint32(f.PTS))
}

// WriteVideoSample accepts one Annex-B start-code-prefixed NAL unit —
// this stack's media.Frame.Payload convention (pkg/ingest emits one
// media.Frame per NAL, and a pass-through decoder.Backend carries that
// convention through to DecodedSample.Data unchanged) — and enqueues
// it with the pacer as a bridge.PacedPacket.
func (b *Bridge) WriteVideoSample(data []byte, rtpTimestamp uint32) error {
	if b.pacer == nil {
		return nil // no viewer connected yet
	}
	return b.pacer.EnqueueVideo(&bridge.PacedPacket{
		Timestamp:  rtpTimestamp,
		NALUs:      data,
		TrackType:  "video",
		ReceivedAt: time.Now(),
	})
}

func (b *Bridge) writeVideoSampleDirect(data []byte, timestamp uint32) error {
	if b.videoTrack == nil {
		return fmt.Errorf("preview: video track not initialized")
	}

	nalus := splitAnnexB(data)
	if len(nalus) == 0 {
		return nil
	}

	b.videoMu.Lock()
	seqNum := b.videoSeqNum
	b.videoMu.Unlock()

	const mtu = 1200
	for naluIdx, nalu := range nalus {
		payloads := b.h264Payloader.Payload(mtu, nalu)
		for i, payload := range payloads {
			packet := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    96,
					SequenceNumber: seqNum,
					Timestamp:      timestamp,
					Marker:         naluIdx == len(nalus)-1 && i == len(payloads)-1,
				},
				Payload: payload,
			}
			if err := b.videoTrack.WriteRTP(packet); err != nil {
				return fmt.Errorf("write rtp: %w", err)
			}
			seqNum++
		}
	}

	b.videoMu.Lock()
	b.videoSeqNum = seqNum
	b.videoMu.Unlock()
	return nil
}

// slogger returns the embedded *slog.Logger, falling back to the
// package default when no wfdlog.Logger was supplied — bridge.Pacer
// dereferences its logger unconditionally.
func (b *Bridge) slogger() *slog.Logger {
	if b.logger != nil {
		return b.logger.Logger
	}
	return slog.Default()
}

func (b *Bridge) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// splitAnnexB locates every Annex-B start-code-delimited NAL unit in
// data using pkg/nal's scanner and returns the bare NAL bodies (start
// codes stripped) the H264Payloader expects. Usually one NAL in, one
// NAL out, but handles a multi-NAL access unit gracefully too.
func splitAnnexB(data []byte) [][]byte {
	units := nal.Split(data)
	nalus := make([][]byte, 0, len(units))
	for _, u := range units {
		nalus = append(nalus, u.Bytes(data))
	}
	return nalus
}

// Close tears down the active viewer connection and signaling server,
// if any.
func (b *Bridge) Close() error {
	if b.pacer != nil {
		b.pacer.Stop()
	}
	if b.pc != nil {
		_ = b.pc.Close()
	}
	if b.httpServer != nil {
		return b.httpServer.Close()
	}
	return nil
}
