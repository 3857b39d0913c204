// Command wfdsink is the Wi-Fi Display (Miracast) sink daemon: it
// connects out to a WFD source's RTSP control port, negotiates the
// handshake (§5), ingests the resulting TS-over-RTP stream (§4), and
// decodes/renders it through the playback controller (§8). Generalized
// from cmd/relay/main.go's Nest-camera → Cloudflare pipeline into a
// WFD source → local-surface pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	pionrtcp "github.com/pion/rtcp"

	"github.com/ethan/wfd-sink/pkg/channel"
	"github.com/ethan/wfd-sink/pkg/config"
	"github.com/ethan/wfd-sink/pkg/controller"
	"github.com/ethan/wfd-sink/pkg/decoder"
	"github.com/ethan/wfd-sink/pkg/diagnostics"
	"github.com/ethan/wfd-sink/pkg/events"
	"github.com/ethan/wfd-sink/pkg/ingest"
	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/preview"
	"github.com/ethan/wfd-sink/pkg/session"
	"github.com/ethan/wfd-sink/pkg/wfdlog"
)

// mediaChannelID names this sink's single media channel (C10); a
// multi-channel host would mint one id per concurrent WFD session.
const mediaChannelID uint32 = 1

// passthroughBackend is the default decoder.Backend when no native
// codec is wired in: it hands the access unit straight to the
// renderer unchanged, matching decoder.Backend's own "(or
// pass-through)" VideoRenderer doc comment. A real deployment swaps
// this for a platform decoder; this module ships none (pkg/decoder's
// Backend boundary is intentionally left for the embedder to fill).
type passthroughBackend struct{}

func (passthroughBackend) Configure(media.AudioTrack, media.VideoTrack) error { return nil }
func (passthroughBackend) Start() error                                      { return nil }
func (passthroughBackend) Stop() error                                       { return nil }
func (passthroughBackend) Release()                                          {}
func (passthroughBackend) Decode(_ context.Context, pts int64, data []byte) (decoder.DecodedSample, error) {
	return decoder.DecodedSample{PTS: pts, Data: data}, nil
}

type nullAudioRenderer struct{}

func (nullAudioRenderer) Render(decoder.DecodedSample) error { return nil }
func (nullAudioRenderer) SetVolume(float32) error             { return nil }
func (nullAudioRenderer) Latency() time.Duration              { return 0 }

func main() {
	fs := flag.NewFlagSet("wfdsink", flag.ExitOnError)
	logFlags := wfdlog.RegisterFlags(fs)

	sourceIP := fs.String("source-ip", "", "WFD source RTSP control address")
	sourcePort := fs.Uint("source-port", 7236, "WFD source RTSP control port")
	envPath := fs.String("env", ".env", "Path to a .env-style configuration file")
	previewAddr := fs.String("preview-addr", "", "Bind address for the diagnostics preview bridge; empty disables it")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -source-ip <addr> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Wi-Fi Display sink\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *sourceIP == "" {
		fs.Usage()
		os.Exit(2)
	}

	logCfg, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := wfdlog.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	wfdlog.SetDefault(log)

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	dispatcher := media.NewDispatcher(cfg.DispatcherCapacity, cfg.DispatcherCapacityStep, 2*time.Second)

	var previewBridge *preview.Bridge
	if *previewAddr != "" || cfg.DiagnosticsEnabled {
		previewBridge = preview.New(log.With("component", "preview"))
	}

	ctrl := controller.New(controller.Options{
		Backend:   passthroughBackend{},
		AudioSink: nullAudioRenderer{},
		VideoSinkFor: func(id controller.SurfaceID) (decoder.VideoRenderer, error) {
			if previewBridge != nil {
				return previewBridge, nil
			}
			return discardVideoRenderer{}, nil
		},
		Dispatcher:    dispatcher,
		ThresholdDrop: time.Duration(cfg.AVSyncThresholdDropMS) * time.Millisecond,
		ThresholdWait: time.Duration(cfg.AVSyncThresholdWaitMS) * time.Millisecond,
		FrameInterval: 33 * time.Millisecond, // nominal 30fps cap on any single sleep-to-wait
	})

	// pkg/channel (C10) sits between the session (C13) and the playback
	// controller (C9): the session drives the channel's producer
	// lifecycle notifications, and the channel translates those into
	// the outward agent events (PROSUMER_CREATE/START/STOP) that this
	// binary's own agent-event handler uses to drive the controller.
	var negotiatedAudio media.AudioTrack
	var negotiatedVideo media.VideoTrack
	var negotiatedPCSource bool

	onAgentEvent := func(ev events.Event) {
		log.Info("media channel agent event", "type", ev.Type.String())
		switch ev.Type {
		case events.TypeProsumerCreate:
			if err := ctrl.Init(negotiatedAudio, negotiatedVideo, negotiatedPCSource); err != nil {
				log.Warn("controller init failed", "error", err)
			}
		case events.TypeProsumerStart:
			if err := ctrl.Start(); err != nil {
				log.Warn("controller start failed", "error", err)
				return
			}
			if negotiatedVideo.Codec != media.CodecNone {
				if err := ctrl.AppendSurface(primarySurface, controller.SceneForeground); err != nil {
					log.Warn("attach primary surface failed", "error", err)
				}
			}
		case events.TypeProsumerStop:
			ctrl.Stop()
		case events.TypeWriteWarning:
			log.Warn("dispatcher intake timeout")
		}
	}

	mediaChannel := channel.New(mediaChannelID, dispatcher, onAgentEvent, nil)
	dispatcher.OnWriteTimeout(mediaChannel.OnWriteTimeout)

	var sess *session.Session
	onEvent := func(ev events.Event) {
		log.Info("session event", "type", ev.Type.String(), "error_code", ev.ErrorCode)
		switch ev.Type {
		case events.TypeRTSPPlayed:
			negotiatedAudio, negotiatedVideo, negotiatedPCSource = sess.Tracks()
			mediaChannel.OnProducerNotify(events.ProsumerStatusMsg{Status: events.ProsumerNotifyInitSuccess})
			mediaChannel.OnProducerNotify(events.ProsumerStatusMsg{Status: events.ProsumerNotifyStartSuccess})
		case events.TypeRTSPTeardown:
			mediaChannel.OnProducerNotify(events.ProsumerStatusMsg{Status: events.ProsumerNotifyStopSuccess})
			mediaChannel.Close()
			cancel()
		case events.TypeSessionInterrupted:
			mediaChannel.Close()
			cancel()
		}
	}

	sessCfg := session.Config{
		LocalRTPPort:   uint16(mustParsePort(cfg.ListenAddr)),
		VideoFormats:   "00 00 01 01 00000000 00000000 00000000 00 0000 0000 00 none none",
		AudioCodecs:    "00000001 00000000 00",
		ConnectTimeout: time.Duration(cfg.RTSPConnectTimeoutMS) * time.Millisecond,
		IDRRequestRate: 1,
	}
	sess = session.New(sessCfg, onEvent, log.With("component", "session"))

	ig := ingest.New(ingest.Config{
		LocalRTPPort:  uint16(mustParsePort(cfg.ListenAddr)),
		LocalRTCPPort: uint16(mustParsePort(cfg.ListenAddr)) + 1,
		OnFrame: func(f media.Frame) {
			dispatcher.InputData(media.NewMediaData(f))
		},
		OnRTCP: func(packets []pionrtcp.Packet) {
			for _, p := range packets {
				if rr, ok := p.(*pionrtcp.ReceiverReport); ok {
					for _, block := range rr.Reports {
						if block.FractionLost > 25 {
							sess.RequestIDR()
						}
					}
				}
			}
		},
		Logger: log,
	})

	if err := ig.Start(ctx); err != nil {
		log.Error("failed to start media ingest", "error", err)
		os.Exit(1)
	}
	defer ig.Stop()

	if cfg.DiagnosticsEnabled {
		diagServer := diagnostics.NewServer(sess, dispatcher, log.With("component", "diagnostics"))
		go func() {
			if err := diagServer.Start(ctx, cfg.DiagnosticsListenAddr); err != nil {
				log.Warn("diagnostics server stopped", "error", err)
			}
		}()
	}

	if previewBridge != nil {
		addr := *previewAddr
		if addr == "" {
			addr = ":8100"
		}
		go func() {
			if err := previewBridge.Start(ctx, addr); err != nil {
				log.Warn("preview bridge stopped", "error", err)
			}
		}()
	}

	if err := sess.Connect(ctx, *sourceIP, uint16(*sourcePort)); err != nil {
		log.Error("failed to connect to WFD source", "error", err)
		os.Exit(1)
	}
	defer sess.Stop()

	log.Info("wfdsink ready", "source", fmt.Sprintf("%s:%d", *sourceIP, *sourcePort))

	<-ctx.Done()
	log.Info("shutting down")
}

// primarySurface is the sink's one render surface; a platform embedder
// with multiple physical outputs would call AppendSurface per display
// with its own SurfaceID instead.
const primarySurface controller.SurfaceID = 1

type discardVideoRenderer struct{}

func (discardVideoRenderer) Render(media.Frame) error { return nil }

// mustParsePort extracts the numeric port from a ":NNNN"-style bind
// address; wfdsink's config always supplies one (config.Defaults sets
// ":19000"), so a parse failure here means a malformed override.
func mustParsePort(addr string) int {
	var port int
	if _, err := fmt.Sscanf(addr, ":%d", &port); err != nil {
		return 19000
	}
	return port
}
