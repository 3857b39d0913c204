package wfdlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// WireTrace is a forensic log of raw RTSP messages, kept deliberately
// separate from the operational slog stream: it is meant to be turned
// on to capture a handshake for later replay without raising the
// verbosity of the rest of the program.
type WireTrace struct {
	logger  zerolog.Logger
	enabled bool
	file    *os.File
}

// NewWireTrace builds a disabled no-op trace when enabled is false, so
// callers can unconditionally call its methods without branching.
func NewWireTrace(enabled bool, outputFile string) (*WireTrace, error) {
	if !enabled {
		return &WireTrace{enabled: false}, nil
	}

	var w io.Writer = os.Stdout
	var file *os.File
	if outputFile != "" {
		f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
		file = f
	}

	return &WireTrace{
		logger:  zerolog.New(w).With().Timestamp().Logger(),
		enabled: true,
		file:    file,
	}, nil
}

func (t *WireTrace) Close() error {
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// Sent records a raw RTSP message this side transmitted.
func (t *WireTrace) Sent(cseq int, method string, raw string) {
	if !t.enabled {
		return
	}
	t.logger.Info().
		Str("direction", "tx").
		Int("cseq", cseq).
		Str("method", method).
		Str("raw", raw).
		Msg("rtsp message")
}

// Received records a raw RTSP message read off the wire, before parse.
func (t *WireTrace) Received(raw string) {
	if !t.enabled {
		return
	}
	t.logger.Info().
		Str("direction", "rx").
		Str("raw", raw).
		Msg("rtsp message")
}

// Stashed records that an incomplete message was held for concatenation
// with the next read.
func (t *WireTrace) Stashed(partial string) {
	if !t.enabled {
		return
	}
	t.logger.Debug().
		Str("direction", "rx-partial").
		Str("raw", partial).
		Msg("incomplete rtsp message stashed")
}
