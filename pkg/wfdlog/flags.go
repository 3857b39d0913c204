package wfdlog

import "flag"

// Flags holds the logging-related command-line flags shared by
// cmd/wfdsink and cmd/wfdprobe.
type Flags struct {
	LogLevel         string
	LogFormat        string
	LogFile          string
	DebugRTSP        bool
	DebugRTCP        bool
	DebugTS          bool
	DebugNAL         bool
	DebugDispatcher  bool
	DebugDecoder     bool
	DebugSync        bool
	DebugSession     bool
	DebugAll         bool
	WireTraceEnabled bool
	WireTraceFile    string
}

// RegisterFlags registers logging flags with the given FlagSet.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info", "Log level (shorthand)")
	fs.StringVar(&f.LogFormat, "log-format", "text", "Log output format: text, json")
	fs.StringVar(&f.LogFile, "log-file", "", "Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "", "Log output file path (shorthand)")

	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false, "Enable RTSP/WFD handshake debugging")
	fs.BoolVar(&f.DebugRTCP, "debug-rtcp", false, "Enable RTCP packet debugging")
	fs.BoolVar(&f.DebugTS, "debug-ts", false, "Enable MPEG-TS demux debugging")
	fs.BoolVar(&f.DebugNAL, "debug-nal", false, "Enable NAL unit debugging")
	fs.BoolVar(&f.DebugDispatcher, "debug-dispatcher", false, "Enable buffer dispatcher debugging")
	fs.BoolVar(&f.DebugDecoder, "debug-decoder", false, "Enable decoder runner debugging")
	fs.BoolVar(&f.DebugSync, "debug-sync", false, "Enable A/V sync debugging")
	fs.BoolVar(&f.DebugSession, "debug-session", false, "Enable WFD session state machine debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false, "Enable all debug categories")

	// Neither command reads these two flags or builds a WireTrace, so
	// setting them records nothing.
	fs.BoolVar(&f.WireTraceEnabled, "wire-trace", false, "Wire-trace switch (parsed, not acted on: no RTSP messages are recorded)")
	fs.StringVar(&f.WireTraceFile, "wire-trace-file", "", "Wire-trace output file path (parsed, not acted on)")

	return f
}

// ToConfig converts Flags to a logger Config.
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(CategoryAll)
		cfg.Level = LevelDebug
	} else {
		for _, pair := range []struct {
			on  bool
			cat Category
		}{
			{f.DebugRTSP, CategoryRTSP},
			{f.DebugRTCP, CategoryRTCP},
			{f.DebugTS, CategoryTS},
			{f.DebugNAL, CategoryNAL},
			{f.DebugDispatcher, CategoryDispatcher},
			{f.DebugDecoder, CategoryDecoder},
			{f.DebugSync, CategorySync},
			{f.DebugSession, CategorySession},
		} {
			if pair.on {
				cfg.EnableCategory(pair.cat)
				cfg.Level = LevelDebug
			}
		}
	}

	return cfg, nil
}
