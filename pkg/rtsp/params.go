package rtsp

import (
	"strings"
)

// ParseParameterBody returns, in order, the parameter names listed in
// a WFD message body. A query-form GET_PARAMETER body lists bare
// parameter names (`wfd_video_formats\r\n`, no colon); for a
// `parameter_name: value\r\n` line only the name is returned and the
// value is discarded (see ParseParameterValues for values).
func ParseParameterBody(body []byte) []string {
	var names []string
	for _, line := range splitLines(body) {
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			names = append(names, strings.TrimSpace(line[:idx]))
		} else {
			names = append(names, strings.TrimSpace(line))
		}
	}
	return names
}

// ParseParameterValues parses a body of fully-formed `name: value`
// lines into a map, used for SET_PARAMETER bodies carrying
// presentation URL / track configuration.
func ParseParameterValues(body []byte) map[string]string {
	values := make(map[string]string)
	for _, line := range splitLines(body) {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		values[key] = value
	}
	return values
}

func splitLines(body []byte) []string {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	return strings.Split(text, "\n")
}

// BuildParameterBody serializes an ordered set of name/value pairs
// back into the WFD wire grammar: `name: value\r\n` lines. Order is
// preserved as given — M3's answer grammar requires echoing only the
// parameters that were requested, in request order.
func BuildParameterBody(pairs [][2]string) []byte {
	var b strings.Builder
	for _, kv := range pairs {
		b.WriteString(kv[0])
		b.WriteString(": ")
		b.WriteString(kv[1])
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// ContentTypeParameters is the MIME type WFD GET_PARAMETER/
// SET_PARAMETER bodies declare.
const ContentTypeParameters = "text/parameters"

// Well-known WFD parameter names, enumerated so callers building an
// M3 answer or M4 request can refer to them without repeating string
// literals (§4.8's M3 answer grammar list).
const (
	ParamVideoFormats            = "wfd_video_formats"
	ParamAudioCodecs             = "wfd_audio_codecs"
	ParamVideoFormats2           = "wfd_video_formats_2"
	ParamAudioCodecs2            = "wfd_audio_codecs_2"
	ParamClientRTPPorts          = "wfd_client_rtp_ports"
	ParamContentProtection       = "wfd_content_protection"
	ParamCoupledSink             = "wfd_coupled_sink"
	ParamUIBCCapability          = "wfd_uibc_capability"
	ParamStandbyResumeCapability = "wfd_standby_resume_capability"
	ParamConnectorType           = "wfd_connector_type"
	ParamDisplayEDID             = "wfd_display_edid"
	ParamRTCPCapability          = "microsoft_rtcp_capability"
	ParamIDRRequestCapability    = "wfd_idr_request_capability"
	ParamTriggerMethod           = "wfd_trigger_method"
	ParamPresentationURL         = "wfd_presentation_URL"
	ParamIDRRequest              = "wfd_idr_request"
)
