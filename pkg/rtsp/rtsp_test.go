package rtsp

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessage_RequestRoundTrip(t *testing.T) {
	req := NewRequest("OPTIONS", "*", 1)
	req.SetHeader("Require", "org.wfa.wfd1.0")

	var buf bytes.Buffer
	require.NoError(t, req.WriteTo(&buf))

	got, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.True(t, got.IsRequest)
	require.Equal(t, "OPTIONS", got.Method)
	require.Equal(t, "*", got.URL)
	require.Equal(t, 1, got.CSeq)
	require.Equal(t, "org.wfa.wfd1.0", got.Header("Require"))
}

func TestMessage_ResponseRoundTripWithBody(t *testing.T) {
	resp := NewResponse(200, "OK", 3)
	resp.SetHeader("Content-Type", ContentTypeParameters)
	resp.Body = BuildParameterBody([][2]string{
		{ParamVideoFormats, "00 00 01 01 ..."},
		{ParamAudioCodecs, "AAC 00000001 00"},
	})

	var buf bytes.Buffer
	require.NoError(t, resp.WriteTo(&buf))

	got, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.False(t, got.IsRequest)
	require.Equal(t, 200, got.StatusCode)
	require.Equal(t, 3, got.CSeq)

	values := ParseParameterValues(got.Body)
	require.Equal(t, "00 00 01 01 ...", values[ParamVideoFormats])
	require.Equal(t, "AAC 00000001 00", values[ParamAudioCodecs])
}

func TestParseParameterBody_BareNamesAndColonForms(t *testing.T) {
	body := []byte("wfd_video_formats\r\nwfd_audio_codecs\r\nwfd_client_rtp_ports: RTP/AVP/UDP;unicast 19000 0 mode=play\r\n")
	names := ParseParameterBody(body)
	require.Equal(t, []string{ParamVideoFormats, ParamAudioCodecs, ParamClientRTPPorts}, names)
}

func TestBuildParameterBody_PreservesOrder(t *testing.T) {
	body := BuildParameterBody([][2]string{
		{ParamAudioCodecs, "a"},
		{ParamVideoFormats, "b"},
	})
	require.Equal(t, "wfd_audio_codecs: a\r\nwfd_video_formats: b\r\n", string(body))
}
