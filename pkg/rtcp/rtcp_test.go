package rtcp

import (
	"testing"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func TestNTPRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 123_000) // microsecond precision
	msw, lsw := ToNTP(now)
	got := FromNTP(msw, lsw)
	require.WithinDuration(t, now, got, time.Microsecond)
}

func TestSenderReportRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sr := BuildSenderReport(0xAABBCCDD, now, 90000, 42, 9001)

	buf, err := Marshal([]pionrtcp.Packet{sr})
	require.NoError(t, err)

	packets, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	got, ok := packets[0].(*pionrtcp.SenderReport)
	require.True(t, ok)
	require.Equal(t, sr.SSRC, got.SSRC)
	require.Equal(t, sr.PacketCount, got.PacketCount)
	require.Equal(t, sr.OctetCount, got.OctetCount)
}

func TestParseEmptyBuffer(t *testing.T) {
	packets, err := Parse(nil)
	require.NoError(t, err)
	require.Nil(t, packets)
}

func TestSourceDescriptionRoundTrip(t *testing.T) {
	sdes := BuildSourceDescription(0xAABBCCDD, "wfdsink")

	buf, err := Marshal([]pionrtcp.Packet{sdes})
	require.NoError(t, err)

	packets, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	got, ok := packets[0].(*pionrtcp.SourceDescription)
	require.True(t, ok)
	require.Len(t, got.Chunks, 1)
	require.Equal(t, uint32(0xAABBCCDD), got.Chunks[0].Source)
	require.Equal(t, "wfdsink", got.Chunks[0].Items[0].Text)
}

func TestTransportLayerNackRoundTrip(t *testing.T) {
	nack := BuildTransportLayerNack(0x1111, 0x2222, []uint16{5, 6, 9})

	buf, err := Marshal([]pionrtcp.Packet{nack})
	require.NoError(t, err)

	packets, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	got, ok := packets[0].(*pionrtcp.TransportLayerNack)
	require.True(t, ok)
	require.Equal(t, uint32(0x1111), got.SenderSSRC)
	require.Equal(t, uint32(0x2222), got.MediaSSRC)
	require.NotEmpty(t, got.Nacks)
}

func TestRapidResynchronizationRequestRoundTrip(t *testing.T) {
	rrr := BuildRapidResynchronizationRequest(0x1111, 0x2222)

	buf, err := Marshal([]pionrtcp.Packet{rrr})
	require.NoError(t, err)

	packets, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	got, ok := packets[0].(*pionrtcp.RapidResynchronizationRequest)
	require.True(t, ok)
	require.Equal(t, uint32(0x1111), got.SenderSSRC)
	require.Equal(t, uint32(0x2222), got.MediaSSRC)
}

func TestExtendedReportDLRRRoundTrip(t *testing.T) {
	xr := BuildExtendedReportDLRR(0x1111, 0x2222, 12345, 6789)

	buf, err := Marshal([]pionrtcp.Packet{xr})
	require.NoError(t, err)

	packets, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	got, ok := packets[0].(*pionrtcp.ExtendedReport)
	require.True(t, ok)
	require.Equal(t, uint32(0x1111), got.SenderSSRC)
	require.Len(t, got.Reports, 1)
	dlrr, ok := got.Reports[0].(*pionrtcp.DLRRReportBlock)
	require.True(t, ok)
	require.Equal(t, uint32(0x2222), dlrr.Reports[0].SSRC)
	require.Equal(t, uint32(12345), dlrr.Reports[0].LastRR)
	require.Equal(t, uint32(6789), dlrr.Reports[0].DLRR)
}
