// Package nal splits a contiguous H.264 elementary stream on Annex-B
// start codes and classifies the resulting NAL units. Split never
// copies NAL bytes — it returns offsets into the caller's buffer — but
// it does allocate the []Unit slice it returns. The NALU type
// constants and the AVC length-prefix helper come from the RTP H.264
// depacketizer this module was adapted from, generalized from
// RTP-fragment reassembly to plain start-code scanning over a
// TS-demuxed access unit.
package nal

// Type is the low 5 bits of a NAL unit's header byte.
type Type byte

const (
	TypeUnspecified Type = 0
	TypeNonIDR      Type = 1
	TypeIDR         Type = 5
	TypeSEI         Type = 6
	TypeSPS         Type = 7
	TypePPS         Type = 8
	TypeAUD         Type = 9
)

// HeaderType extracts the NAL unit type from its header byte.
func HeaderType(b byte) Type {
	return Type(b & 0x1F)
}

// Unit describes one NAL unit located within a larger buffer: the
// start-code prefix length that preceded it and the length of the NAL
// body itself (header byte included).
type Unit struct {
	Offset    int // offset of the NAL body (after the start code) within the source buffer
	PrefixLen int // 3 for 00 00 01, 4 for 00 00 00 01
	Length    int // length of the NAL body, header byte included
}

// Bytes returns the NAL body for this unit within src.
func (u Unit) Bytes(src []byte) []byte {
	return src[u.Offset : u.Offset+u.Length]
}

// Type returns this unit's NAL type.
func (u Unit) Type(src []byte) Type {
	return HeaderType(src[u.Offset])
}

// Split locates every start-code-delimited NAL unit in buf. Embedded
// emulation-prevention bytes are left untouched — stripping them is
// the decoder's responsibility, not the splitter's. Trailing bytes
// with no following start code are treated as the final NAL unit.
//
// P1 (concatenation invariant): for every returned Unit u,
// buf[u.Offset-u.PrefixLen:u.Offset+u.Length] reconstructs exactly the
// slice of buf spanned by that NAL, start code included.
func Split(buf []byte) []Unit {
	var units []Unit

	start, prefixLen := findStartCode(buf, 0)
	if start < 0 {
		return nil
	}

	for {
		bodyStart := start + prefixLen
		nextStart, nextPrefixLen := findStartCode(buf, bodyStart)

		var length int
		if nextStart < 0 {
			length = len(buf) - bodyStart
		} else {
			length = nextStart - bodyStart
		}

		if length > 0 {
			units = append(units, Unit{Offset: bodyStart, PrefixLen: prefixLen, Length: length})
		}

		if nextStart < 0 {
			break
		}
		start, prefixLen = nextStart, nextPrefixLen
	}

	return units
}

// findStartCode returns the index of the next 00 00 01 or 00 00 00 01
// start code at or after from, and its prefix length, or (-1, 0) if
// none is found.
func findStartCode(buf []byte, from int) (int, int) {
	for i := from; i+2 < len(buf); i++ {
		if buf[i] != 0x00 || buf[i+1] != 0x00 {
			continue
		}
		if buf[i+2] == 0x01 {
			if i > from && buf[i-1] == 0x00 {
				return i - 1, 4
			}
			return i, 3
		}
	}
	return -1, 0
}

// AppendLengthPrefixed appends nal to dst in AVC (4-byte big-endian
// length prefix) format. No component of this stack frames payloads
// this way; Frame.Payload uses Annex-B start codes (see
// AppendStartCode).
func AppendLengthPrefixed(dst, nalUnit []byte) []byte {
	n := len(nalUnit)
	dst = append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(dst, nalUnit...)
}

// AppendStartCode appends nalUnit to dst with a 4-byte Annex-B start
// code (00 00 00 01), the framing every Frame.Payload in this stack
// uses end to end — ingest, dispatcher real entries, and the decoder
// runners all assume it, so anything synthesized (e.g. a cached
// SPS/PPS handed to a late-joining receiver) must match it too.
func AppendStartCode(dst, nalUnit []byte) []byte {
	dst = append(dst, 0x00, 0x00, 0x00, 0x01)
	return append(dst, nalUnit...)
}
