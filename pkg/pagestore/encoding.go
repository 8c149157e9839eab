package pagestore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// Entry layout: one tag byte followed by 0, 1, 2 or 4 bytes of the signed
// little-endian difference to the channel baseline.
//
//	bit 7     channel (0 pressure, 1 temperature)
//	bit 6     sample missing, difference is zero
//	bits 0-2  difference width in bytes
const (
	tagChannel = 0x80
	tagMissing = 0x40
	tagWidth   = 0x07

	// MaxEntrySize is the largest encoded entry.
	MaxEntrySize = 5
)

// Value is a decoded sample. Valid is false for samples pushed as missing.
type Value struct {
	Raw   uint32 `json:"raw"`
	Valid bool   `json:"valid"`
}

// diff returns raw-baseline as a wrapping 32-bit difference.
func diff(raw, baseline uint32) int32 {
	return int32(raw - baseline)
}

func width(d int32) int {
	switch {
	case d == 0:
		return 0
	case d >= math.MinInt8 && d <= math.MaxInt8:
		return 1
	case d >= math.MinInt16 && d <= math.MaxInt16:
		return 2
	}
	return 4
}

// appendEntry encodes a difference of ch to dst.
func appendEntry(dst []byte, ch channel.Freq, d int32, missing bool) []byte {
	tag := byte(0)
	if ch == channel.Temperature {
		tag |= tagChannel
	}
	if missing {
		return append(dst, tag|tagMissing)
	}
	w := width(d)
	dst = append(dst, tag|byte(w))
	switch w {
	case 1:
		dst = append(dst, byte(int8(d)))
	case 2:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(d)))
	case 4:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(d))
	}
	return dst
}

// readEntry decodes one entry from src and returns the remaining bytes.
func readEntry(src []byte) (ch channel.Freq, d int32, missing bool, rest []byte, err error) {
	if len(src) == 0 {
		return 0, 0, false, nil, fmt.Errorf("empty entry")
	}
	tag := src[0]
	src = src[1:]
	ch = channel.Pressure
	if tag&tagChannel != 0 {
		ch = channel.Temperature
	}
	if tag&tagMissing != 0 {
		return ch, 0, true, src, nil
	}

	w := int(tag & tagWidth)
	if len(src) < w {
		return 0, 0, false, nil, fmt.Errorf("truncated entry: need %d bytes, have %d", w, len(src))
	}
	switch w {
	case 0:
	case 1:
		d = int32(int8(src[0]))
	case 2:
		d = int32(int16(binary.LittleEndian.Uint16(src)))
	case 4:
		d = int32(binary.LittleEndian.Uint32(src))
	default:
		return 0, 0, false, nil, fmt.Errorf("invalid entry width %d", w)
	}
	return ch, d, false, src[w:], nil
}

// DecodePayload reconstructs the absolute samples of both channels from a
// packed payload. Baselines start at zero.
func DecodePayload(payload []byte) ([channel.FreqCount][]Value, error) {
	var out [channel.FreqCount][]Value
	var baseline [channel.FreqCount]uint32
	for len(payload) > 0 {
		ch, d, missing, rest, err := readEntry(payload)
		if err != nil {
			return out, err
		}
		payload = rest
		if missing {
			out[ch] = append(out[ch], Value{Raw: baseline[ch]})
			continue
		}
		baseline[ch] += uint32(d)
		out[ch] = append(out[ch], Value{Raw: baseline[ch], Valid: true})
	}
	return out, nil
}
