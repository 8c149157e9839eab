package pagestore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 64

// ErasedID marks an unused page when found in both header ids.
const ErasedID = math.MaxUint32

// Header describes a data page. It is stored little-endian at the start of
// the page.
type Header struct {
	ThisID             uint32
	PrevID             uint32
	TimestampMs        uint64
	Targets            [channel.FreqCount]uint32
	BaseIntervalMs     uint32
	InterleaveRatio    [channel.FreqCount]uint32 // write divider per channel
	ReferenceFrequency uint32
	TCPU               float32 // NaN when unknown
	VBat               float32 // NaN when unknown
	DataLen            uint32
	DataCRC            uint32
	_                  [8]byte
}

// MarshalBinary encodes the header into HeaderSize bytes.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a header from the first HeaderSize bytes of data.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header needs %d bytes, got %d", HeaderSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, h); err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	return nil
}

// Erased reports whether the header belongs to an unused page.
func (h *Header) Erased() bool {
	return h.ThisID == ErasedID && h.PrevID == ErasedID
}

// MarshalJSON encodes unknown analog values as null.
func (h Header) MarshalJSON() ([]byte, error) {
	opt := func(v float32) *float32 {
		if math.IsNaN(float64(v)) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		ThisID             uint32                    `json:"this_id"`
		PrevID             uint32                    `json:"prev_id"`
		TimestampMs        uint64                    `json:"timestamp_ms"`
		Targets            [channel.FreqCount]uint32 `json:"targets"`
		BaseIntervalMs     uint32                    `json:"base_interval_ms"`
		InterleaveRatio    [channel.FreqCount]uint32 `json:"interleave_ratio"`
		ReferenceFrequency uint32                    `json:"reference_frequency"`
		TCPU               *float32                  `json:"t_cpu"`
		VBat               *float32                  `json:"v_bat"`
		DataLen            uint32                    `json:"data_len"`
		DataCRC            uint32                    `json:"data_crc"`
	}{
		ThisID:             h.ThisID,
		PrevID:             h.PrevID,
		TimestampMs:        h.TimestampMs,
		Targets:            h.Targets,
		BaseIntervalMs:     h.BaseIntervalMs,
		InterleaveRatio:    h.InterleaveRatio,
		ReferenceFrequency: h.ReferenceFrequency,
		TCPU:               opt(h.TCPU),
		VBat:               opt(h.VBat),
		DataLen:            h.DataLen,
		DataCRC:            h.DataCRC,
	})
}
