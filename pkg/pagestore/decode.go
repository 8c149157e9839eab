package pagestore

import (
	"errors"
	"fmt"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// ErrErasedPage is returned when decoding a page that was never written.
var ErrErasedPage = errors.New("page is erased")

// Record is a decoded data page.
type Record struct {
	Index   int                        `json:"index"`
	Header  Header                     `json:"header"`
	Samples [channel.FreqCount][]Value `json:"samples"`
}

// Decode parses a raw page and verifies its checksum.
func Decode(page []byte, crc *Checksum) (*Record, error) {
	var h Header
	if err := h.UnmarshalBinary(page); err != nil {
		return nil, err
	}
	if h.Erased() {
		return nil, ErrErasedPage
	}
	if int(h.DataLen) > len(page)-HeaderSize {
		return nil, fmt.Errorf("page %d: data length %d exceeds page", h.ThisID, h.DataLen)
	}
	payload := page[HeaderSize : HeaderSize+int(h.DataLen)]
	if crc == nil {
		crc = NewChecksum()
	}
	if sum := crc.Sum(payload); sum != h.DataCRC {
		return nil, fmt.Errorf("page %d: checksum mismatch: stored %08x, computed %08x", h.ThisID, h.DataCRC, sum)
	}
	samples, err := DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", h.ThisID, err)
	}
	return &Record{Header: h, Samples: samples}, nil
}

// ReadPage reads and decodes the page at index.
func (s *Store) ReadPage(index int) (*Record, error) {
	acc, err := s.flash.SelectPage(index)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.flash.PageSize())
	if err := acc.ReadTo(0, buf); err != nil {
		return nil, err
	}
	rec, err := Decode(buf, s.crc)
	if err != nil {
		return nil, err
	}
	rec.Index = index
	return rec, nil
}

// Scan decodes written pages in order and calls fn for each of them. A
// page that fails to decode is passed with its error; returning false
// from fn stops the scan.
func (s *Store) Scan(fn func(index int, rec *Record, err error) bool) error {
	used, _, err := s.Usage()
	if err != nil {
		return err
	}
	for i := 0; i < used; i++ {
		rec, err := s.ReadPage(i)
		if !fn(i, rec, err) {
			return nil
		}
	}
	return nil
}
