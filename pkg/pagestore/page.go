package pagestore

import (
	"github.com/itohio/gofreqmeter/pkg/channel"
)

// Page is an open data page. It is filled with Push and finalized by
// Store.Write; a written page must not be used again.
type Page struct {
	index    int
	capacity int
	header   Header
	payload  []byte
	baseline [channel.FreqCount]uint32
	count    int
	written  bool
}

func newPage(index, pageSize int, h Header) *Page {
	capacity := pageSize - HeaderSize
	return &Page{
		index:    index,
		capacity: capacity,
		header:   h,
		payload:  make([]byte, 0, capacity),
	}
}

// Index returns the flash page the page will be written to.
func (p *Page) Index() int { return p.index }

// ID returns the block id of the page.
func (p *Page) ID() uint32 { return p.header.ThisID }

// Header gives access to the header fields filled by the caller before Write.
func (p *Page) Header() *Header {
	p.mustBeOpen()
	return &p.header
}

// Push appends a sample of ch as a difference to the previous sample of
// ch. ok false records a missing sample. Push reports true once the page
// cannot take another entry.
func (p *Page) Push(ch channel.Freq, raw uint32, ok bool) (full bool) {
	p.mustBeOpen()
	if p.Full() {
		return true
	}
	if ok {
		p.payload = appendEntry(p.payload, ch, diff(raw, p.baseline[ch]), false)
		p.baseline[ch] = raw
	} else {
		p.payload = appendEntry(p.payload, ch, 0, true)
	}
	p.count++
	return p.Full()
}

// Full reports whether the remaining capacity is below the largest entry.
func (p *Page) Full() bool {
	return p.capacity-len(p.payload) < MaxEntrySize
}

// Baseline returns the last pushed sample of ch.
func (p *Page) Baseline(ch channel.Freq) uint32 { return p.baseline[ch] }

// Len returns the number of pushed samples.
func (p *Page) Len() int { return p.count }

// Payload returns the packed samples.
func (p *Page) Payload() []byte { return p.payload }

// Written reports whether the page was finalized.
func (p *Page) Written() bool { return p.written }

func (p *Page) mustBeOpen() {
	if p.written {
		panic("pagestore: page used after it was written")
	}
}
