// Package pagestore packs delta-encoded samples into fixed-size flash
// pages and reads them back.
package pagestore

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/itohio/gofreqmeter/pkg/errcode"
)

// Store creates, writes and reads data pages on a flash accessor. Only one
// page may be open at a time.
type Store struct {
	flash Accessor
	crc   *Checksum

	mu       sync.Mutex
	acquired bool
	erasing  bool
	next     int // first empty page, -1 when unknown
	floor    int // pages below floor are never reused
	lastID   uint32
}

// New creates a store. The write position is found on the first page request.
func New(flash Accessor, crc *Checksum) *Store {
	if crc == nil {
		crc = NewChecksum()
	}
	return &Store{flash: flash, crc: crc, next: -1}
}

// Flash returns the underlying accessor.
func (s *Store) Flash() Accessor { return s.flash }

// Rescan forgets the cached write position.
func (s *Store) Rescan() {
	s.mu.Lock()
	s.next = -1
	s.mu.Unlock()
}

func (s *Store) locateLocked() error {
	if s.next >= 0 {
		return nil
	}
	idx, ok := s.flash.FindNextEmptyPage(s.floor)
	if !ok {
		idx = s.flash.SizePages()
	}
	// a page that failed to program may still look erased
	for i := idx - 1; i >= 0; i-- {
		h, err := s.readHeader(i)
		if err != nil {
			return err
		}
		if !h.Erased() {
			s.lastID = max(s.lastID, h.ThisID)
			break
		}
	}
	s.next = idx
	return nil
}

// TryCreateNewPage opens the next empty page with the given header
// template. The ids are assigned by the store.
func (s *Store) TryCreateNewPage(h Header) (*Page, error) {
	const op = "pagestore.create"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired {
		return nil, errcode.New(errcode.Busy, op, "a page is already open")
	}
	if s.erasing {
		return nil, errcode.New(errcode.Busy, op, "flash erase in progress")
	}
	if err := s.locateLocked(); err != nil {
		return nil, err
	}
	if s.next >= s.flash.SizePages() {
		return nil, errcode.New(errcode.StorageExhausted, op, fmt.Sprintf("all %d pages used", s.flash.SizePages()))
	}

	h.PrevID = s.lastID
	h.ThisID = s.lastID + 1
	s.acquired = true
	return newPage(s.next, s.flash.PageSize(), h), nil
}

// Write finalizes p and stores it at its page. It returns the block id of
// the page, also when writing failed. Writing a page twice panics.
func (s *Store) Write(p *Page) (uint32, error) {
	if p.written {
		panic("pagestore: page written twice")
	}
	p.written = true
	id := p.header.ThisID

	p.header.DataLen = uint32(len(p.payload))
	p.header.DataCRC = s.crc.Sum(p.payload)

	err := s.program(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired = false
	if err != nil {
		// the page may be partially programmed: skip it and keep its id used
		s.floor = p.index + 1
		s.lastID = id
		s.next = -1
		return id, fmt.Errorf("write page %d (id %d): %w", p.index, id, err)
	}
	s.next = p.index + 1
	s.lastID = id
	log.Printf("pagestore: page %d written (id %d, %d samples)", p.index, id, p.count)
	return id, nil
}

func (s *Store) program(p *Page) error {
	hdr, err := p.header.MarshalBinary()
	if err != nil {
		return err
	}
	buf := make([]byte, s.flash.PageSize())
	fill(buf)
	copy(buf, hdr)
	copy(buf[HeaderSize:], p.payload)

	acc, err := s.flash.SelectPage(p.index)
	if err != nil {
		return err
	}
	return acc.Write(buf)
}

func (s *Store) readHeader(index int) (Header, error) {
	var h Header
	acc, err := s.flash.SelectPage(index)
	if err != nil {
		return h, err
	}
	buf := make([]byte, HeaderSize)
	if err := acc.ReadTo(0, buf); err != nil {
		return h, err
	}
	return h, h.UnmarshalBinary(buf)
}

// Usage returns the number of used pages and the flash size in pages.
func (s *Store) Usage() (used, total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.locateLocked(); err != nil {
		return 0, 0, err
	}
	return s.next, s.flash.SizePages(), nil
}

// Erase clears the flash in the background. New pages are refused until
// the erase finished. It fails with errcode.Busy while a page is open.
func (s *Store) Erase(ctx context.Context) (<-chan error, error) {
	s.mu.Lock()
	if s.acquired || s.erasing {
		s.mu.Unlock()
		return nil, errcode.New(errcode.Busy, "pagestore.erase", "flash in use")
	}
	s.erasing = true
	s.mu.Unlock()

	res := make(chan error, 1)
	go func() {
		defer close(res)
		err := <-s.flash.Erase(ctx)
		s.mu.Lock()
		s.erasing = false
		s.next = -1
		if err == nil {
			s.floor, s.lastID = 0, 0
		}
		s.mu.Unlock()
		if err == nil {
			log.Printf("pagestore: flash erased")
		}
		res <- err
	}()
	return res, nil
}
