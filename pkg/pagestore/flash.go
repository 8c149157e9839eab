package pagestore

import (
	"context"
	"fmt"
	"sync"
)

// Erased is the value of every byte of an erased flash page.
const Erased = 0xFF

// PageAccessor writes and reads one flash page.
type PageAccessor interface {
	// Write programs the whole page. The page must be erased.
	Write(data []byte) error
	// ReadTo fills buf from offset within the page.
	ReadTo(offset int, buf []byte) error
}

// Accessor is the flash seen as an array of write-once pages.
type Accessor interface {
	SelectPage(index int) (PageAccessor, error)
	PageSize() int
	SizePages() int
	// FindNextEmptyPage returns the first page at or after hint whose header
	// ids are both erased.
	FindNextEmptyPage(hint int) (int, bool)
	// Erase clears the whole flash in the background. The channel yields
	// the result once and is closed.
	Erase(ctx context.Context) <-chan error
}

// findEmpty scans pages from hint for an erased header.
func findEmpty(a Accessor, hint int) (int, bool) {
	var ids [8]byte
	for i := max(hint, 0); i < a.SizePages(); i++ {
		p, err := a.SelectPage(i)
		if err != nil {
			return 0, false
		}
		if err := p.ReadTo(0, ids[:]); err != nil {
			return 0, false
		}
		if isErased(ids[:]) {
			return i, true
		}
	}
	return 0, false
}

func isErased(b []byte) bool {
	for _, v := range b {
		if v != Erased {
			return false
		}
	}
	return true
}

// MemFlash is a flash emulated in memory.
type MemFlash struct {
	mu       sync.RWMutex
	data     []byte
	pageSize int
	pages    int
}

var _ Accessor = (*MemFlash)(nil)

// NewMemFlash creates an erased in-memory flash.
func NewMemFlash(pageSize, pages int) *MemFlash {
	f := &MemFlash{
		data:     make([]byte, pageSize*pages),
		pageSize: pageSize,
		pages:    pages,
	}
	fill(f.data)
	return f
}

func fill(b []byte) {
	for i := range b {
		b[i] = Erased
	}
}

func (f *MemFlash) PageSize() int  { return f.pageSize }
func (f *MemFlash) SizePages() int { return f.pages }

func (f *MemFlash) SelectPage(index int) (PageAccessor, error) {
	if index < 0 || index >= f.pages {
		return nil, fmt.Errorf("page %d out of range [0, %d)", index, f.pages)
	}
	return &memPage{f: f, off: index * f.pageSize}, nil
}

func (f *MemFlash) FindNextEmptyPage(hint int) (int, bool) {
	return findEmpty(f, hint)
}

func (f *MemFlash) Erase(ctx context.Context) <-chan error {
	res := make(chan error, 1)
	go func() {
		defer close(res)
		for i := 0; i < f.pages; i++ {
			if err := ctx.Err(); err != nil {
				res <- err
				return
			}
			f.mu.Lock()
			fill(f.data[i*f.pageSize : (i+1)*f.pageSize])
			f.mu.Unlock()
		}
		res <- nil
	}()
	return res
}

type memPage struct {
	f   *MemFlash
	off int
}

func (p *memPage) Write(data []byte) error {
	if len(data) > p.f.pageSize {
		return fmt.Errorf("write of %d bytes exceeds page size %d", len(data), p.f.pageSize)
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	page := p.f.data[p.off : p.off+p.f.pageSize]
	if !isErased(page) {
		return fmt.Errorf("page at offset %d is not erased", p.off)
	}
	copy(page, data)
	return nil
}

func (p *memPage) ReadTo(offset int, buf []byte) error {
	if offset < 0 || offset+len(buf) > p.f.pageSize {
		return fmt.Errorf("read [%d, %d) outside page", offset, offset+len(buf))
	}
	p.f.mu.RLock()
	defer p.f.mu.RUnlock()
	copy(buf, p.f.data[p.off+offset:])
	return nil
}
