package pagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileFlash is a flash backed by an image file.
type FileFlash struct {
	mu       sync.RWMutex
	f        *os.File
	pageSize int
	pages    int
}

var _ Accessor = (*FileFlash)(nil)

// OpenFileFlash opens or creates a flash image of pages pages. A new or
// short image is extended with erased bytes.
func OpenFileFlash(path string, pageSize, pages int) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat flash image: %w", err)
	}

	size := int64(pageSize) * int64(pages)
	if st.Size() < size {
		pad := make([]byte, size-st.Size())
		fill(pad)
		if _, err := f.WriteAt(pad, st.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to extend flash image: %w", err)
		}
	}
	return &FileFlash{f: f, pageSize: pageSize, pages: pages}, nil
}

// Close closes the image file.
func (f *FileFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}

func (f *FileFlash) PageSize() int  { return f.pageSize }
func (f *FileFlash) SizePages() int { return f.pages }

func (f *FileFlash) SelectPage(index int) (PageAccessor, error) {
	if index < 0 || index >= f.pages {
		return nil, fmt.Errorf("page %d out of range [0, %d)", index, f.pages)
	}
	return &filePage{f: f, off: int64(index) * int64(f.pageSize)}, nil
}

func (f *FileFlash) FindNextEmptyPage(hint int) (int, bool) {
	return findEmpty(f, hint)
}

func (f *FileFlash) Erase(ctx context.Context) <-chan error {
	res := make(chan error, 1)
	go func() {
		defer close(res)
		page := make([]byte, f.pageSize)
		fill(page)
		for i := 0; i < f.pages; i++ {
			if err := ctx.Err(); err != nil {
				res <- err
				return
			}
			f.mu.Lock()
			_, err := f.f.WriteAt(page, int64(i)*int64(f.pageSize))
			f.mu.Unlock()
			if err != nil {
				res <- fmt.Errorf("erase page %d: %w", i, err)
				return
			}
		}
		f.mu.Lock()
		err := f.f.Sync()
		f.mu.Unlock()
		res <- err
	}()
	return res
}

type filePage struct {
	f   *FileFlash
	off int64
}

func (p *filePage) Write(data []byte) error {
	if len(data) > p.f.pageSize {
		return fmt.Errorf("write of %d bytes exceeds page size %d", len(data), p.f.pageSize)
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()

	cur := make([]byte, p.f.pageSize)
	if _, err := p.f.f.ReadAt(cur, p.off); err != nil && err != io.EOF {
		return fmt.Errorf("read page at %d: %w", p.off, err)
	}
	if !isErased(cur) {
		return fmt.Errorf("page at offset %d is not erased", p.off)
	}
	if _, err := p.f.f.WriteAt(data, p.off); err != nil {
		return fmt.Errorf("write page at %d: %w", p.off, err)
	}
	return p.f.f.Sync()
}

func (p *filePage) ReadTo(offset int, buf []byte) error {
	if offset < 0 || offset+len(buf) > p.f.pageSize {
		return fmt.Errorf("read [%d, %d) outside page", offset, offset+len(buf))
	}
	p.f.mu.RLock()
	defer p.f.mu.RUnlock()
	if _, err := p.f.f.ReadAt(buf, p.off+int64(offset)); err != nil {
		return fmt.Errorf("read page at %d: %w", p.off, err)
	}
	return nil
}
