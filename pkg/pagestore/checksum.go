package pagestore

import (
	"hash/crc32"
	"sync"
)

// Checksum is the shared CRC-32 unit. Like the peripheral it models, it
// produces the raw register value, without the final inversion.
type Checksum struct {
	mu sync.Mutex
}

// NewChecksum creates a checksum unit.
func NewChecksum() *Checksum {
	return &Checksum{}
}

// Raw returns the CRC-32 register after feeding data.
func (c *Checksum) Raw(data []byte) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ^crc32.ChecksumIEEE(data)
}

// Sum returns the stored form of the checksum: the complement of the raw
// register, which equals the common zlib CRC-32.
func (c *Checksum) Sum(data []byte) uint32 {
	return ^c.Raw(data)
}
