package proc

import (
	"errors"
	"fmt"
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// MemoryReadWriter is the target memory access channel.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// MemoryFaultError is returned when target memory can not be read or
// written. It is never retried.
type MemoryFaultError struct {
	Addr  uint64
	Len   int
	Write bool
	Err   error
}

func (err *MemoryFaultError) Error() string {
	op := "read"
	if err.Write {
		op = "write"
	}
	if err.Err != nil {
		return fmt.Sprintf("could not %s %d bytes at %#x: %v", op, err.Len, err.Addr, err.Err)
	}
	return fmt.Sprintf("could not %s %d bytes at %#x", op, err.Len, err.Addr)
}

func (err *MemoryFaultError) Unwrap() error {
	return err.Err
}

var errShortTransfer = errors.New("short transfer")

// readMemory reads len(buf) bytes at addr, any failure (including a short
// read) is reported as a *MemoryFaultError.
func readMemory(mem MemoryReader, buf []byte, addr uint64) error {
	n, err := mem.ReadMemory(buf, addr)
	if err == nil && n != len(buf) {
		err = errShortTransfer
	}
	if err != nil {
		var fault *MemoryFaultError
		if errors.As(err, &fault) {
			return fault
		}
		return &MemoryFaultError{Addr: addr, Len: len(buf), Err: err}
	}
	return nil
}

// writeMemory is the write counterpart of readMemory.
func writeMemory(mem MemoryReadWriter, addr uint64, data []byte) error {
	n, err := mem.WriteMemory(addr, data)
	if err == nil && n != len(data) {
		err = errShortTransfer
	}
	if err != nil {
		var fault *MemoryFaultError
		if errors.As(err, &fault) {
			return fault
		}
		return &MemoryFaultError{Addr: addr, Len: len(data), Write: true, Err: err}
	}
	return nil
}

type memCache struct {
	cacheAddr uint64
	cache     []byte
	mem       MemoryReadWriter
}

func (m *memCache) contains(addr uint64, size int) bool {
	end := addr + uint64(size)
	return addr >= m.cacheAddr && end >= addr && end <= m.cacheAddr+uint64(len(m.cache))
}

func (m *memCache) ReadMemory(data []byte, addr uint64) (n int, err error) {
	if m.contains(addr, len(data)) {
		copy(data, m.cache[addr-m.cacheAddr:])
		return len(data), nil
	}

	return m.mem.ReadMemory(data, addr)
}

func (m *memCache) WriteMemory(addr uint64, data []byte) (written int, err error) {
	if m.contains(addr, len(data)) {
		copy(m.cache[addr-m.cacheAddr:], data)
	}
	return m.mem.WriteMemory(addr, data)
}

// cacheMemory prefetches size bytes at addr. If the prefetch fails the
// uncached memory is returned, so that faults are reported by the reads
// that actually hit them.
func cacheMemory(mem MemoryReadWriter, addr uint64, size int) MemoryReadWriter {
	if size <= 0 {
		return mem
	}
	if cacheMem, isCache := mem.(*memCache); isCache {
		if cacheMem.contains(addr, size) {
			return mem
		}
		mem = cacheMem.mem
	}
	cache := make([]byte, size)
	n, err := mem.ReadMemory(cache, addr)
	if err != nil || n != size {
		return mem
	}
	return &memCache{addr, cache, mem}
}
