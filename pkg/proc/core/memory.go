package core

import (
	"fmt"
)

// memRegion is a readable and possibly writable part of the address space,
// addressed with absolute addresses.
type memRegion interface {
	ReadMemory(buf []byte, addr uint64) (int, error)
	WriteMemory(addr uint64, data []byte) (int, error)
}

// A splicedMemory represents a memory space formed from multiple regions,
// each of which may override previously added regions. For example the
// text of the executable can be added first and the memory captured in a
// snapshot put on top of it.
type splicedMemory struct {
	readers []readerEntry
}

type readerEntry struct {
	offset uint64
	length uint64
	reader memRegion
}

// Add adds a new region to the splicedMemory, which may override existing regions.
func (r *splicedMemory) Add(reader memRegion, off, length uint64) {
	if length == 0 {
		return
	}
	end := off + length - 1
	newReaders := make([]readerEntry, 0, len(r.readers))
	add := func(e readerEntry) {
		if e.length == 0 {
			return
		}
		newReaders = append(newReaders, e)
	}
	inserted := false
	// Walk through the list of regions, fixing up any that overlap and inserting the new one.
	for _, entry := range r.readers {
		entryEnd := entry.offset + entry.length - 1
		switch {
		case entryEnd < off:
			// Entry is completely before the new region.
			add(entry)
		case end < entry.offset:
			// Entry is completely after the new region.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			add(entry)
		case off <= entry.offset && entryEnd <= end:
			// Entry is completely overwritten by the new region. Drop.
		case entry.offset < off && entryEnd <= end:
			// New region overwrites the end of the entry.
			entry.length = off - entry.offset
			add(entry)
		case off <= entry.offset && end < entryEnd:
			// New reader overwrites the beginning of the entry.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			overlap := end + 1 - entry.offset
			entry.offset += overlap
			entry.length -= overlap
			add(entry)
		case entry.offset < off && end < entryEnd:
			// New region punches a hole in the entry. Split it in two and put the new region in the middle.
			add(readerEntry{entry.offset, off - entry.offset, entry.reader})
			add(readerEntry{off, length, reader})
			add(readerEntry{end + 1, entryEnd - end, entry.reader})
			inserted = true
		default:
			panic(fmt.Sprintf("Unhandled case: existing entry is %v len %v, new is %v len %v", entry.offset, entry.length, off, length))
		}
	}
	if !inserted {
		newReaders = append(newReaders, readerEntry{off, length, reader})
	}
	r.readers = newReaders
}

// ReadMemory implements proc.MemoryReader.ReadMemory.
func (r *splicedMemory) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	err = r.each(len(buf), addr, func(entry readerEntry, start, cnt int, addr uint64) (int, error) {
		return entry.reader.ReadMemory(buf[start:start+cnt], addr)
	})
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

// WriteMemory implements proc.MemoryReadWriter.WriteMemory.
func (r *splicedMemory) WriteMemory(addr uint64, data []byte) (int, error) {
	err := r.each(len(data), addr, func(entry readerEntry, start, cnt int, addr uint64) (int, error) {
		return entry.reader.WriteMemory(addr, data[start:start+cnt])
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// each calls fn for every region overlapping [addr, addr+size) in address
// order. It fails if part of the range is not mapped.
func (r *splicedMemory) each(size int, addr uint64, fn func(entry readerEntry, start, cnt int, addr uint64) (int, error)) error {
	done := 0
	for _, entry := range r.readers {
		if done == size {
			break
		}
		if entry.offset+entry.length <= addr {
			continue
		}
		if entry.offset > addr {
			break
		}
		cnt := size - done
		if uint64(cnt) > entry.offset+entry.length-addr {
			cnt = int(entry.offset + entry.length - addr)
		}
		pn, err := fn(entry, done, cnt, addr)
		if err != nil {
			return fmt.Errorf("error while accessing spliced memory at %#x: %w", addr, err)
		}
		if pn != cnt {
			return fmt.Errorf("short access at %#x: %d of %d bytes", addr, pn, cnt)
		}
		done += cnt
		addr += uint64(cnt)
	}
	if done != size {
		return fmt.Errorf("hit unmapped area at %#x after %d bytes", addr, done)
	}
	return nil
}

// bytesRegion is memory captured in a snapshot.
type bytesRegion struct {
	addr uint64
	data []byte
}

func (b *bytesRegion) ReadMemory(buf []byte, addr uint64) (int, error) {
	if addr < b.addr || addr-b.addr+uint64(len(buf)) > uint64(len(b.data)) {
		return 0, fmt.Errorf("address %#x outside region", addr)
	}
	return copy(buf, b.data[addr-b.addr:]), nil
}

func (b *bytesRegion) WriteMemory(addr uint64, data []byte) (int, error) {
	if addr < b.addr || addr-b.addr+uint64(len(data)) > uint64(len(b.data)) {
		return 0, fmt.Errorf("address %#x outside region", addr)
	}
	return copy(b.data[addr-b.addr:], data), nil
}
