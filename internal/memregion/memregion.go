// Package memregion owns the mapped shared-memory region backing the
// bridge: a single 1 MiB file mapped read-write, plus the atomic
// accessors used to read and write ring/doorbell fields without
// tearing in the presence of a concurrent external writer.
//
// The atomic-load-over-a-raw-memory-offset technique mirrors the
// pattern used to read kernel-written I/O descriptors straight out of
// an mmap'd page: take the base pointer, add a fixed field offset,
// and issue a sync/atomic load on that address instead of dereferencing
// the Go struct directly.
package memregion

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/zen-systems/edgebridge/internal/constants"
)

// Region is a mapped or in-process byte buffer of exactly
// constants.RegionSize bytes.
type Region struct {
	data []byte
	file *os.File
}

// Open maps the file at path read-write, creating and zero-filling it
// first if create is true and it does not exist.
func Open(path string, create bool) (*Region, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() != constants.RegionSize {
		if !create {
			f.Close()
			return nil, os.ErrNotExist
		}
		if err := f.Truncate(constants.RegionSize); err != nil {
			f.Close()
			return nil, err
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, constants.RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Region{data: data, file: f}, nil
}

// NewInProcess returns a Region backed by a plain Go byte slice, used
// by tests and by callers that don't need an actual mmap.
func NewInProcess() *Region {
	return &Region{data: make([]byte, constants.RegionSize)}
}

// Bytes returns the full backing slice.
func (r *Region) Bytes() []byte {
	return r.data
}

// Slice returns a sub-slice of the region at [off, off+size).
func (r *Region) Slice(off, size int) []byte {
	return r.data[off : off+size]
}

// Sync flushes the mapping to the backing file, if any.
func (r *Region) Sync() error {
	if r.file == nil {
		return nil
	}
	return unix.Msync(r.data, unix.MS_SYNC)
}

// Close unmaps the region and closes the backing file.
func (r *Region) Close() error {
	var err error
	if r.file != nil {
		err = unix.Munmap(r.data)
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func ptrAt(base []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&base[off])
}

// LoadU32 performs an atomic acquire-style load of a little-endian
// uint32 field at byte offset off within the region.
func (r *Region) LoadU32(off int) uint32 {
	return atomic.LoadUint32((*uint32)(ptrAt(r.data, off)))
}

// StoreU32 performs an atomic release-style store.
func (r *Region) StoreU32(off int, v uint32) {
	atomic.StoreUint32((*uint32)(ptrAt(r.data, off)), v)
}

// AddU32 atomically increments a little-endian uint32 field and
// returns the new value.
func (r *Region) AddU32(off int, delta uint32) uint32 {
	return atomic.AddUint32((*uint32)(ptrAt(r.data, off)), delta)
}
