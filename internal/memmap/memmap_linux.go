//go:build linux

// File: internal/memmap/memmap_linux.go
// Package memmap provides double-mapped anonymous memory regions.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A region of physical pages backed by a memfd is mapped twice, back to back,
// into one contiguous virtual range. A store at offset i is readable at
// offset i+size and vice versa, so ring buffers built on top never need
// element-level wrap logic.

package memmap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/api"
)

// Alloc maps count*unit bytes of physical memory twice into one virtual
// range of 2*count*unit bytes. count is first rounded up so the region is a
// whole number of pages. Returns the base of the doubled range and the
// rounded element count.
func Alloc(unit uintptr, count int) (unsafe.Pointer, int, error) {
	if unit == 0 || count <= 0 {
		return nil, 0, fmt.Errorf("memmap: bad region %dx%d: %w", count, unit, api.ErrResourceExhausted)
	}
	count = roundToPages(unit, count)
	size := uintptr(count) * unit

	fd, err := unix.MemfdCreate("hioload-tcp-ring", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, 0, fmt.Errorf("memmap: memfd_create: %w (%v)", api.ErrResourceExhausted, err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, 0, fmt.Errorf("memmap: ftruncate: %w (%v)", api.ErrResourceExhausted, err)
	}

	// Reserve the doubled range first so both halves land adjacently.
	base, err := unix.MmapPtr(-1, 0, nil, 2*size,
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, 0, fmt.Errorf("memmap: reserve: %w (%v)", api.ErrResourceExhausted, err)
	}

	for _, off := range []uintptr{0, size} {
		_, err := unix.MmapPtr(fd, 0, unsafe.Add(base, off), size,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED)
		if err != nil {
			_ = unix.MunmapPtr(base, 2*size)
			return nil, 0, fmt.Errorf("memmap: map half at %d: %w (%v)", off, api.ErrResourceExhausted, err)
		}
	}
	return base, count, nil
}

// Free unmaps a region previously returned by Alloc. count must be the
// rounded count Alloc returned.
func Free(base unsafe.Pointer, unit uintptr, count int) error {
	return unix.MunmapPtr(base, 2*uintptr(count)*unit)
}

// roundToPages expands count so count*unit is a multiple of the page size.
func roundToPages(unit uintptr, count int) int {
	page := uintptr(unix.Getpagesize())
	size := uintptr(count) * unit
	if rem := size % page; rem != 0 {
		size += page - rem
	}
	return int(size / unit)
}
