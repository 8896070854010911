// Package memory provides a read-only, bounds checked view of an address space
// made of mapped regions. Every multi-byte read honours the space's byte
// order and every pointer-sized read honours its pointer size.
package memory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"fortio.org/safecast"
)

var (
	// ErrUnmapped is wrapped by every FaultError.
	ErrUnmapped = errors.New("address not mapped")
	// ErrPointerSize is returned for pointer sizes other than 4 or 8.
	ErrPointerSize = errors.New("unsupported pointer size")
	// ErrOverlap is returned when two regions share an address.
	ErrOverlap = errors.New("overlapping regions")
)

// FaultError describes a read that left the mapped regions.
type FaultError struct {
	Addr uint64
	Size uint64
	Msg  string
}

func (e *FaultError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("memory fault reading %d bytes at %#x: %s", e.Size, e.Addr, e.Msg)
	}
	return fmt.Sprintf("memory fault reading %d bytes at %#x", e.Size, e.Addr)
}

func (e *FaultError) Unwrap() error { return ErrUnmapped }

// Region is a contiguous block of mapped bytes starting at Base.
type Region struct {
	Name string
	Base uint64
	Data []byte
}

// End is the first address past the region.
func (r Region) End() uint64 {
	return r.Base + uint64(len(r.Data))
}

func (r Region) contains(addr, n uint64) bool {
	return addr >= r.Base && n <= uint64(len(r.Data)) && addr-r.Base <= uint64(len(r.Data))-n
}

// Space is an immutable address space. It is safe for concurrent use.
type Space struct {
	order   binary.ByteOrder
	ptrSize int
	regions []Region
}

// New returns a Space over the given regions. Regions are not copied and must
// not be modified while the Space is in use.
func New(ptrSize int, order binary.ByteOrder, regions ...Region) (*Space, error) {
	if ptrSize != 4 && ptrSize != 8 {
		return nil, fmt.Errorf("%w: %d", ErrPointerSize, ptrSize)
	}
	if order == nil {
		order = binary.LittleEndian
	}
	rs := make([]Region, len(regions))
	copy(rs, regions)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Base < rs[j].Base })
	for i := 1; i < len(rs); i++ {
		if rs[i].Base < rs[i-1].End() {
			return nil, fmt.Errorf("%w: %q [%#x,%#x) and %q [%#x,%#x)", ErrOverlap,
				rs[i-1].Name, rs[i-1].Base, rs[i-1].End(), rs[i].Name, rs[i].Base, rs[i].End())
		}
	}
	return &Space{order: order, ptrSize: ptrSize, regions: rs}, nil
}

// PointerSize is the size in bytes of a platform pointer.
func (s *Space) PointerSize() int { return s.ptrSize }

// ByteOrder is the byte order of multi-byte values.
func (s *Space) ByteOrder() binary.ByteOrder { return s.order }

// Regions returns the mapped regions ordered by base address.
func (s *Space) Regions() []Region { return s.regions }

func (s *Space) region(addr, n uint64) (Region, bool) {
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].End() > addr })
	if i < len(s.regions) && s.regions[i].contains(addr, n) {
		return s.regions[i], true
	}
	return Region{}, false
}

// Contains reports whether the n bytes at addr are mapped by a single region.
func (s *Space) Contains(addr, n uint64) bool {
	_, ok := s.region(addr, n)
	return ok
}

// Bytes returns the n mapped bytes at addr without copying.
func (s *Space) Bytes(addr, n uint64) ([]byte, error) {
	r, ok := s.region(addr, n)
	if !ok {
		return nil, &FaultError{Addr: addr, Size: n}
	}
	off := addr - r.Base
	return r.Data[off : off+n : off+n], nil
}

// ReadAt implements io.ReaderAt with off interpreted as an address.
func (s *Space) ReadAt(p []byte, off int64) (int, error) {
	addr, err := safecast.Conv[uint64](off)
	if err != nil {
		return 0, &FaultError{Addr: 0, Size: uint64(len(p)), Msg: "negative address"}
	}
	b, err := s.Bytes(addr, uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, b), nil
}

// Reader returns a reader over the n bytes at addr.
func (s *Space) Reader(addr, n uint64) (*io.SectionReader, error) {
	if !s.Contains(addr, n) {
		return nil, &FaultError{Addr: addr, Size: n}
	}
	off, err := safecast.Conv[int64](addr)
	if err != nil {
		return nil, &FaultError{Addr: addr, Size: n, Msg: err.Error()}
	}
	size, err := safecast.Conv[int64](n)
	if err != nil {
		return nil, &FaultError{Addr: addr, Size: n, Msg: err.Error()}
	}
	return io.NewSectionReader(s, off, size), nil
}

// Read decodes data from the bytes at addr using the space's byte order.
func (s *Space) Read(addr uint64, data any) error {
	n := binary.Size(data)
	if n < 0 {
		return fmt.Errorf("cannot decode %T", data)
	}
	r, err := s.Reader(addr, uint64(n))
	if err != nil {
		return err
	}
	return binary.Read(r, s.order, data)
}

func (s *Space) Uint16(addr uint64) (uint16, error) {
	b, err := s.Bytes(addr, 2)
	if err != nil {
		return 0, err
	}
	return s.order.Uint16(b), nil
}

func (s *Space) Uint32(addr uint64) (uint32, error) {
	b, err := s.Bytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return s.order.Uint32(b), nil
}

func (s *Space) Int32(addr uint64) (int32, error) {
	v, err := s.Uint32(addr)
	return int32(v), err
}

func (s *Space) Uint64(addr uint64) (uint64, error) {
	b, err := s.Bytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return s.order.Uint64(b), nil
}

// Pointer reads a pointer-sized word at addr.
func (s *Space) Pointer(addr uint64) (uint64, error) {
	if s.ptrSize == 4 {
		v, err := s.Uint32(addr)
		return uint64(v), err
	}
	return s.Uint64(addr)
}

// Advance returns addr+units*PointerSize, failing on overflow.
func (s *Space) Advance(addr uint64, units uint64) (uint64, error) {
	delta := units * uint64(s.ptrSize)
	if units != 0 && delta/units != uint64(s.ptrSize) {
		return 0, &FaultError{Addr: addr, Msg: fmt.Sprintf("advancing %d words overflows", units)}
	}
	if addr+delta < addr {
		return 0, &FaultError{Addr: addr, Msg: fmt.Sprintf("advancing %d words overflows", units)}
	}
	return addr + delta, nil
}

// CString reads a NUL terminated string at addr. The terminator must lie in
// the same region.
func (s *Space) CString(addr uint64) (string, error) {
	b, err := s.tail(addr)
	if err != nil {
		return "", err
	}
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", &FaultError{Addr: addr, Size: uint64(len(b)), Msg: "unterminated string"}
	}
	return string(b[:i]), nil
}

// MangledName reads the raw bytes of a mangled type name at addr. Symbolic
// references are copied verbatim: control bytes 0x01-0x17 are followed by a
// 4-byte relative reference and 0x18-0x1f by a pointer-sized absolute one,
// either of which may contain NUL bytes.
func (s *Space) MangledName(addr uint64) ([]byte, error) {
	b, err := s.tail(addr)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			out := make([]byte, i)
			copy(out, b[:i])
			return out, nil
		case c >= 0x01 && c <= 0x17:
			i += 1 + 4
		case c >= 0x18 && c <= 0x1f:
			i += 1 + s.ptrSize
		default:
			i++
		}
	}
	return nil, &FaultError{Addr: addr, Size: uint64(len(b)), Msg: "unterminated mangled name"}
}

func (s *Space) tail(addr uint64) ([]byte, error) {
	r, ok := s.region(addr, 0)
	if !ok || addr == r.End() {
		return nil, &FaultError{Addr: addr, Size: 1}
	}
	return r.Data[addr-r.Base:], nil
}
