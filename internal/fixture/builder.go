// Package fixture lays out Swift 5 metadata records in a synthetic address
// space for tests and demos.
package fixture

import (
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
	"github.com/blacktop/go-swiftmeta/types/swift"
)

// Builder appends records to a single region starting at a base address.
// Its Put methods panic on misuse since fixtures are built from constants.
type Builder struct {
	ptrSize int
	order   binary.ByteOrder
	base    uint64
	buf     []byte
}

func NewBuilder(base uint64, ptrSize int, order binary.ByteOrder) *Builder {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Builder{ptrSize: ptrSize, order: order, base: base}
}

func (b *Builder) PointerSize() int { return b.ptrSize }

// Alloc reserves size zeroed bytes aligned to align and returns their address.
func (b *Builder) Alloc(size, align int) uint64 {
	if align > 1 {
		for (b.base+uint64(len(b.buf)))%uint64(align) != 0 {
			b.buf = append(b.buf, 0)
		}
	}
	addr := b.base + uint64(len(b.buf))
	b.buf = append(b.buf, make([]byte, size)...)
	return addr
}

func (b *Builder) at(addr uint64, n int) []byte {
	if addr < b.base || addr-b.base+uint64(n) > uint64(len(b.buf)) {
		panic(fmt.Sprintf("fixture: write of %d bytes at %#x outside [%#x,%#x)", n, addr, b.base, b.base+uint64(len(b.buf))))
	}
	off := addr - b.base
	return b.buf[off : off+uint64(n)]
}

func (b *Builder) PutUint16(addr uint64, v uint16) { b.order.PutUint16(b.at(addr, 2), v) }
func (b *Builder) PutUint32(addr uint64, v uint32) { b.order.PutUint32(b.at(addr, 4), v) }
func (b *Builder) PutUint64(addr uint64, v uint64) { b.order.PutUint64(b.at(addr, 8), v) }

// PutPointer writes a pointer-sized word.
func (b *Builder) PutPointer(addr, v uint64) {
	if b.ptrSize == 4 {
		if v > 0xFFFFFFFF {
			panic(fmt.Sprintf("fixture: pointer %#x does not fit in 32 bits", v))
		}
		b.PutUint32(addr, uint32(v))
		return
	}
	b.PutUint64(addr, v)
}

// PutRelative stores at addr the relative offset that refers to target.
func (b *Builder) PutRelative(addr, target uint64) {
	off, err := swift.Displacement(addr, target)
	if err != nil {
		panic(fmt.Sprintf("fixture: %v", err))
	}
	b.PutUint32(addr, uint32(off))
}

// CString appends a NUL terminated string and returns its address.
func (b *Builder) CString(s string) uint64 {
	addr := b.Alloc(len(s)+1, 1)
	copy(b.at(addr, len(s)), s)
	return addr
}

// Space returns the address space holding everything built so far.
func (b *Builder) Space() (*memory.Space, error) {
	data := make([]byte, len(b.buf))
	copy(data, b.buf)
	return memory.New(b.ptrSize, b.order, memory.Region{Name: "image", Base: b.base, Data: data})
}
