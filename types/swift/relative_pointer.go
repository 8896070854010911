package swift

import (
	"fmt"
	"math"

	"fortio.org/safecast"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

// Resolve returns the address a relative offset stored at self refers to.
// self must be the address of the storage holding off, never the address of a
// copy or of the enclosing record.
func Resolve(self uint64, off int32) uint64 {
	return self + uint64(int64(off))
}

// ResolveChecked is Resolve but fails when the result wraps around the
// address space.
func ResolveChecked(self uint64, off int32) (uint64, error) {
	if off < 0 && uint64(-int64(off)) > self {
		return 0, corruptf("relative offset %d at %#x underflows", off, self)
	}
	if off > 0 && self > math.MaxUint64-uint64(off) {
		return 0, corruptf("relative offset %d at %#x overflows", off, self)
	}
	return Resolve(self, off), nil
}

// Displacement is the inverse of Resolve: the relative offset that, stored at
// self, refers to target.
func Displacement(self, target uint64) (int32, error) {
	off, err := safecast.Conv[int32](int64(target - self))
	if err != nil {
		return 0, corruptf("%#x is out of relative range of %#x: %v", target, self, err)
	}
	return off, nil
}

// RelativeDirectPointer is a 32-bit self-relative offset together with the
// address it was read from, so copies keep resolving correctly.
type RelativeDirectPointer struct {
	Address uint64
	RelOff  int32
}

// GetAddress resolves the pointer against the address it was stored at.
func (r RelativeDirectPointer) GetAddress() uint64 {
	return Resolve(r.Address, r.RelOff)
}

// IsSet reports whether the pointer is non-null.
func (r RelativeDirectPointer) IsSet() bool {
	return r.RelOff != 0
}

func (r RelativeDirectPointer) checkedAddress() (uint64, error) {
	return ResolveChecked(r.Address, r.RelOff)
}

func (r RelativeDirectPointer) String() string {
	return fmt.Sprintf("%#x%+d -> %#x", r.Address, r.RelOff, r.GetAddress())
}

// readWords reads the size byte record at addr as 32-bit words in one access.
func readWords(m *memory.Space, addr, size uint64, what string) ([]uint32, error) {
	words := make([]uint32, size/4)
	if err := m.Read(addr, words); err != nil {
		return nil, readErr(what, addr, err)
	}
	return words, nil
}

// relativeAt is the relative pointer stored off bytes into a record at addr
// whose words are w.
func relativeAt(w []uint32, addr, off uint64) RelativeDirectPointer {
	return RelativeDirectPointer{Address: addr + off, RelOff: int32(w[off/4])}
}

func (p *RelativeDirectPointer) Read(m *memory.Space, addr uint64) error {
	off, err := m.Int32(addr)
	if err != nil {
		return err
	}
	p.Address = addr
	p.RelOff = off
	return nil
}
