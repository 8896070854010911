package swift

import (
	"errors"
	"fmt"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

var (
	// ErrUnsupportedKind is returned when a metadata kind word or a context
	// descriptor kind is not the one a reader decodes.
	ErrUnsupportedKind = errors.New("unsupported kind")
	// ErrCorruptDescriptor is returned for inconsistent records, overflowing
	// address arithmetic and reads that leave mapped memory.
	ErrCorruptDescriptor = errors.New("corrupt descriptor")
	// ErrIndexOutOfRange is returned for a field or record index >= the count.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrNoFields is returned when field offsets are requested from a type
	// that stores none.
	ErrNoFields = errors.New("type has no stored field offsets")
	// ErrNotYetInstantiated is returned while a generic type's instantiation
	// cache is still zero. Callers may retry after forcing instantiation.
	ErrNotYetInstantiated = errors.New("generic metadata not yet instantiated")
	// ErrNotGeneric is returned when generic-only records are requested from a
	// descriptor without the generic flag.
	ErrNotGeneric = errors.New("descriptor is not generic")
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptDescriptor, fmt.Sprintf(format, args...))
}

// readErr adds context to a failed read. Faults in the address space mean the
// record pointed somewhere it should not, so they are reported as corrupt.
func readErr(what string, addr uint64, err error) error {
	if errors.Is(err, memory.ErrUnmapped) {
		return fmt.Errorf("%w: failed to read %s at %#x: %w", ErrCorruptDescriptor, what, addr, err)
	}
	return fmt.Errorf("failed to read %s at %#x: %w", what, addr, err)
}
