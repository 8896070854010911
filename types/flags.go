package types

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrBitRange is returned when a bit field does not fit in the underlying word.
var ErrBitRange = errors.New("bit field out of range")

// Unsigned is the set of word types a FlagSet can view.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// FlagSet is a read-only view of a fixed width word whose bits encode flags
// and small integer fields.
type FlagSet[T Unsigned] struct {
	Bits T
}

// NewFlagSet wraps bits.
func NewFlagSet[T Unsigned](bits T) FlagSet[T] {
	return FlagSet[T]{Bits: bits}
}

// Width is the number of bits in T.
func (f FlagSet[T]) Width() uint {
	return uint(unsafe.Sizeof(f.Bits)) * 8
}

// LowMask returns a mask with the low width bits set. A width of zero yields 0
// and a width of at least Width() yields all ones.
func (f FlagSet[T]) LowMask(width uint) T {
	if width >= f.Width() {
		return ^T(0)
	}
	return (T(1) << width) - 1
}

// FieldMask returns the single bit mask for firstBit.
func (f FlagSet[T]) FieldMask(firstBit uint) T {
	if firstBit >= f.Width() {
		return 0
	}
	return f.LowMask(1) << firstBit
}

// Flag reports whether bit is set. Bits past the word width are never set.
func (f FlagSet[T]) Flag(bit uint) bool {
	return f.Bits&f.FieldMask(bit) != 0
}

// Field returns the width bits wide field starting at firstBit.
func (f FlagSet[T]) Field(firstBit, width uint) (T, error) {
	if w := f.Width(); firstBit > w || width > w-firstBit {
		return 0, fmt.Errorf("%w: %d bits at bit %d of a %d-bit word", ErrBitRange, width, firstBit, w)
	}
	if width == 0 {
		return 0, nil
	}
	return (f.Bits >> firstBit) & f.LowMask(width), nil
}

// String prints the raw word.
func (f FlagSet[T]) String() string {
	return fmt.Sprintf("%#0*x", int(f.Width()/4), uint64(f.Bits))
}
