package types

import (
	"errors"
	"testing"
)

func TestFlagSetFields(t *testing.T) {
	tests := []struct {
		name  string
		bits  uint32
		first uint
		width uint
		want  uint32
	}{
		{"kind", 0x00004011, 0, 5, 0x11},
		{"unique", 0x00004051, 6, 1, 1},
		{"generic unset", 0x00004051, 7, 1, 0},
		{"version", 0x00004011, 8, 8, 0x40},
		{"kind specific", 0x00090011, 16, 16, 0x9},
		{"full word", ^uint32(0), 0, 32, ^uint32(0)},
		{"zero width at end", 0xff, 32, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFlagSet(tt.bits).Field(tt.first, tt.width)
			if err != nil {
				t.Fatalf("Field(%d, %d) error = %v", tt.first, tt.width, err)
			}
			if got != tt.want {
				t.Errorf("Field(%d, %d) of %#x = %#x, want %#x", tt.first, tt.width, tt.bits, got, tt.want)
			}
		})
	}
}

func TestFlagSetFieldRange(t *testing.T) {
	f := NewFlagSet(uint32(0xFFFFFFFF))
	tests := []struct {
		name         string
		first, width uint
	}{
		{"past the end", 24, 9},
		{"start past the word", 33, 0},
		{"width wraps", 4, ^uint(0)},
		{"start wraps", ^uint(0), 2},
		{"both huge", ^uint(0) - 1, ^uint(0) - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.Field(tt.first, tt.width)
			if !errors.Is(err, ErrBitRange) {
				t.Errorf("Field(%d, %d) = %#x, %v, want ErrBitRange", tt.first, tt.width, v, err)
			}
		})
	}
}

func TestFlagSetField(t *testing.T) {
	f := NewFlagSet(uint32(37) << 21)
	got, err := f.Field(21, 11)
	if err != nil {
		t.Fatalf("Field(21, 11) error = %v", err)
	}
	if got != 37 {
		t.Errorf("Field(21, 11) = %d, want 37", got)
	}

	if _, err := f.Field(24, 9); !errors.Is(err, ErrBitRange) {
		t.Errorf("Field(24, 9) error = %v, want ErrBitRange", err)
	}
	if v, err := f.Field(3, 0); err != nil || v != 0 {
		t.Errorf("Field(3, 0) = %d, %v, want 0, nil", v, err)
	}
}

func TestFlagSetFlag(t *testing.T) {
	f := NewFlagSet(uint16(0x8001))
	tests := []struct {
		bit  uint
		want bool
	}{
		{0, true},
		{1, false},
		{15, true},
		{16, false},
		{200, false},
	}
	for _, tt := range tests {
		if got := f.Flag(tt.bit); got != tt.want {
			t.Errorf("Flag(%d) = %t, want %t", tt.bit, got, tt.want)
		}
	}
}

func TestFlagSetMasks(t *testing.T) {
	f := NewFlagSet(uint8(0))
	if w := f.Width(); w != 8 {
		t.Fatalf("Width() = %d, want 8", w)
	}
	tests := []struct {
		width uint
		want  uint8
	}{
		{0, 0},
		{3, 0x07},
		{8, 0xff},
		{12, 0xff},
	}
	for _, tt := range tests {
		if got := f.LowMask(tt.width); got != tt.want {
			t.Errorf("LowMask(%d) = %#x, want %#x", tt.width, got, tt.want)
		}
	}
	if got := f.FieldMask(7); got != 0x80 {
		t.Errorf("FieldMask(7) = %#x, want 0x80", got)
	}
	if got := f.FieldMask(8); got != 0 {
		t.Errorf("FieldMask(8) = %#x, want 0", got)
	}
	if got := NewFlagSet(uint32(0x51)).String(); got != "0x00000051" {
		t.Errorf("String() = %q, want %q", got, "0x00000051")
	}
}
