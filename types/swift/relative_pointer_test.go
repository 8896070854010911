package swift

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

func TestResolveDisplacementRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		self uint64
		off  int32
	}{
		{"zero", 0x1000, 0},
		{"forward", 0x1000, 0x24},
		{"backward", 0x1000, -0x24},
		{"max", 0x1_0000_0000, math.MaxInt32},
		{"min", 0x1_0000_0000, math.MinInt32},
		{"min at exact distance", uint64(1) << 31, math.MinInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Resolve(tt.self, tt.off)
			got, err := Displacement(tt.self, target)
			if err != nil {
				t.Fatalf("Displacement(%#x, %#x) error = %v", tt.self, target, err)
			}
			if got != tt.off {
				t.Errorf("Displacement(%#x, Resolve(%#x, %d)) = %d", tt.self, tt.self, tt.off, got)
			}
			if checked, err := ResolveChecked(tt.self, tt.off); err != nil || checked != target {
				t.Errorf("ResolveChecked() = %#x, %v, want %#x", checked, err, target)
			}
		})
	}
}

func TestResolveChecked(t *testing.T) {
	if _, err := ResolveChecked(0x10, -0x20); !errors.Is(err, ErrCorruptDescriptor) {
		t.Errorf("ResolveChecked() underflow error = %v", err)
	}
	if _, err := ResolveChecked(math.MaxUint64-4, 8); !errors.Is(err, ErrCorruptDescriptor) {
		t.Errorf("ResolveChecked() overflow error = %v", err)
	}
	if _, err := Displacement(0, uint64(math.MaxInt32)+1); !errors.Is(err, ErrCorruptDescriptor) {
		t.Errorf("Displacement() out of range error = %v", err)
	}
}

func TestRelativeDirectPointerRead(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[8:], uint32(0xfffffff8)) // -8
	m, err := memory.New(8, binary.LittleEndian, memory.Region{Name: "image", Base: 0x2000, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	var p RelativeDirectPointer
	if err := p.Read(m, 0x2008); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	cp := p
	if got := cp.GetAddress(); got != 0x2000 {
		t.Errorf("copy GetAddress() = %#x, want 0x2000", got)
	}
	if !p.IsSet() {
		t.Error("IsSet() = false")
	}
	var null RelativeDirectPointer
	if err := null.Read(m, 0x2000); err != nil || null.IsSet() {
		t.Errorf("null pointer Read() = %v, IsSet() = %t", err, null.IsSet())
	}
	if err := p.Read(m, 0x200e); !errors.Is(err, memory.ErrUnmapped) {
		t.Errorf("Read() past end error = %v", err)
	}
}
