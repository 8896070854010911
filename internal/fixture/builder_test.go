package fixture

import (
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-swiftmeta/types/swift"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder(0x1000, 8, binary.LittleEndian)
	s := b.CString("abc")
	a := b.Alloc(8, 8)
	if s != 0x1000 || a != 0x1008 {
		t.Fatalf("CString() = %#x, Alloc() = %#x", s, a)
	}
	b.PutRelative(a, s)
	b.PutUint32(a+4, 0xdeadbeef)

	m, err := b.Space()
	if err != nil {
		t.Fatalf("Space() error = %v", err)
	}
	off, err := m.Int32(a)
	if err != nil || off != -8 {
		t.Errorf("relative offset = %d, %v, want -8", off, err)
	}
	if v, err := m.Uint32(a + 4); err != nil || v != 0xdeadbeef {
		t.Errorf("Uint32() = %#x, %v", v, err)
	}
	if str, err := m.CString(s); err != nil || str != "abc" {
		t.Errorf("CString() = %q, %v", str, err)
	}
}

func TestPutPointerPanicsOn32Bit(t *testing.T) {
	b := NewBuilder(0, 4, nil)
	addr := b.Alloc(4, 4)
	defer func() {
		if recover() == nil {
			t.Error("PutPointer() did not panic")
		}
	}()
	b.PutPointer(addr, 1<<32)
}

func TestStructFollowsLayoutTable(t *testing.T) {
	l := swift.Swift5()
	b := NewBuilder(0x1000, 8, binary.BigEndian)
	h := b.Struct(Person(8))
	m, err := b.Space()
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		name string
		addr uint64
		want uint32
	}{
		{"descriptor flags", h.Descriptor + l.DescriptorFlags, uint32(swift.CDKindStruct) | 1<<l.ContextUniqueBit},
		{"number of fields", h.Descriptor + l.DescriptorNumFields, 4},
		{"field offset vector offset", h.Descriptor + l.DescriptorFieldOffsetVectorOffset, uint32(l.MetadataDescriptionIndex + 1)},
		{"field descriptor count", h.FieldDescriptor + l.FieldDescriptorNumFields, 4},
		{"first record flags", h.FieldDescriptor + l.FieldDescriptorSize + l.FieldRecordFlags, 1 << l.FieldRecordVarBit},
		{"third field offset", h.Metadata + 2*8 + 2*l.FieldOffsetSize, 16},
	} {
		if got, err := m.Uint32(tt.addr); err != nil || got != tt.want {
			t.Errorf("%s = %#x, %v, want %#x", tt.name, got, err, tt.want)
		}
	}
	if kind, err := m.Pointer(h.Metadata); err != nil || kind != l.StructMetadataKindValue {
		t.Errorf("metadata kind = %#x, %v", kind, err)
	}
	if desc, err := m.Pointer(h.Metadata + l.MetadataDescriptionIndex*8); err != nil || desc != h.Descriptor {
		t.Errorf("metadata description = %#x, %v, want %#x", desc, err, h.Descriptor)
	}
}
