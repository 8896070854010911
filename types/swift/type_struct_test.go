package swift_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blacktop/go-swiftmeta/internal/fixture"
	"github.com/blacktop/go-swiftmeta/pkg/memory"
	"github.com/blacktop/go-swiftmeta/types/swift"
)

const base = 0x100000

func build(t *testing.T, ptrSize int, order binary.ByteOrder, s fixture.Struct) (*memory.Space, fixture.Handles) {
	t.Helper()
	b := fixture.NewBuilder(base, ptrSize, order)
	h := b.Struct(s)
	m, err := b.Space()
	if err != nil {
		t.Fatalf("Space() error = %v", err)
	}
	return m, h
}

func TestReadStructMetadata(t *testing.T) {
	for _, tt := range []struct {
		name    string
		ptrSize int
		order   binary.ByteOrder
	}{
		{"arm64", 8, binary.LittleEndian},
		{"armv7", 4, binary.LittleEndian},
		{"big endian", 8, binary.BigEndian},
	} {
		t.Run(tt.name, func(t *testing.T) {
			m, h := build(t, tt.ptrSize, tt.order, fixture.Person(tt.ptrSize))
			sm, err := swift.ReadStructMetadata(m, h.Metadata)
			if err != nil {
				t.Fatalf("ReadStructMetadata() error = %v", err)
			}
			if sm.GetKind() != swift.StructMetadataKind {
				t.Errorf("GetKind() = %v", sm.GetKind())
			}
			if sm.Description != h.Descriptor || sm.Descriptor.Address != h.Descriptor {
				t.Errorf("description = %#x, want %#x", sm.Description, h.Descriptor)
			}
			d := sm.Descriptor
			if d.NumFields != 4 || d.FieldOffsetVectorOffset != 2 {
				t.Errorf("NumFields = %d, FieldOffsetVectorOffset = %d", d.NumFields, d.FieldOffsetVectorOffset)
			}
			if d.IsGeneric() || !d.Flags.IsUnique() {
				t.Errorf("flags = %s", d.Flags)
			}
			name, err := d.Name(m)
			if err != nil || name != "Person" {
				t.Errorf("Name() = %q, %v", name, err)
			}
			mod, err := d.Module(m)
			if err != nil || mod != "StructMetadata" {
				t.Errorf("Module() = %q, %v", mod, err)
			}
			parent, err := d.Parent(m)
			if err != nil || parent == nil || parent.Address != h.Module || parent.Kind() != swift.CDKindModule {
				t.Errorf("Parent() = %+v, %v", parent, err)
			}

			p := uint32(tt.ptrSize)
			offs, err := sm.FieldOffsets(m)
			if err != nil {
				t.Fatalf("FieldOffsets() error = %v", err)
			}
			if diff := cmp.Diff([]uint32{0, p, 2 * p, 3 * p}, offs); diff != "" {
				t.Errorf("FieldOffsets() mismatch (-want +got):\n%s", diff)
			}

			vwt, err := sm.ValueWitnesses(m)
			if err != nil || vwt == nil {
				t.Fatalf("ValueWitnesses() = %v, %v", vwt, err)
			}
			if size, ok, err := sm.InstanceSize(m); err != nil || !ok || size != uint64(4*p) {
				t.Errorf("InstanceSize() = %d, %t, %v", size, ok, err)
			}
			if vwt.Size != uint64(4*p) || vwt.Stride != uint64(4*p) || vwt.Alignment() != uint64(p) {
				t.Errorf("value witnesses = %+v, alignment %d", vwt, vwt.Alignment())
			}
		})
	}
}

func TestFieldRecords(t *testing.T) {
	s := fixture.Person(8)
	s.Fields[1].IsVar = false
	m, h := build(t, 8, nil, s)
	sd, err := swift.ReadStructDescriptor(m, h.Descriptor)
	if err != nil {
		t.Fatalf("ReadStructDescriptor() error = %v", err)
	}
	fd, err := sd.FieldDescriptor(m)
	if err != nil {
		t.Fatalf("FieldDescriptor() error = %v", err)
	}
	if !fd.IsStruct() || fd.Address != h.FieldDescriptor || fd.FieldRecordSize != 12 {
		t.Errorf("field descriptor = %+v", fd)
	}
	typ, err := fd.MangledTypeName(m)
	if err != nil || string(typ) != "14StructMetadata6PersonV" {
		t.Errorf("MangledTypeName() = %q, %v", typ, err)
	}
	if sc, err := fd.Superclass(m); err != nil || sc != nil {
		t.Errorf("Superclass() = %q, %v", sc, err)
	}

	type rec struct {
		Name  string
		Type  string
		IsVar bool
	}
	var got []rec
	for r, err := range fd.Records(m) {
		if err != nil {
			t.Fatalf("Records() error = %v", err)
		}
		name, err := r.Name(m)
		if err != nil {
			t.Fatal(err)
		}
		typ, err := r.MangledTypeName(m)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rec{name, string(typ), r.IsVar()})
	}
	want := []rec{
		{"name", "SS", true},
		{"age", "Si", false},
		{"city", "SS", true},
		{"height", "Si", true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}

	for _, i := range []int{-1, 4, 100} {
		if _, err := fd.Record(m, i); !errors.Is(err, swift.ErrIndexOutOfRange) {
			t.Errorf("Record(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}
	sm, err := swift.ReadStructMetadata(m, h.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm.FieldOffset(m, 4); !errors.Is(err, swift.ErrIndexOutOfRange) {
		t.Errorf("FieldOffset(4) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestRecordStride(t *testing.T) {
	s := fixture.Person(8)
	s.RecordSize = 16
	m, h := build(t, 8, nil, s)
	fd, err := swift.ReadFieldDescriptor(m, h.FieldDescriptor)
	if err != nil {
		t.Fatalf("ReadFieldDescriptor() error = %v", err)
	}
	r, err := fd.Record(m, 3)
	if err != nil {
		t.Fatalf("Record(3) error = %v", err)
	}
	if want := h.FieldDescriptor + 16 + 3*16; r.Address != want {
		t.Errorf("Record(3).Address = %#x, want %#x", r.Address, want)
	}
	if name, _ := r.Name(m); name != "height" {
		t.Errorf("Record(3).Name() = %q", name)
	}
}

func TestZeroFields(t *testing.T) {
	m, h := build(t, 8, nil, fixture.Struct{Module: "M", Name: "Empty", Size: 1})
	sm, err := swift.ReadStructMetadata(m, h.Metadata)
	if err != nil {
		t.Fatalf("ReadStructMetadata() error = %v", err)
	}
	fd, err := sm.Descriptor.FieldDescriptor(m)
	if err != nil {
		t.Fatalf("FieldDescriptor() error = %v", err)
	}
	if fd.NumFields != 0 {
		t.Errorf("NumFields = %d", fd.NumFields)
	}
	for range fd.Records(m) {
		t.Error("Records() yielded a record")
	}
	offs, err := sm.FieldOffsets(m)
	if err != nil || len(offs) != 0 {
		t.Errorf("FieldOffsets() = %v, %v", offs, err)
	}
	if _, err := sm.FieldOffset(m, 0); !errors.Is(err, swift.ErrNoFields) {
		t.Errorf("FieldOffset(0) error = %v, want ErrNoFields", err)
	}
}

func TestZeroFieldsDanglingFieldDescriptor(t *testing.T) {
	m, h := build(t, 8, nil, fixture.Struct{Module: "M", Name: "Empty", Size: 1, DanglingFields: true})
	sm, err := swift.ReadStructMetadata(m, h.Metadata)
	if err != nil {
		t.Fatalf("ReadStructMetadata() error = %v", err)
	}
	fields := sm.Descriptor.FieldsOffset
	if !fields.IsSet() || m.Contains(fields.GetAddress(), 1) {
		t.Fatalf("fields pointer %#x is not dangling", fields.GetAddress())
	}
	fd, err := sm.Descriptor.FieldDescriptor(m)
	if err != nil {
		t.Fatalf("FieldDescriptor() error = %v", err)
	}
	if fd.NumFields != 0 {
		t.Errorf("NumFields = %d", fd.NumFields)
	}
}

func TestFieldOffsetWithoutVector(t *testing.T) {
	m, err := memory.New(8, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		name string
		desc swift.TargetStructDescriptor
	}{
		{"no vector", swift.TargetStructDescriptor{NumFields: 3}},
		{"no fields", swift.TargetStructDescriptor{FieldOffsetVectorOffset: 2}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			sm := swift.StructMetadata{Address: 0xdead0, Descriptor: &tt.desc}
			if _, err := sm.FieldOffset(m, 0); !errors.Is(err, swift.ErrNoFields) {
				t.Errorf("FieldOffset(0) error = %v, want ErrNoFields", err)
			}
			if _, err := sm.FieldOffset(m, 0); errors.Is(err, swift.ErrCorruptDescriptor) {
				t.Errorf("FieldOffset(0) read memory: %v", err)
			}
		})
	}
}

func TestCorruptDescriptors(t *testing.T) {
	mismatch := uint32(3)
	tests := []struct {
		name string
		s    fixture.Struct
		read func(*memory.Space, fixture.Handles) error
		want error
	}{
		{
			name: "field count mismatch",
			s:    func() fixture.Struct { s := fixture.Person(8); s.HeaderNumFields = &mismatch; return s }(),
			read: func(m *memory.Space, h fixture.Handles) error {
				sd, err := swift.ReadStructDescriptor(m, h.Descriptor)
				if err != nil {
					return err
				}
				_, err = sd.FieldDescriptor(m)
				return err
			},
			want: swift.ErrCorruptDescriptor,
		},
		{
			name: "record size too small",
			s:    func() fixture.Struct { s := fixture.Person(8); s.RecordSize = 8; return s }(),
			read: func(m *memory.Space, h fixture.Handles) error {
				_, err := swift.ReadFieldDescriptor(m, h.FieldDescriptor)
				return err
			},
			want: swift.ErrCorruptDescriptor,
		},
		{
			name: "enum metadata kind",
			s:    func() fixture.Struct { s := fixture.Person(8); s.MetadataKind = 0x201; return s }(),
			read: func(m *memory.Space, h fixture.Handles) error {
				_, err := swift.ReadStructMetadata(m, h.Metadata)
				return err
			},
			want: swift.ErrUnsupportedKind,
		},
		{
			name: "class descriptor",
			s:    func() fixture.Struct { s := fixture.Person(8); s.DescriptorFlags = 0x50; return s }(),
			read: func(m *memory.Space, h fixture.Handles) error {
				_, err := swift.ReadStructMetadata(m, h.Metadata)
				return err
			},
			want: swift.ErrUnsupportedKind,
		},
		{
			name: "no field offset vector",
			s:    func() fixture.Struct { s := fixture.Person(8); s.NoFieldVector = true; return s }(),
			read: func(m *memory.Space, h fixture.Handles) error {
				sm, err := swift.ReadStructMetadata(m, h.Metadata)
				if err != nil {
					return err
				}
				_, err = sm.FieldOffset(m, 0)
				return err
			},
			want: swift.ErrNoFields,
		},
		{
			name: "not generic",
			s:    fixture.Person(8),
			read: func(m *memory.Space, h fixture.Handles) error {
				sd, err := swift.ReadStructDescriptor(m, h.Descriptor)
				if err != nil {
					return err
				}
				_, err = sd.GenericContext(m)
				return err
			},
			want: swift.ErrNotGeneric,
		},
		{
			name: "handle outside memory",
			s:    fixture.Person(8),
			read: func(m *memory.Space, h fixture.Handles) error {
				_, err := swift.ReadStructMetadata(m, 0x10)
				return err
			},
			want: swift.ErrCorruptDescriptor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := build(t, 8, nil, tt.s)
			if err := tt.read(m, h); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenericStruct(t *testing.T) {
	static := uint64(1)
	tests := []struct {
		name         string
		g            fixture.Generic
		wantErr      error
		wantTrailing bool
		wantStatic   bool
	}{
		{
			name: "instantiated",
			g:    fixture.Generic{NumParams: 1, NumKeyArguments: 1, Instantiated: true},
		},
		{
			name:    "not yet instantiated",
			g:       fixture.Generic{NumParams: 1, NumKeyArguments: 1},
			wantErr: swift.ErrNotYetInstantiated,
		},
		{
			name: "no cache",
			g:    fixture.Generic{NumParams: 2, NumKeyArguments: 2, NoCache: true},
		},
		{
			name:         "static specialization",
			g:            fixture.Generic{NumParams: 1, NumKeyArguments: 1, TrailingFlags: &static},
			wantErr:      swift.ErrNotYetInstantiated,
			wantTrailing: true,
			wantStatic:   true,
		},
	}
	for _, ptrSize := range []int{4, 8} {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/ptr%d", tt.name, ptrSize), func(t *testing.T) {
				s := fixture.Person(ptrSize)
				s.Name = "Box"
				s.Generic = &tt.g
				m, h := build(t, ptrSize, nil, s)
				sm, err := swift.ReadStructMetadata(m, h.Metadata)
				if err != nil {
					t.Fatalf("ReadStructMetadata() error = %v", err)
				}
				if !sm.Descriptor.IsGeneric() {
					t.Fatal("IsGeneric() = false")
				}
				if want := uint32(2 + tt.g.NumKeyArguments); sm.Descriptor.FieldOffsetVectorOffset != want {
					t.Errorf("FieldOffsetVectorOffset = %d, want %d", sm.Descriptor.FieldOffsetVectorOffset, want)
				}
				gc, err := sm.Descriptor.GenericContext(m)
				if err != nil {
					t.Fatalf("GenericContext() error = %v", err)
				}
				if gc.Base.NumParams != tt.g.NumParams || gc.Base.NumKeyArguments != tt.g.NumKeyArguments || !gc.HasArguments() {
					t.Errorf("generic header = %+v", gc.Base)
				}
				pattern, err := gc.Pattern(m)
				if err != nil {
					t.Fatalf("Pattern() error = %v", err)
				}
				if pattern.Address != h.Pattern || pattern.PatternFlags.MetadataKind() != swift.StructMetadataKind {
					t.Errorf("pattern = %+v", pattern)
				}
				if err := gc.Instantiated(m); !errors.Is(err, tt.wantErr) {
					t.Errorf("Instantiated() error = %v, want %v", err, tt.wantErr)
				}
				tf, ok, err := sm.TrailingFlags(m)
				if err != nil {
					t.Fatalf("TrailingFlags() error = %v", err)
				}
				if ok != tt.wantTrailing || tf.IsStaticSpecialization() != tt.wantStatic {
					t.Errorf("TrailingFlags() = %s, %t", tf, ok)
				}
				p := uint32(ptrSize)
				offs, err := sm.FieldOffsets(m)
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff([]uint32{0, p, 2 * p, 3 * p}, offs); diff != "" {
					t.Errorf("FieldOffsets() mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestValueWitnessesAbsent(t *testing.T) {
	s := fixture.Person(8)
	s.NoValueWitnesses = true
	m, h := build(t, 8, nil, s)
	sm, err := swift.ReadStructMetadata(m, h.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if vwt, err := sm.ValueWitnesses(m); err != nil || vwt != nil {
		t.Errorf("ValueWitnesses() = %+v, %v, want nil, nil", vwt, err)
	}
	if size, ok, err := sm.InstanceSize(m); err != nil || ok || size != 0 {
		t.Errorf("InstanceSize() = %d, %t, %v", size, ok, err)
	}
}

func TestSymbolicFieldType(t *testing.T) {
	b := fixture.NewBuilder(base, 8, nil)
	s := fixture.Struct{
		Module: "M",
		Name:   "Wrapper",
		Fields: []fixture.Field{{Name: "inner", MangledType: "\x01\x00\x10\x00\x00", Offset: 0}},
	}
	h := b.Struct(s)
	m, err := b.Space()
	if err != nil {
		t.Fatal(err)
	}
	fd, err := swift.ReadFieldDescriptor(m, h.FieldDescriptor)
	if err != nil {
		t.Fatal(err)
	}
	r, err := fd.Record(m, 0)
	if err != nil {
		t.Fatal(err)
	}
	typ, err := r.MangledTypeName(m)
	if err != nil {
		t.Fatalf("MangledTypeName() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0x01, 0x00, 0x10, 0x00, 0x00}, typ); diff != "" {
		t.Errorf("MangledTypeName() mismatch (-want +got):\n%s", diff)
	}
}
