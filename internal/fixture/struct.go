package fixture

import (
	"fmt"

	"github.com/blacktop/go-swiftmeta/types/swift"
)

// Field is one stored property of a fixture struct.
type Field struct {
	Name        string
	MangledType string
	IsVar       bool
	Offset      uint32
}

// Generic makes a fixture struct generic.
type Generic struct {
	NumParams       uint16
	NumKeyArguments uint16
	// Instantiated fills the first word of the instantiation cache.
	Instantiated bool
	// TrailingFlags, when set, sets HasTrailingFlags in the pattern and
	// stores the value after the field offset vector.
	TrailingFlags *uint64
	// NoCache leaves the instantiation cache pointer null.
	NoCache bool
}

// Struct describes a struct type to lay out. Zero values pick the layout a
// compiler would emit; the remaining knobs produce damaged records.
type Struct struct {
	Module string
	Name   string
	Fields []Field
	// Size of an instance, stored in the value witness table. Defaults to
	// the end of the last pointer-sized field.
	Size    uint64
	Generic *Generic

	NoValueWitnesses bool
	NoFieldVector    bool   // store a zero field offset vector offset
	MetadataKind     uint64 // overrides the struct kind word
	DescriptorFlags  uint32 // overrides the context descriptor flags
	HeaderNumFields  *uint32
	RecordSize       uint16
	// DanglingFields points the field descriptor reference of a struct
	// without fields at unmapped memory.
	DanglingFields bool
}

// danglingDistance is far enough past any fixture image to be unmapped.
const danglingDistance = 0x10000000

// Handles are the addresses of the records built for a Struct.
type Handles struct {
	Metadata        uint64
	Descriptor      uint64
	FieldDescriptor uint64
	Module          uint64
	Pattern         uint64
	Cache           uint64
}

// Mangled appends a mangled name, which may embed NUL bytes inside symbolic
// references, and returns its address.
func (b *Builder) Mangled(name []byte) uint64 {
	addr := b.Alloc(len(name)+1, 1)
	copy(b.at(addr, len(name)), name)
	return addr
}

// Module lays out a module context descriptor and returns its address.
func (b *Builder) Module(name string) uint64 {
	l := swift.Swift5()
	addr := b.Alloc(int(l.ContextName)+4, 4)
	b.PutUint32(addr+l.DescriptorFlags, uint32(swift.CDKindModule))
	b.PutRelative(addr+l.ContextName, b.CString(name))
	return addr
}

// Struct lays out s: module and type descriptors, field records, value
// witness table and a metadata record whose address is the type handle.
func (b *Builder) Struct(s Struct) Handles {
	l := swift.Swift5()
	ptr := uint64(b.ptrSize)
	n := uint32(len(s.Fields))
	var h Handles

	if s.Module != "" {
		h.Module = b.Module(s.Module)
	}

	flags := uint32(swift.CDKindStruct) | 1<<l.ContextUniqueBit
	if s.Generic != nil {
		flags |= 1 << l.ContextGenericBit
	}
	if s.DescriptorFlags != 0 {
		flags = s.DescriptorFlags
	}

	descSize := l.DescriptorSize
	if s.Generic != nil {
		descSize += l.GenericHeaderSize
	}
	h.Descriptor = b.Alloc(int(descSize), 4)
	b.PutUint32(h.Descriptor+l.DescriptorFlags, flags)
	if h.Module != 0 {
		b.PutRelative(h.Descriptor+l.DescriptorParent, h.Module)
	}
	b.PutRelative(h.Descriptor+l.DescriptorName, b.CString(s.Name))
	b.PutUint32(h.Descriptor+l.DescriptorNumFields, n)

	// Key arguments sit between the description and the field offsets.
	fov := uint32(l.MetadataDescriptionIndex + 1)
	if s.Generic != nil {
		fov += uint32(s.Generic.NumKeyArguments)
	}
	if s.NoFieldVector {
		fov = 0
	}
	b.PutUint32(h.Descriptor+l.DescriptorFieldOffsetVectorOffset, fov)

	if n > 0 {
		recSize := uint64(s.RecordSize)
		if recSize == 0 {
			recSize = l.FieldRecordSize
		}
		// A short stride still needs room for the last full record.
		size := l.FieldDescriptorSize + uint64(n-1)*recSize + max(recSize, l.FieldRecordSize)
		h.FieldDescriptor = b.Alloc(int(size), 4)
		fd := h.FieldDescriptor
		b.PutRelative(fd+l.FieldDescriptorMangledTypeName, b.CString(mangledStruct(s.Module, s.Name)))
		b.PutUint16(fd+l.FieldDescriptorKind, uint16(swift.FDKindStruct))
		b.PutUint16(fd+l.FieldDescriptorRecordSize, uint16(recSize))
		hn := n
		if s.HeaderNumFields != nil {
			hn = *s.HeaderNumFields
		}
		b.PutUint32(fd+l.FieldDescriptorNumFields, hn)
		for i, f := range s.Fields {
			rec := fd + l.FieldDescriptorSize + uint64(i)*recSize
			var rf uint32
			if f.IsVar {
				rf |= 1 << l.FieldRecordVarBit
			}
			b.PutUint32(rec+l.FieldRecordFlags, rf)
			if f.MangledType != "" {
				b.PutRelative(rec+l.FieldRecordMangledTypeName, b.Mangled([]byte(f.MangledType)))
			}
			if f.Name != "" {
				b.PutRelative(rec+l.FieldRecordFieldName, b.CString(f.Name))
			}
		}
		b.PutRelative(h.Descriptor+l.DescriptorFields, fd)
	} else if s.DanglingFields {
		b.PutRelative(h.Descriptor+l.DescriptorFields, h.Descriptor+danglingDistance)
	}

	var vwt uint64
	if !s.NoValueWitnesses {
		size := s.Size
		if size == 0 {
			for _, f := range s.Fields {
				if end := uint64(f.Offset) + ptr; end > size {
					size = end
				}
			}
		}
		// Size and stride are followed by the 32-bit flags and extra
		// inhabitant count.
		sz := l.ValueWitnessSizeIndex * ptr
		vwt = b.Alloc(int(sz+2*ptr+8), b.ptrSize)
		b.PutPointer(vwt+sz, size)
		b.PutPointer(vwt+sz+ptr, size)
		b.PutUint32(vwt+sz+2*ptr, uint32(ptr-1))
	}

	// Words before the address point hold the value witness pointer.
	before := uint64(-l.MetadataValueWitnessesIndex)
	words := max(uint64(fov), l.MetadataDescriptionIndex+1)
	vectorWords := (uint64(n)*l.FieldOffsetSize + ptr - 1) / ptr
	metaSize := (before + words + vectorWords) * ptr
	if s.Generic != nil && s.Generic.TrailingFlags != nil {
		metaSize += l.TrailingFlagsSize
	}
	header := b.Alloc(int(metaSize), b.ptrSize)
	h.Metadata = header + before*ptr
	b.PutPointer(header, vwt)
	kind := l.StructMetadataKindValue
	if s.MetadataKind != 0 {
		kind = s.MetadataKind
	}
	b.PutPointer(h.Metadata, kind)
	b.PutPointer(h.Metadata+l.MetadataDescriptionIndex*ptr, h.Descriptor)
	if fov != 0 {
		for i, f := range s.Fields {
			b.PutUint32(h.Metadata+uint64(fov)*ptr+uint64(i)*l.FieldOffsetSize, f.Offset)
		}
	}

	if g := s.Generic; g != nil {
		gh := h.Descriptor + l.DescriptorSize
		if !g.NoCache {
			h.Cache = b.Alloc(16, b.ptrSize)
			if g.Instantiated {
				b.PutPointer(h.Cache, h.Metadata)
			}
			b.PutRelative(gh+l.GenericInstantiationCache, h.Cache)
		}
		h.Pattern = b.Alloc(int(l.PatternFlags)+4, 4)
		pf := uint32(swift.StructMetadataKind) << l.PatternValueMetadataKindBit
		if g.TrailingFlags != nil {
			pf |= 1 << l.PatternHasTrailingFlagsBit
			tf := vectorWords + uint64(fov)
			b.PutUint64(h.Metadata+tf*ptr, *g.TrailingFlags)
		}
		b.PutUint32(h.Pattern+l.PatternFlags, pf)
		b.PutRelative(gh+l.GenericDefaultPattern, h.Pattern)
		b.PutUint16(gh+l.GenericNumParams, g.NumParams)
		b.PutUint16(gh+l.GenericNumKeyArguments, g.NumKeyArguments)
	}
	return h
}

func mangledStruct(module, name string) string {
	return fmt.Sprintf("%d%s%d%sV", len(module), module, len(name), name)
}

// Person is the four field struct used throughout the tests: every field
// is a mutable, pointer-sized slot.
func Person(ptrSize int) Struct {
	p := uint32(ptrSize)
	return Struct{
		Module: "StructMetadata",
		Name:   "Person",
		Fields: []Field{
			{Name: "name", MangledType: "SS", IsVar: true, Offset: 0},
			{Name: "age", MangledType: "Si", IsVar: true, Offset: p},
			{Name: "city", MangledType: "SS", IsVar: true, Offset: 2 * p},
			{Name: "height", MangledType: "Si", IsVar: true, Offset: 3 * p},
		},
	}
}
