package swift

import (
	"fmt"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

const (
	// Non-type metadata kinds have this bit set.
	MetadataKindIsNonType = 0x400
	// Non-heap metadata kinds have this bit set.
	MetadataKindIsNonHeap = 0x200
	// The above two flags are negative because the "class" kind has to be zero,
	// and class metadata is both type and heap metadata.
	// Runtime-private metadata has this bit set. The compiler must not statically
	// generate metadata objects with these kinds, and external tools should not
	// rely on the stability of these values or the precise binary layout of
	// their associated data structures.
	MetadataKindIsRuntimePrivate = 0x100
)

type MetadataKind uint32

const (
	ClassMetadataKind                MetadataKind = 0                                                        // class
	StructMetadataKind               MetadataKind = 0 | MetadataKindIsNonHeap                                // struct
	EnumMetadataKind                 MetadataKind = 1 | MetadataKindIsNonHeap                                // enum
	OptionalMetadataKind             MetadataKind = 2 | MetadataKindIsNonHeap                                // optional
	ForeignClassMetadataKind         MetadataKind = 3 | MetadataKindIsNonHeap                                // foreign class
	ForeignReferenceTypeMetadataKind MetadataKind = 4 | MetadataKindIsNonHeap                                // foreign reference type
	OpaqueMetadataKind               MetadataKind = 0 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // opaque
	TupleMetadataKind                MetadataKind = 1 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // tuple
	FunctionMetadataKind             MetadataKind = 2 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // function
	ExistentialMetadataKind          MetadataKind = 3 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // existential
	MetatypeMetadataKind             MetadataKind = 4 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // metatype
	ObjCClassWrapperMetadataKind     MetadataKind = 5 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // objc class wrapper
	ExistentialMetatypeMetadataKind  MetadataKind = 6 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // existential metatype
	ExtendedExistentialMetadataKind  MetadataKind = 7 | MetadataKindIsRuntimePrivate | MetadataKindIsNonHeap // extended existential type
	HeapLocalVariableMetadataKind    MetadataKind = 0 | MetadataKindIsNonType                                // heap local variable
	ErrorObjectMetadataKind          MetadataKind = 1 | MetadataKindIsNonType | MetadataKindIsRuntimePrivate // error object
	TaskMetadataKind                 MetadataKind = 2 | MetadataKindIsNonType | MetadataKindIsRuntimePrivate // task
	JobMetadataKind                  MetadataKind = 3 | MetadataKindIsNonType | MetadataKindIsRuntimePrivate // job
)

var metadataKindNames = map[MetadataKind]string{
	ClassMetadataKind:                "class",
	StructMetadataKind:               "struct",
	EnumMetadataKind:                 "enum",
	OptionalMetadataKind:             "optional",
	ForeignClassMetadataKind:         "foreign class",
	ForeignReferenceTypeMetadataKind: "foreign reference type",
	OpaqueMetadataKind:               "opaque",
	TupleMetadataKind:                "tuple",
	FunctionMetadataKind:             "function",
	ExistentialMetadataKind:          "existential",
	MetatypeMetadataKind:             "metatype",
	ObjCClassWrapperMetadataKind:     "objc class wrapper",
	ExistentialMetatypeMetadataKind:  "existential metatype",
	ExtendedExistentialMetadataKind:  "extended existential type",
	HeapLocalVariableMetadataKind:    "heap local variable",
	ErrorObjectMetadataKind:          "error object",
	TaskMetadataKind:                 "task",
	JobMetadataKind:                  "job",
}

func (k MetadataKind) String() string {
	if name, ok := metadataKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MetadataKind(%#x)", uint32(k))
}

// KindFromWord interprets the first word of a metadata record. Any value
// above the last enumerated kind is an isa pointer, which only class
// metadata has.
func KindFromWord(word uint64) MetadataKind {
	if word > abi.LastEnumeratedMetadataKindValue {
		return ClassMetadataKind
	}
	return MetadataKind(word)
}

// StructMetadata is the per-type metadata record of a struct. Address is the
// type handle: the record's base, after the value witness table pointer.
type StructMetadata struct {
	Address     uint64
	Kind        uint64 // raw kind word
	Description uint64 // direct pointer to the TargetStructDescriptor
	Descriptor  *TargetStructDescriptor
}

// ReadStructMetadata reads the struct metadata record at addr and the
// descriptor it points to. It fails with ErrUnsupportedKind before reading
// anything else when the kind word is not the struct kind.
func ReadStructMetadata(m *memory.Space, addr uint64) (*StructMetadata, error) {
	kind, err := m.Pointer(addr)
	if err != nil {
		return nil, readErr("metadata kind", addr, err)
	}
	if kind != abi.StructMetadataKindValue {
		return nil, fmt.Errorf("%w: metadata at %#x has kind %s (%#x)", ErrUnsupportedKind, addr, KindFromWord(kind), kind)
	}
	descAddr, err := m.Advance(addr, abi.MetadataDescriptionIndex)
	if err != nil {
		return nil, corruptf("metadata at %#x: %v", addr, err)
	}
	desc, err := m.Pointer(descAddr)
	if err != nil {
		return nil, readErr("metadata description", descAddr, err)
	}
	if desc == 0 {
		return nil, corruptf("metadata at %#x has a null description", addr)
	}
	sd, err := ReadStructDescriptor(m, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to read struct descriptor of metadata at %#x: %w", addr, err)
	}
	return &StructMetadata{
		Address:     addr,
		Kind:        kind,
		Description: desc,
		Descriptor:  sd,
	}, nil
}

func (sm StructMetadata) GetKind() MetadataKind {
	return KindFromWord(sm.Kind)
}

// HasFieldOffsets reports whether the record stores a field offset vector.
func (sm StructMetadata) HasFieldOffsets() bool {
	return sm.Descriptor.NumFields > 0 && sm.Descriptor.FieldOffsetVectorOffset != 0
}

// FieldOffsetVectorAddress is the address of the first field offset entry.
func (sm StructMetadata) FieldOffsetVectorAddress(m *memory.Space) (uint64, error) {
	if !sm.HasFieldOffsets() {
		return 0, fmt.Errorf("%w: struct metadata at %#x", ErrNoFields, sm.Address)
	}
	addr, err := m.Advance(sm.Address, uint64(sm.Descriptor.FieldOffsetVectorOffset))
	if err != nil {
		return 0, corruptf("field offset vector of metadata at %#x: %v", sm.Address, err)
	}
	return addr, nil
}

// FieldOffset returns the byte offset of field i within an instance. Offsets
// follow declaration order but need not increase with it.
func (sm StructMetadata) FieldOffset(m *memory.Space, i int) (uint32, error) {
	base, err := sm.FieldOffsetVectorAddress(m)
	if err != nil {
		return 0, err
	}
	if i < 0 || uint64(i) >= uint64(sm.Descriptor.NumFields) {
		return 0, fmt.Errorf("%w: field offset %d of %d", ErrIndexOutOfRange, i, sm.Descriptor.NumFields)
	}
	addr := base + uint64(i)*abi.FieldOffsetSize
	if addr < base {
		return 0, corruptf("field offset %d of metadata at %#x overflows", i, sm.Address)
	}
	off, err := m.Uint32(addr)
	if err != nil {
		return 0, readErr("field offset", addr, err)
	}
	return off, nil
}

// FieldOffsets returns the whole field offset vector.
func (sm StructMetadata) FieldOffsets(m *memory.Space) ([]uint32, error) {
	offs := make([]uint32, 0, sm.Descriptor.NumFields)
	for i := 0; uint64(i) < uint64(sm.Descriptor.NumFields); i++ {
		off, err := sm.FieldOffset(m, i)
		if err != nil {
			return nil, err
		}
		offs = append(offs, off)
	}
	return offs, nil
}

// ValueWitnessTable is the prefix of a value witness table that carries the
// type's layout.
type ValueWitnessTable struct {
	Address              uint64
	Size                 uint64
	Stride               uint64
	Flags                uint32
	ExtraInhabitantCount uint32
}

// Alignment is the required alignment of an instance.
func (v ValueWitnessTable) Alignment() uint64 {
	return uint64(flagField(v.Flags, 0, 8)) + 1
}

// ValueWitnesses reads the value witness table referenced from the word just
// before the metadata record. It returns nil when that pointer is null.
func (sm StructMetadata) ValueWitnesses(m *memory.Space) (*ValueWitnessTable, error) {
	ptrSize := int64(m.PointerSize())
	at := sm.Address + uint64(abi.MetadataValueWitnessesIndex*ptrSize)
	if at > sm.Address {
		return nil, corruptf("value witness pointer of metadata at %#x underflows", sm.Address)
	}
	addr, err := m.Pointer(at)
	if err != nil {
		return nil, readErr("value witness table pointer", at, err)
	}
	if addr == 0 {
		return nil, nil
	}
	sizeAt, err := m.Advance(addr, abi.ValueWitnessSizeIndex)
	if err != nil {
		return nil, corruptf("value witness table at %#x: %v", addr, err)
	}
	vwt := &ValueWitnessTable{Address: addr}
	if vwt.Size, err = m.Pointer(sizeAt); err != nil {
		return nil, readErr("value witness size", sizeAt, err)
	}
	strideAt := sizeAt + uint64(ptrSize)
	if vwt.Stride, err = m.Pointer(strideAt); err != nil {
		return nil, readErr("value witness stride", strideAt, err)
	}
	flagsAt := strideAt + uint64(ptrSize)
	if vwt.Flags, err = m.Uint32(flagsAt); err != nil {
		return nil, readErr("value witness flags", flagsAt, err)
	}
	if vwt.ExtraInhabitantCount, err = m.Uint32(flagsAt + 4); err != nil {
		return nil, readErr("value witness extra inhabitants", flagsAt+4, err)
	}
	return vwt, nil
}

// InstanceSize is the size in bytes of one instance, from the value witness
// table. ok is false when the record has no value witness table.
func (sm StructMetadata) InstanceSize(m *memory.Space) (size uint64, ok bool, err error) {
	vwt, err := sm.ValueWitnesses(m)
	if err != nil || vwt == nil {
		return 0, false, err
	}
	return vwt.Size, true, nil
}

type MetadataTrailingFlags uint64

func (f MetadataTrailingFlags) IsStaticSpecialization() bool {
	return flagBit(f, abi.TrailingStaticSpecializationBit)
}
func (f MetadataTrailingFlags) IsCanonicalStaticSpecialization() bool {
	return flagBit(f, abi.TrailingCanonicalSpecializedBit)
}
func (f MetadataTrailingFlags) String() string {
	return fmt.Sprintf("static_specialization: %t, canonical_static_specialization: %t",
		f.IsStaticSpecialization(), f.IsCanonicalStaticSpecialization())
}

// TrailingFlagsAddress is where the trailing flags of a generic instance
// live: past the field offset vector, rounded up to pointer alignment.
func (sm StructMetadata) TrailingFlagsAddress(m *memory.Space) (uint64, error) {
	ptrSize := uint64(m.PointerSize())
	vectorBytes := uint64(sm.Descriptor.NumFields) * abi.FieldOffsetSize
	units := (vectorBytes+ptrSize-1)/ptrSize + uint64(sm.Descriptor.FieldOffsetVectorOffset)
	addr, err := m.Advance(sm.Address, units)
	if err != nil {
		return 0, corruptf("trailing flags of metadata at %#x: %v", sm.Address, err)
	}
	return addr, nil
}

// TrailingFlags returns the trailing flags of a generic instance. ok is false
// when the type is not generic or its pattern has no trailing flags, in which
// case nothing past the descriptor is read.
func (sm StructMetadata) TrailingFlags(m *memory.Space) (flags MetadataTrailingFlags, ok bool, err error) {
	if !sm.Descriptor.IsGeneric() {
		return 0, false, nil
	}
	gc, err := sm.Descriptor.GenericContext(m)
	if err != nil {
		return 0, false, err
	}
	pattern, err := gc.Pattern(m)
	if err != nil {
		return 0, false, err
	}
	if !pattern.PatternFlags.HasTrailingFlags() {
		return 0, false, nil
	}
	addr, err := sm.TrailingFlagsAddress(m)
	if err != nil {
		return 0, false, err
	}
	v, err := m.Uint64(addr)
	if err != nil {
		return 0, false, readErr("trailing flags", addr, err)
	}
	return MetadataTrailingFlags(v), true, nil
}
