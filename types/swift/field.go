package swift

import (
	"fmt"
	"iter"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

// __TEXT.__swift5_fieldmd
// A field descriptor contains a collection of field records for a single class,
// struct or enum declaration. Each field descriptor can be a different length depending on how many field records the type contains.

type FieldDescriptorKind uint16

const (
	// Swift nominal types.
	FDKindStruct FieldDescriptorKind = iota // struct
	FDKindClass                             // class
	FDKindEnum                              // enum

	// Fixed-size multi-payload enums have a special descriptor format that
	// encodes spare bits.
	FDKindMultiPayloadEnum // multi-payload enum

	// A Swift opaque protocol. There are no fields, just a record for the
	// type itself.
	FDKindProtocol // protocol

	// A Swift class-bound protocol.
	FDKindClassProtocol // class protocol

	// An Objective-C protocol, which may be imported or defined in Swift.
	FDKindObjCProtocol // objc protocol

	// An Objective-C class, which may be imported or defined in Swift.
	// In the former case, field type metadata is not emitted, and
	// must be obtained from the Objective-C runtime.
	FDKindObjCClass // objc class
)

var fieldDescriptorKindNames = [...]string{
	FDKindStruct:           "struct",
	FDKindClass:            "class",
	FDKindEnum:             "enum",
	FDKindMultiPayloadEnum: "multi-payload enum",
	FDKindProtocol:         "protocol",
	FDKindClassProtocol:    "class protocol",
	FDKindObjCProtocol:     "objc protocol",
	FDKindObjCClass:        "objc class",
}

func (k FieldDescriptorKind) String() string {
	if int(k) < len(fieldDescriptorKindNames) {
		return fieldDescriptorKindNames[k]
	}
	return fmt.Sprintf("FieldDescriptorKind(%d)", uint16(k))
}

// FieldDescriptor contain a collection of field records for a single class, struct or enum declaration.
// ref: swift/include/swift/RemoteInspection/Records.h
type FieldDescriptor struct {
	Address               uint64
	MangledTypeNameOffset RelativeDirectPointer
	SuperclassOffset      RelativeDirectPointer
	Kind                  FieldDescriptorKind
	FieldRecordSize       uint16
	NumFields             uint32
}

func (fd FieldDescriptor) Size() uint64 {
	return abi.FieldDescriptorSize
}

func (fd FieldDescriptor) IsEnum() bool {
	return fd.Kind == FDKindEnum || fd.Kind == FDKindMultiPayloadEnum
}
func (fd FieldDescriptor) IsClass() bool {
	return fd.Kind == FDKindClass || fd.Kind == FDKindObjCClass
}
func (fd FieldDescriptor) IsProtocol() bool {
	return fd.Kind == FDKindProtocol || fd.Kind == FDKindClassProtocol || fd.Kind == FDKindObjCProtocol
}
func (fd FieldDescriptor) IsStruct() bool {
	return fd.Kind == FDKindStruct
}

func (fd *FieldDescriptor) Read(m *memory.Space, addr uint64) error {
	fd.Address = addr
	if err := fd.MangledTypeNameOffset.Read(m, addr+abi.FieldDescriptorMangledTypeName); err != nil {
		return readErr("field descriptor type name offset", addr, err)
	}
	if err := fd.SuperclassOffset.Read(m, addr+abi.FieldDescriptorSuperclass); err != nil {
		return readErr("field descriptor superclass offset", addr, err)
	}
	kind, err := m.Uint16(addr + abi.FieldDescriptorKind)
	if err != nil {
		return readErr("field descriptor kind", addr, err)
	}
	fd.Kind = FieldDescriptorKind(kind)
	if fd.FieldRecordSize, err = m.Uint16(addr + abi.FieldDescriptorRecordSize); err != nil {
		return readErr("field record size", addr, err)
	}
	if fd.NumFields, err = m.Uint32(addr + abi.FieldDescriptorNumFields); err != nil {
		return readErr("field descriptor number of fields", addr, err)
	}
	return nil
}

// ReadFieldDescriptor reads the field descriptor header at addr.
func ReadFieldDescriptor(m *memory.Space, addr uint64) (*FieldDescriptor, error) {
	var fd FieldDescriptor
	if err := fd.Read(m, addr); err != nil {
		return nil, err
	}
	if fd.NumFields > 0 && uint64(fd.FieldRecordSize) < abi.FieldRecordSize {
		return nil, corruptf("field descriptor at %#x has record size %d, want at least %d",
			addr, fd.FieldRecordSize, abi.FieldRecordSize)
	}
	return &fd, nil
}

// MangledTypeName returns the raw mangled name of the described type.
func (fd FieldDescriptor) MangledTypeName(m *memory.Space) ([]byte, error) {
	return readMangledName(m, fd.MangledTypeNameOffset, "field descriptor type name")
}

// Superclass returns the raw mangled superclass name, or nil if there is none.
func (fd FieldDescriptor) Superclass(m *memory.Space) ([]byte, error) {
	return readMangledName(m, fd.SuperclassOffset, "superclass name")
}

// Record returns the i-th field record. Records follow the header back to
// back, FieldRecordSize bytes apart.
func (fd FieldDescriptor) Record(m *memory.Space, i int) (*FieldRecord, error) {
	if i < 0 || uint64(i) >= uint64(fd.NumFields) {
		return nil, fmt.Errorf("%w: field record %d of %d", ErrIndexOutOfRange, i, fd.NumFields)
	}
	addr := fd.Address + fd.Size() + uint64(i)*uint64(fd.FieldRecordSize)
	if addr < fd.Address {
		return nil, corruptf("field record %d of descriptor at %#x overflows", i, fd.Address)
	}
	var rec FieldRecord
	if err := rec.Read(m, addr); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Records yields each field record in declaration order. Iteration stops
// after the first error.
func (fd FieldDescriptor) Records(m *memory.Space) iter.Seq2[*FieldRecord, error] {
	return func(yield func(*FieldRecord, error) bool) {
		for i := 0; uint64(i) < uint64(fd.NumFields); i++ {
			rec, err := fd.Record(m, i)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

type FieldRecordFlags uint32

const (
	// IsIndirectCase is this an indirect enum case?
	IsIndirectCase FieldRecordFlags = 0x1
	// IsVar is this a mutable `var` property?
	IsVar FieldRecordFlags = 0x2
	// IsArtificial is this an artificial field?
	IsArtificial FieldRecordFlags = 0x4
)

func (f FieldRecordFlags) IsIndirectCase() bool {
	return flagBit(f, abi.FieldRecordIndirectCaseBit)
}
func (f FieldRecordFlags) IsVar() bool {
	return flagBit(f, abi.FieldRecordVarBit)
}
func (f FieldRecordFlags) IsArtificial() bool {
	return flagBit(f, abi.FieldRecordArtificialBit)
}

func (f FieldRecordFlags) String() string {
	if f.IsIndirectCase() {
		return "indirect case"
	}
	if f.IsVar() {
		return "var"
	}
	return "let"
}

// FieldRecord describes one stored property or enum case.
type FieldRecord struct {
	Address               uint64
	Flags                 FieldRecordFlags
	MangledTypeNameOffset RelativeDirectPointer
	FieldNameOffset       RelativeDirectPointer
}

func (fr *FieldRecord) Read(m *memory.Space, addr uint64) error {
	w, err := readWords(m, addr, abi.FieldRecordSize, "field record")
	if err != nil {
		return err
	}
	fr.Address = addr
	fr.Flags = FieldRecordFlags(w[abi.FieldRecordFlags/4])
	fr.MangledTypeNameOffset = relativeAt(w, addr, abi.FieldRecordMangledTypeName)
	fr.FieldNameOffset = relativeAt(w, addr, abi.FieldRecordFieldName)
	return nil
}

func (fr FieldRecord) IsIndirectCase() bool { return fr.Flags.IsIndirectCase() }
func (fr FieldRecord) IsVar() bool          { return fr.Flags.IsVar() }

// Name returns the field name. Unnamed payload slots have an empty name.
func (fr FieldRecord) Name(m *memory.Space) (string, error) {
	if !fr.FieldNameOffset.IsSet() {
		return "", nil
	}
	addr, err := fr.FieldNameOffset.checkedAddress()
	if err != nil {
		return "", err
	}
	name, err := m.CString(addr)
	if err != nil {
		return "", readErr("field name", addr, err)
	}
	return name, nil
}

// MangledTypeName returns the raw mangled type of the field, or nil for enum
// cases without a payload.
func (fr FieldRecord) MangledTypeName(m *memory.Space) ([]byte, error) {
	return readMangledName(m, fr.MangledTypeNameOffset, "field type name")
}

func readMangledName(m *memory.Space, ptr RelativeDirectPointer, what string) ([]byte, error) {
	if !ptr.IsSet() {
		return nil, nil
	}
	addr, err := ptr.checkedAddress()
	if err != nil {
		return nil, err
	}
	name, err := m.MangledName(addr)
	if err != nil {
		return nil, readErr(what, addr, err)
	}
	return name, nil
}
