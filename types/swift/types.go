package swift

import (
	"fmt"
	"strings"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

type ContextDescriptorKind uint8

const (
	// This context descriptor represents a module.
	CDKindModule ContextDescriptorKind = 0 // module

	/// This context descriptor represents an extension.
	CDKindExtension ContextDescriptorKind = 1 // extension

	/// This context descriptor represents an anonymous possibly-generic context
	/// such as a function body.
	CDKindAnonymous ContextDescriptorKind = 2 // anonymous

	/// This context descriptor represents a protocol context.
	CDKindProtocol ContextDescriptorKind = 3 // protocol

	/// This context descriptor represents an opaque type alias.
	CDKindOpaqueType ContextDescriptorKind = 4 // opaque_type

	/// First kind that represents a type of any sort.
	CDKindTypeFirst = 16 // type_first

	/// This context descriptor represents a class.
	CDKindClass ContextDescriptorKind = CDKindTypeFirst // class

	/// This context descriptor represents a struct.
	CDKindStruct ContextDescriptorKind = CDKindTypeFirst + 1 // struct

	/// This context descriptor represents an enum.
	CDKindEnum ContextDescriptorKind = CDKindTypeFirst + 2 // enum

	/// Last kind that represents a type of any sort.
	CDKindTypeLast = 31 // type_last
)

var contextDescriptorKindNames = map[ContextDescriptorKind]string{
	CDKindModule:     "module",
	CDKindExtension:  "extension",
	CDKindAnonymous:  "anonymous",
	CDKindProtocol:   "protocol",
	CDKindOpaqueType: "opaque_type",
	CDKindClass:      "class",
	CDKindStruct:     "struct",
	CDKindEnum:       "enum",
}

// IsKnown reports whether k is one of the kinds this ABI revision defines.
// Other values decode without error and print as unrecognized.
func (k ContextDescriptorKind) IsKnown() bool {
	_, ok := contextDescriptorKindNames[k]
	return ok
}

// IsType reports whether k lies in the range reserved for nominal types.
func (k ContextDescriptorKind) IsType() bool {
	return k >= CDKindTypeFirst && k <= CDKindTypeLast
}

// hasName reports whether descriptors of kind k store a name at the common
// name offset.
func (k ContextDescriptorKind) hasName() bool {
	switch k {
	case CDKindModule, CDKindProtocol, CDKindClass, CDKindStruct, CDKindEnum:
		return true
	}
	return false
}

func (k ContextDescriptorKind) String() string {
	if name, ok := contextDescriptorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unrecognized(%d)", uint8(k))
}

type MetadataInitializationKind uint8

const (
	// There are either no special rules for initializing the metadata or the metadata is generic.
	// (Genericity is set in the non-kind-specific descriptor flags.)
	MetadataInitNone MetadataInitializationKind = 0 // none
	//The type requires non-trivial singleton initialization using the "in-place" code pattern.
	MetadataInitSingleton MetadataInitializationKind = 1 // singleton
	// The type requires non-trivial singleton initialization using the "foreign" code pattern.
	MetadataInitForeign MetadataInitializationKind = 2 // foreign
)

func (k MetadataInitializationKind) String() string {
	switch k {
	case MetadataInitNone:
		return "none"
	case MetadataInitSingleton:
		return "singleton"
	case MetadataInitForeign:
		return "foreign"
	}
	return fmt.Sprintf("MetadataInitializationKind(%d)", uint8(k))
}

// TypeContextDescriptorFlags are the kind-specific bits of a type context
// descriptor's flags word.
type TypeContextDescriptorFlags uint16

const (
	// All of these values are bit offsets or widths.
	// Generic flags build upwards from 0.
	// Type-specific flags build downwards from 15.

	/// Whether there's something unusual about how the metadata is
	/// initialized.
	MetadataInitialization       TypeContextDescriptorFlags = 0
	MetadataInitialization_width TypeContextDescriptorFlags = 2

	/// Set if the type has extended import information.
	HasImportInfo TypeContextDescriptorFlags = 2

	/// Set if the type descriptor has a pointer to a list of canonical
	/// prespecializations.
	HasCanonicalMetadataPrespecializations TypeContextDescriptorFlags = 3
)

func (f TypeContextDescriptorFlags) MetadataInitialization() MetadataInitializationKind {
	return MetadataInitializationKind(flagField(f, int32(MetadataInitialization), int32(MetadataInitialization_width)))
}
func (f TypeContextDescriptorFlags) HasImportInfo() bool {
	return flagBit(f, int32(HasImportInfo))
}
func (f TypeContextDescriptorFlags) HasCanonicalMetadataPrespecializations() bool {
	return flagBit(f, int32(HasCanonicalMetadataPrespecializations))
}
func (f TypeContextDescriptorFlags) String() string {
	var flags []string
	if f.MetadataInitialization() != MetadataInitNone {
		flags = append(flags, fmt.Sprintf("metadata_init:%s", f.MetadataInitialization()))
	}
	if f.HasImportInfo() {
		flags = append(flags, "import_info")
	}
	if f.HasCanonicalMetadataPrespecializations() {
		flags = append(flags, "canonical_prespecializations")
	}
	return strings.Join(flags, "|")
}

// ContextDescriptorFlags is the classification word at the start of every
// context descriptor.
type ContextDescriptorFlags uint32

func (f ContextDescriptorFlags) Kind() ContextDescriptorKind {
	return ContextDescriptorKind(flagField(f, abi.ContextKindBit, abi.ContextKindWidth))
}
func (f ContextDescriptorFlags) IsGeneric() bool {
	return flagBit(f, abi.ContextGenericBit)
}
func (f ContextDescriptorFlags) IsUnique() bool {
	return flagBit(f, abi.ContextUniqueBit)
}
func (f ContextDescriptorFlags) Version() uint8 {
	return uint8(flagField(f, abi.ContextVersionBit, abi.ContextVersionWidth))
}
func (f ContextDescriptorFlags) KindSpecific() TypeContextDescriptorFlags {
	return TypeContextDescriptorFlags(flagField(f, abi.ContextKindSpecificBit, abi.ContextKindSpecificWidth))
}
func (f ContextDescriptorFlags) String() string {
	return fmt.Sprintf("kind: %s, generic: %t, unique: %t, version: %d, kind_flags: %s",
		f.Kind(),
		f.IsGeneric(),
		f.IsUnique(),
		f.Version(),
		f.KindSpecific())
}

// TargetContextDescriptor base class for all context descriptors.
type TargetContextDescriptor struct {
	Flags        ContextDescriptorFlags // Flags describing the context, including its kind and format version.
	ParentOffset RelativeDirectPointer  // The parent context, or null if this is a top-level context.
}

func (cd *TargetContextDescriptor) Read(m *memory.Space, addr uint64) error {
	flags, err := m.Uint32(addr + abi.DescriptorFlags)
	if err != nil {
		return readErr("context descriptor flags", addr, err)
	}
	cd.Flags = ContextDescriptorFlags(flags)
	if err := cd.ParentOffset.Read(m, addr+abi.DescriptorParent); err != nil {
		return readErr("parent offset", addr+abi.DescriptorParent, err)
	}
	return nil
}

// TargetTypeContextDescriptor object
type TargetTypeContextDescriptor struct {
	TargetContextDescriptor
	NameOffset        RelativeDirectPointer // The name of the type.
	AccessFunctionPtr RelativeDirectPointer // A pointer to the metadata access function for this type.
	FieldsOffset      RelativeDirectPointer // A pointer to the field descriptor for the type, if any.
}

// decode fills tcd from the words of a descriptor at addr.
func (tcd *TargetTypeContextDescriptor) decode(addr uint64, w []uint32) {
	tcd.Flags = ContextDescriptorFlags(w[abi.DescriptorFlags/4])
	tcd.ParentOffset = relativeAt(w, addr, abi.DescriptorParent)
	tcd.NameOffset = relativeAt(w, addr, abi.DescriptorName)
	tcd.AccessFunctionPtr = relativeAt(w, addr, abi.DescriptorAccessFunction)
	tcd.FieldsOffset = relativeAt(w, addr, abi.DescriptorFields)
}

// ContextRef is a decoded parent context.
type ContextRef struct {
	Address uint64
	Flags   ContextDescriptorFlags
	Name    string
}

func (c ContextRef) Kind() ContextDescriptorKind { return c.Flags.Kind() }

// ReadContextRef decodes the context descriptor at addr far enough to name it.
func ReadContextRef(m *memory.Space, addr uint64) (*ContextRef, error) {
	var cd TargetContextDescriptor
	if err := cd.Read(m, addr); err != nil {
		return nil, err
	}
	ref := &ContextRef{Address: addr, Flags: cd.Flags}
	if cd.Flags.Kind().hasName() {
		var name RelativeDirectPointer
		if err := name.Read(m, addr+abi.ContextName); err != nil {
			return nil, readErr("context name offset", addr+abi.ContextName, err)
		}
		if name.IsSet() {
			s, err := m.CString(name.GetAddress())
			if err != nil {
				return nil, readErr("context name", name.GetAddress(), err)
			}
			ref.Name = s
		}
	}
	return ref, nil
}

// maxContextDepth bounds parent chain walks so a cyclic chain is reported
// instead of looping.
const maxContextDepth = 64

// Parent resolves the parent context of the descriptor at addr. A nil
// ContextRef with a nil error means the descriptor is top-level.
func (cd TargetContextDescriptor) Parent(m *memory.Space) (*ContextRef, error) {
	if !cd.ParentOffset.IsSet() {
		return nil, nil
	}
	addr, err := cd.ParentOffset.checkedAddress()
	if err != nil {
		return nil, err
	}
	return ReadContextRef(m, addr)
}

// Module walks the parent chain up to the enclosing module and returns its
// name, or "" for a context without a module parent.
func (cd TargetContextDescriptor) Module(m *memory.Space) (string, error) {
	cur := cd
	for depth := 0; depth < maxContextDepth; depth++ {
		parent, err := cur.Parent(m)
		if err != nil {
			return "", err
		}
		if parent == nil {
			return "", nil
		}
		if parent.Kind() == CDKindModule {
			return parent.Name, nil
		}
		if err := cur.Read(m, parent.Address); err != nil {
			return "", err
		}
	}
	return "", corruptf("context parent chain deeper than %d", maxContextDepth)
}
