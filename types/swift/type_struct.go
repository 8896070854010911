package swift

import (
	"fmt"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

// TargetStructDescriptor is the static, per-type record describing a struct.
type TargetStructDescriptor struct {
	Address uint64
	TargetTypeContextDescriptor
	NumFields uint32
	// FieldOffsetVectorOffset counts pointer-sized words from the start of
	// the struct metadata record, not from this descriptor.
	FieldOffsetVectorOffset uint32
}

func (s TargetStructDescriptor) Size() uint64 {
	return abi.DescriptorSize
}

func (s *TargetStructDescriptor) Read(m *memory.Space, addr uint64) error {
	w, err := readWords(m, addr, abi.DescriptorSize, "struct descriptor")
	if err != nil {
		return err
	}
	s.Address = addr
	s.TargetTypeContextDescriptor.decode(addr, w)
	s.NumFields = w[abi.DescriptorNumFields/4]
	s.FieldOffsetVectorOffset = w[abi.DescriptorFieldOffsetVectorOffset/4]
	return nil
}

// ReadStructDescriptor reads the struct descriptor at addr. It fails with
// ErrUnsupportedKind when the descriptor is not a struct.
func ReadStructDescriptor(m *memory.Space, addr uint64) (*TargetStructDescriptor, error) {
	var s TargetStructDescriptor
	if err := s.Read(m, addr); err != nil {
		return nil, err
	}
	if k := s.Flags.Kind(); k != CDKindStruct {
		return nil, fmt.Errorf("%w: context descriptor at %#x is %s, not struct", ErrUnsupportedKind, addr, k)
	}
	return &s, nil
}

func (s TargetStructDescriptor) IsGeneric() bool {
	return s.Flags.IsGeneric()
}

// Name returns the unqualified name of the type.
func (s TargetStructDescriptor) Name(m *memory.Space) (string, error) {
	addr, err := s.NameOffset.checkedAddress()
	if err != nil {
		return "", err
	}
	name, err := m.CString(addr)
	if err != nil {
		return "", readErr("type name", addr, err)
	}
	return name, nil
}

// FieldDescriptor returns the field descriptor of the type. A type without
// fields gets an empty descriptor; the fields pointer is not followed.
func (s TargetStructDescriptor) FieldDescriptor(m *memory.Space) (*FieldDescriptor, error) {
	if s.NumFields == 0 {
		return &FieldDescriptor{}, nil
	}
	if !s.FieldsOffset.IsSet() {
		return nil, corruptf("struct at %#x has %d fields but no field descriptor", s.Address, s.NumFields)
	}
	addr, err := s.FieldsOffset.checkedAddress()
	if err != nil {
		return nil, err
	}
	fd, err := ReadFieldDescriptor(m, addr)
	if err != nil {
		return nil, err
	}
	if fd.NumFields != s.NumFields {
		return nil, corruptf("struct at %#x has %d fields but its field descriptor at %#x has %d",
			s.Address, s.NumFields, addr, fd.NumFields)
	}
	return fd, nil
}

// GenericContext returns the generic context header that follows a generic
// descriptor. It fails with ErrNotGeneric for any other descriptor.
func (s TargetStructDescriptor) GenericContext(m *memory.Space) (*TargetTypeGenericContextDescriptorHeader, error) {
	if !s.IsGeneric() {
		return nil, fmt.Errorf("%w: struct at %#x", ErrNotGeneric, s.Address)
	}
	return ReadGenericContextHeader(m, s.Address+s.Size())
}
