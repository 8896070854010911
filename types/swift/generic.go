package swift

import (
	"fmt"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

type TargetGenericContextDescriptorHeader struct {
	NumParams         uint16
	NumRequirements   uint16
	NumKeyArguments   uint16
	NumExtraArguments uint16
}

func (g TargetGenericContextDescriptorHeader) GetNumArguments() uint32 {
	return uint32(g.NumKeyArguments) + uint32(g.NumExtraArguments)
}
func (g TargetGenericContextDescriptorHeader) HasArguments() bool {
	return g.GetNumArguments() > 0
}

// TargetTypeGenericContextDescriptorHeader follows a generic type context
// descriptor.
type TargetTypeGenericContextDescriptorHeader struct {
	Address                     uint64
	InstantiationCache          RelativeDirectPointer // The metadata instantiation cache.
	DefaultInstantiationPattern RelativeDirectPointer // The default instantiation pattern.
	Base                        TargetGenericContextDescriptorHeader
}

// ReadGenericContextHeader reads the generic context header at addr. Callers
// must only do so for descriptors with the generic flag set.
func ReadGenericContextHeader(m *memory.Space, addr uint64) (*TargetTypeGenericContextDescriptorHeader, error) {
	g := &TargetTypeGenericContextDescriptorHeader{Address: addr}
	if err := g.InstantiationCache.Read(m, addr+abi.GenericInstantiationCache); err != nil {
		return nil, readErr("instantiation cache offset", addr, err)
	}
	if err := g.DefaultInstantiationPattern.Read(m, addr+abi.GenericDefaultPattern); err != nil {
		return nil, readErr("default instantiation pattern offset", addr, err)
	}
	for _, f := range []struct {
		dst *uint16
		off uint64
	}{
		{&g.Base.NumParams, abi.GenericNumParams},
		{&g.Base.NumRequirements, abi.GenericNumRequirements},
		{&g.Base.NumKeyArguments, abi.GenericNumKeyArguments},
		{&g.Base.NumExtraArguments, abi.GenericNumExtraArguments},
	} {
		v, err := m.Uint16(addr + f.off)
		if err != nil {
			return nil, readErr("generic context header", addr+f.off, err)
		}
		*f.dst = v
	}
	return g, nil
}

func (g TargetTypeGenericContextDescriptorHeader) HasArguments() bool {
	return g.Base.HasArguments()
}

// Instantiated checks the instantiation cache. The compiler zero-fills it
// and the runtime populates it when the first instance is created, so a zero
// first word means the metadata cannot be trusted yet. A descriptor built
// without a preallocated cache cannot be checked and is reported as ready.
func (g TargetTypeGenericContextDescriptorHeader) Instantiated(m *memory.Space) error {
	if !g.InstantiationCache.IsSet() {
		return nil
	}
	addr, err := g.InstantiationCache.checkedAddress()
	if err != nil {
		return err
	}
	word, err := m.Pointer(addr)
	if err != nil {
		return readErr("instantiation cache", addr, err)
	}
	if word == 0 {
		return fmt.Errorf("%w: cache at %#x is empty", ErrNotYetInstantiated, addr)
	}
	return nil
}

// Pattern reads the default instantiation pattern.
func (g TargetTypeGenericContextDescriptorHeader) Pattern(m *memory.Space) (*TargetGenericMetadataPattern, error) {
	if !g.DefaultInstantiationPattern.IsSet() {
		return nil, corruptf("generic context at %#x has no default instantiation pattern", g.Address)
	}
	addr, err := g.DefaultInstantiationPattern.checkedAddress()
	if err != nil {
		return nil, err
	}
	var p TargetGenericMetadataPattern
	if err := p.Read(m, addr); err != nil {
		return nil, err
	}
	return &p, nil
}

// TargetGenericMetadataPattern an instantiation pattern for type metadata.
type TargetGenericMetadataPattern struct {
	Address               uint64
	InstantiationFunction RelativeDirectPointer
	CompletionFunction    RelativeDirectPointer
	PatternFlags          GenericMetadataPatternFlags
}

func (p *TargetGenericMetadataPattern) Read(m *memory.Space, addr uint64) error {
	p.Address = addr
	if err := p.InstantiationFunction.Read(m, addr+abi.PatternInstantiationFunction); err != nil {
		return readErr("instantiation function offset", addr, err)
	}
	if err := p.CompletionFunction.Read(m, addr+abi.PatternCompletionFunction); err != nil {
		return readErr("completion function offset", addr, err)
	}
	flags, err := m.Uint32(addr + abi.PatternFlags)
	if err != nil {
		return readErr("pattern flags", addr+abi.PatternFlags, err)
	}
	p.PatternFlags = GenericMetadataPatternFlags(flags)
	return nil
}

// GenericMetadataPatternFlags general flags build up from bit 0, kind-specific
// flags build down from bit 31.
type GenericMetadataPatternFlags uint32

func (f GenericMetadataPatternFlags) HasExtraDataPattern() bool {
	return flagBit(f, abi.PatternHasExtraDataPatternBit)
}
func (f GenericMetadataPatternFlags) HasTrailingFlags() bool {
	return flagBit(f, abi.PatternHasTrailingFlagsBit)
}

// HasClassImmediateMembersPattern is only meaningful for class patterns.
func (f GenericMetadataPatternFlags) HasClassImmediateMembersPattern() bool {
	return flagBit(f, abi.PatternClassImmediateMembersBit)
}

// MetadataKind is only meaningful for value type patterns.
func (f GenericMetadataPatternFlags) MetadataKind() MetadataKind {
	return MetadataKind(flagField(f, abi.PatternValueMetadataKindBit, abi.PatternValueMetadataKindWidth))
}
func (f GenericMetadataPatternFlags) String() string {
	return fmt.Sprintf("HasExtraDataPattern: %t, HasTrailingFlags: %t, HasClassImmediateMembersPattern: %t, MetadataKind: %s",
		f.HasExtraDataPattern(), f.HasTrailingFlags(), f.HasClassImmediateMembersPattern(), f.MetadataKind())
}
