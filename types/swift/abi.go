package swift

import (
	"fmt"

	"github.com/blacktop/go-swiftmeta/types"
)

// Layout pins every byte offset, record size and bit position of one compiled
// Swift runtime ABI revision. Readers in this package take all of their
// positions from the active table, so a layout change is made here and
// nowhere else.
type Layout struct {
	Revision string

	// ContextDescriptorFlags (swift/include/swift/ABI/MetadataValues.h)
	ContextKindBit           int32
	ContextKindWidth         int32
	ContextUniqueBit         int32
	ContextGenericBit        int32
	ContextVersionBit        int32
	ContextVersionWidth      int32
	ContextKindSpecificBit   int32
	ContextKindSpecificWidth int32

	// TargetStructDescriptor, byte offsets from the descriptor.
	DescriptorFlags                   uint64
	DescriptorParent                  uint64
	DescriptorName                    uint64
	DescriptorAccessFunction          uint64
	DescriptorFields                  uint64
	DescriptorNumFields               uint64
	DescriptorFieldOffsetVectorOffset uint64
	DescriptorSize                    uint64

	// TargetTypeGenericContextDescriptorHeader, byte offsets from the header.
	GenericInstantiationCache uint64
	GenericDefaultPattern     uint64
	GenericNumParams          uint64
	GenericNumRequirements    uint64
	GenericNumKeyArguments    uint64
	GenericNumExtraArguments  uint64
	GenericHeaderSize         uint64

	// TargetGenericMetadataPattern and the flags it carries.
	PatternInstantiationFunction    uint64
	PatternCompletionFunction       uint64
	PatternFlags                    uint64
	PatternHasExtraDataPatternBit   int32
	PatternHasTrailingFlagsBit      int32
	PatternClassImmediateMembersBit int32
	PatternValueMetadataKindBit     int32
	PatternValueMetadataKindWidth   int32

	// MetadataTrailingFlags
	TrailingStaticSpecializationBit int32
	TrailingCanonicalSpecializedBit int32
	TrailingFlagsSize               uint64

	// Struct metadata records. Indexes are in pointer-sized words.
	FieldOffsetSize                 uint64 // bytes per field offset vector entry
	MetadataDescriptionIndex        uint64
	MetadataValueWitnessesIndex     int64
	ValueWitnessSizeIndex           uint64
	StructMetadataKindValue         uint64
	LastEnumeratedMetadataKindValue uint64

	// FieldDescriptor header and FieldRecord (swift/RemoteInspection/Records.h)
	FieldDescriptorMangledTypeName uint64
	FieldDescriptorSuperclass      uint64
	FieldDescriptorKind            uint64
	FieldDescriptorRecordSize      uint64
	FieldDescriptorNumFields       uint64
	FieldDescriptorSize            uint64
	FieldRecordFlags               uint64
	FieldRecordMangledTypeName     uint64
	FieldRecordFieldName           uint64
	FieldRecordSize                uint64
	FieldRecordIndirectCaseBit     int32
	FieldRecordVarBit              int32
	FieldRecordArtificialBit       int32

	// Byte offset of the name of module, protocol and type context descriptors.
	ContextName uint64
}

// swift5 is the stable Swift 5 ABI.
var swift5 = Layout{
	Revision: "swift5",

	ContextKindBit:           0,
	ContextKindWidth:         5,
	ContextUniqueBit:         6,
	ContextGenericBit:        7,
	ContextVersionBit:        8,
	ContextVersionWidth:      8,
	ContextKindSpecificBit:   16,
	ContextKindSpecificWidth: 16,

	DescriptorFlags:                   0,
	DescriptorParent:                  4,
	DescriptorName:                    8,
	DescriptorAccessFunction:          12,
	DescriptorFields:                  16,
	DescriptorNumFields:               20,
	DescriptorFieldOffsetVectorOffset: 24,
	DescriptorSize:                    28,

	GenericInstantiationCache: 0,
	GenericDefaultPattern:     4,
	GenericNumParams:          8,
	GenericNumRequirements:    10,
	GenericNumKeyArguments:    12,
	GenericNumExtraArguments:  14,
	GenericHeaderSize:         16,

	PatternInstantiationFunction:    0,
	PatternCompletionFunction:       4,
	PatternFlags:                    8,
	PatternHasExtraDataPatternBit:   0,
	PatternHasTrailingFlagsBit:      1,
	PatternClassImmediateMembersBit: 31,
	PatternValueMetadataKindBit:     21,
	PatternValueMetadataKindWidth:   11,
	TrailingStaticSpecializationBit: 0,
	TrailingCanonicalSpecializedBit: 1,
	TrailingFlagsSize:               8,
	FieldOffsetSize:                 4,
	ValueWitnessSizeIndex:           8,
	MetadataDescriptionIndex:        1,
	MetadataValueWitnessesIndex:     -1,
	StructMetadataKindValue:         0x200,
	LastEnumeratedMetadataKindValue: 0x7FF,

	FieldRecordIndirectCaseBit: 0,
	FieldRecordVarBit:          1,
	FieldRecordArtificialBit:   2,

	FieldDescriptorMangledTypeName: 0,
	FieldDescriptorSuperclass:      4,
	FieldDescriptorKind:            8,
	FieldDescriptorRecordSize:      10,
	FieldDescriptorNumFields:       12,
	FieldDescriptorSize:            16,
	FieldRecordFlags:               0,
	FieldRecordMangledTypeName:     4,
	FieldRecordFieldName:           8,
	FieldRecordSize:                12,

	ContextName: 8,
}

// abi is the table every reader in this package uses.
var abi = &swift5

func init() {
	if err := swift5.Validate(); err != nil {
		panic(err)
	}
}

// Swift5 returns a copy of the Swift 5 layout. Changing the copy does not
// affect decoding.
func Swift5() Layout {
	return swift5
}

// Validate checks that every bit field of the table fits the word it lives in.
func (l Layout) Validate() error {
	for _, f := range []struct {
		name         string
		word         uint // width of the flags word in bits
		first, width int32
	}{
		{"context kind", 32, l.ContextKindBit, l.ContextKindWidth},
		{"context unique", 32, l.ContextUniqueBit, 1},
		{"context generic", 32, l.ContextGenericBit, 1},
		{"context version", 32, l.ContextVersionBit, l.ContextVersionWidth},
		{"context kind specific", 32, l.ContextKindSpecificBit, l.ContextKindSpecificWidth},
		{"pattern extra data", 32, l.PatternHasExtraDataPatternBit, 1},
		{"pattern trailing flags", 32, l.PatternHasTrailingFlagsBit, 1},
		{"pattern class immediate members", 32, l.PatternClassImmediateMembersBit, 1},
		{"pattern value metadata kind", 32, l.PatternValueMetadataKindBit, l.PatternValueMetadataKindWidth},
		{"trailing static specialization", 64, l.TrailingStaticSpecializationBit, 1},
		{"trailing canonical specialization", 64, l.TrailingCanonicalSpecializedBit, 1},
		{"field record indirect case", 32, l.FieldRecordIndirectCaseBit, 1},
		{"field record var", 32, l.FieldRecordVarBit, 1},
		{"field record artificial", 32, l.FieldRecordArtificialBit, 1},
	} {
		if f.first < 0 || f.width < 0 {
			return fmt.Errorf("%s layout: %w: negative position for %s", l.Revision, types.ErrBitRange, f.name)
		}
		var err error
		if f.word == 64 {
			_, err = types.NewFlagSet(uint64(0)).Field(uint(f.first), uint(f.width))
		} else {
			_, err = types.NewFlagSet(uint32(0)).Field(uint(f.first), uint(f.width))
		}
		if err != nil {
			return fmt.Errorf("%s layout: %s: %w", l.Revision, f.name, err)
		}
	}
	for _, r := range []struct {
		name string
		size uint64
		offs []uint64
	}{
		{"struct descriptor", l.DescriptorSize, []uint64{l.DescriptorFlags, l.DescriptorParent, l.DescriptorName,
			l.DescriptorAccessFunction, l.DescriptorFields, l.DescriptorNumFields, l.DescriptorFieldOffsetVectorOffset}},
		{"field record", l.FieldRecordSize, []uint64{l.FieldRecordFlags, l.FieldRecordMangledTypeName, l.FieldRecordFieldName}},
	} {
		if r.size%4 != 0 {
			return fmt.Errorf("%s layout: %s size %d is not a whole number of words", l.Revision, r.name, r.size)
		}
		for _, off := range r.offs {
			if off%4 != 0 || off+4 > r.size {
				return fmt.Errorf("%s layout: %s word at %d does not fit %d bytes", l.Revision, r.name, off, r.size)
			}
		}
	}
	if l.ContextKindSpecificWidth > 16 {
		return fmt.Errorf("%s layout: %w: kind specific flags wider than 16 bits", l.Revision, types.ErrBitRange)
	}
	return nil
}

// flagBit reports whether bit of a flags word is set.
func flagBit[T types.Unsigned](bits T, bit int32) bool {
	return types.NewFlagSet(bits).Flag(uint(bit))
}

// flagField extracts a field of a flags word. Positions come from a table
// that passed Validate, so the range error cannot occur.
func flagField[T types.Unsigned](bits T, first, width int32) T {
	v, err := types.NewFlagSet(bits).Field(uint(first), uint(width))
	if err != nil {
		return 0
	}
	return v
}
