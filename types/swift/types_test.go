package swift

import (
	"testing"
)

func TestContextDescriptorFlags(t *testing.T) {
	tests := []struct {
		name        string
		flags       ContextDescriptorFlags
		kind        ContextDescriptorKind
		generic     bool
		unique      bool
		version     uint8
		kindFlags   TypeContextDescriptorFlags
		kindString  string
		initKind    MetadataInitializationKind
		importInfo  bool
		prespecials bool
	}{
		{
			name:       "struct with version byte",
			flags:      0x00004011,
			kind:       CDKindStruct,
			version:    64,
			kindString: "struct",
		},
		{
			name:       "unique struct",
			flags:      0x00000051,
			kind:       CDKindStruct,
			unique:     true,
			kindString: "struct",
		},
		{
			name:       "generic unique struct",
			flags:      0x000000d1,
			kind:       CDKindStruct,
			generic:    true,
			unique:     true,
			kindString: "struct",
		},
		{
			name:        "kind specific bits",
			flags:       0x00090011,
			kind:        CDKindStruct,
			kindFlags:   0x0009,
			kindString:  "struct",
			initKind:    MetadataInitSingleton,
			prespecials: true,
		},
		{
			name:       "import info",
			flags:      0x00040012,
			kind:       CDKindEnum,
			kindFlags:  0x0004,
			kindString: "enum",
			importInfo: true,
		},
		{
			name:       "module",
			flags:      0,
			kind:       CDKindModule,
			kindString: "module",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.flags
			if got := f.Kind(); got != tt.kind {
				t.Errorf("Kind() = %v, want %v", got, tt.kind)
			}
			if got := f.Kind().String(); got != tt.kindString {
				t.Errorf("Kind().String() = %q, want %q", got, tt.kindString)
			}
			if got := f.IsGeneric(); got != tt.generic {
				t.Errorf("IsGeneric() = %t, want %t", got, tt.generic)
			}
			if got := f.IsUnique(); got != tt.unique {
				t.Errorf("IsUnique() = %t, want %t", got, tt.unique)
			}
			if got := f.Version(); got != tt.version {
				t.Errorf("Version() = %d, want %d", got, tt.version)
			}
			ks := f.KindSpecific()
			if ks != tt.kindFlags {
				t.Errorf("KindSpecific() = %#x, want %#x", ks, tt.kindFlags)
			}
			if got := ks.MetadataInitialization(); got != tt.initKind {
				t.Errorf("MetadataInitialization() = %v, want %v", got, tt.initKind)
			}
			if got := ks.HasImportInfo(); got != tt.importInfo {
				t.Errorf("HasImportInfo() = %t, want %t", got, tt.importInfo)
			}
			if got := ks.HasCanonicalMetadataPrespecializations(); got != tt.prespecials {
				t.Errorf("HasCanonicalMetadataPrespecializations() = %t, want %t", got, tt.prespecials)
			}
		})
	}
}

func TestContextDescriptorKindUnknown(t *testing.T) {
	tests := []struct {
		flags  ContextDescriptorFlags
		want   string
		isType bool
	}{
		{0x0a, "unrecognized(10)", false},
		{0x1f, "unrecognized(31)", true},
		{0x13, "unrecognized(19)", true},
	}
	for _, tt := range tests {
		k := tt.flags.Kind()
		if k.IsKnown() {
			t.Errorf("%#x: IsKnown() = true", uint32(tt.flags))
		}
		if got := k.String(); got != tt.want {
			t.Errorf("%#x: String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
		if got := k.IsType(); got != tt.isType {
			t.Errorf("%#x: IsType() = %t, want %t", uint32(tt.flags), got, tt.isType)
		}
	}
	if !CDKindStruct.IsKnown() || !CDKindStruct.IsType() {
		t.Error("struct kind is not a known type kind")
	}
}

func TestFlagWords(t *testing.T) {
	pf := GenericMetadataPatternFlags(uint32(StructMetadataKind)<<21 | 1<<1)
	if !pf.HasTrailingFlags() || pf.HasExtraDataPattern() || pf.HasClassImmediateMembersPattern() {
		t.Errorf("pattern flags %#x decoded as %s", uint32(pf), pf)
	}
	if got := pf.MetadataKind(); got != StructMetadataKind {
		t.Errorf("MetadataKind() = %v, want struct", got)
	}

	tf := MetadataTrailingFlags(0b11)
	if !tf.IsStaticSpecialization() || !tf.IsCanonicalStaticSpecialization() {
		t.Errorf("trailing flags %#x decoded as %s", uint64(tf), tf)
	}

	rf := IsVar | IsIndirectCase
	if !rf.IsVar() || !rf.IsIndirectCase() || rf.IsArtificial() {
		t.Errorf("record flags %#x decoded wrong", uint32(rf))
	}
	if got := IsVar.String(); got != "var" {
		t.Errorf("IsVar.String() = %q", got)
	}
	if got := FieldRecordFlags(0).String(); got != "let" {
		t.Errorf("FieldRecordFlags(0).String() = %q", got)
	}

	for word, want := range map[uint64]MetadataKind{
		0x200:       StructMetadataKind,
		0x201:       EnumMetadataKind,
		0x7ff:       MetadataKind(0x7ff),
		0x1_0000_0000: ClassMetadataKind,
	} {
		if got := KindFromWord(word); got != want {
			t.Errorf("KindFromWord(%#x) = %v, want %v", word, got, want)
		}
	}
}
