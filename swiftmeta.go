// Package swiftmeta decodes the layout of Swift struct types from their
// runtime metadata records: field names, mangled field types, per-instance
// byte offsets and mutability.
package swiftmeta

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
	"github.com/blacktop/go-swiftmeta/types/swift"
)

// TypeHandle identifies a concrete type: the address of its metadata record.
type TypeHandle uint64

// FieldError reports the field at which a layout report stopped.
type FieldError struct {
	Index int
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %d: %v", e.Index, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Field is one stored property of a struct.
type Field struct {
	Index          int    `json:"index" msgpack:"index"`
	Name           string `json:"name" msgpack:"name"`
	MangledType    string `json:"mangled_type" msgpack:"mangled_type"`
	Offset         uint32 `json:"offset" msgpack:"offset"`
	IsVar          bool   `json:"is_var" msgpack:"is_var"`
	IsIndirectCase bool   `json:"is_indirect_case,omitempty" msgpack:"is_indirect_case,omitempty"`
}

// GenericInfo summarises the generic context of a generic struct.
type GenericInfo struct {
	NumParams         uint16                            `json:"num_params" msgpack:"num_params"`
	NumRequirements   uint16                            `json:"num_requirements" msgpack:"num_requirements"`
	NumKeyArguments   uint16                            `json:"num_key_arguments" msgpack:"num_key_arguments"`
	NumExtraArguments uint16                            `json:"num_extra_arguments" msgpack:"num_extra_arguments"`
	PatternFlags      swift.GenericMetadataPatternFlags `json:"pattern_flags" msgpack:"pattern_flags"`
	TrailingFlags     *swift.MetadataTrailingFlags      `json:"trailing_flags,omitempty" msgpack:"trailing_flags,omitempty"`
}

// Layout is the decoded shape of one struct type. Fields are in declaration
// order.
type Layout struct {
	Address      uint64                       `json:"address" msgpack:"address"`
	Name         string                       `json:"name" msgpack:"name"`
	Module       string                       `json:"module,omitempty" msgpack:"module,omitempty"`
	Kind         swift.ContextDescriptorKind  `json:"kind" msgpack:"kind"`
	Flags        swift.ContextDescriptorFlags `json:"flags" msgpack:"flags"`
	InstanceSize uint64                       `json:"instance_size,omitempty" msgpack:"instance_size,omitempty"`
	Generic      *GenericInfo                 `json:"generic,omitempty" msgpack:"generic,omitempty"`
	Fields       []Field                      `json:"fields" msgpack:"fields"`
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithLogger sets the logger used for decode tracing.
func WithLogger(l *zap.Logger) Option {
	return func(i *Inspector) { i.log = l }
}

// WithConfig replaces the default configuration.
func WithConfig(conf Config) Option {
	return func(i *Inspector) { i.conf = conf }
}

// Inspector decodes struct layouts from an address space. It holds no mutable
// state and may be shared between goroutines.
type Inspector struct {
	mem  *memory.Space
	conf Config
	log  *zap.Logger
}

func NewInspector(mem *memory.Space, opts ...Option) *Inspector {
	i := &Inspector{mem: mem, conf: DefaultConfig()}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = Logger()
	}
	if !i.conf.Debug {
		i.log = i.log.WithOptions(zap.IncreaseLevel(zap.InfoLevel))
	}
	return i
}

// Memory returns the address space the Inspector reads.
func (i *Inspector) Memory() *memory.Space { return i.mem }

// Metadata reads the struct metadata record for h.
func (i *Inspector) Metadata(h TypeHandle) (*swift.StructMetadata, error) {
	return swift.ReadStructMetadata(i.mem, uint64(h))
}

// Inspect decodes the layout of the struct identified by h. The report lists
// every field or fails; a failure inside the field list is a *FieldError
// naming the offending index.
func (i *Inspector) Inspect(h TypeHandle) (*Layout, error) {
	log := i.log.With(zap.Uint64("metadata", uint64(h)))

	sm, err := swift.ReadStructMetadata(i.mem, uint64(h))
	if err != nil {
		return nil, fmt.Errorf("failed to read struct metadata at %#x: %w", uint64(h), err)
	}
	desc := sm.Descriptor

	name, err := desc.Name(i.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read type name: %w", err)
	}
	module, err := desc.Module(i.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent context of %s: %w", name, err)
	}
	log.Debug("decoded struct descriptor",
		zap.String("name", name),
		zap.Uint64("descriptor", desc.Address),
		zap.Stringer("flags", desc.Flags),
		zap.Uint32("num_fields", desc.NumFields),
		zap.Uint32("field_offset_vector_offset", desc.FieldOffsetVectorOffset))

	l := &Layout{
		Address: uint64(h),
		Name:    name,
		Module:  module,
		Kind:    desc.Flags.Kind(),
		Flags:   desc.Flags,
		Fields:  make([]Field, 0, desc.NumFields),
	}

	if desc.IsGeneric() {
		if l.Generic, err = i.generic(sm); err != nil {
			return nil, fmt.Errorf("failed to read generic context of %s: %w", name, err)
		}
	}

	var size *uint64
	if !i.conf.SkipSizeCheck {
		vwt, err := sm.ValueWitnesses(i.mem)
		if err != nil {
			return nil, fmt.Errorf("failed to read value witnesses of %s: %w", name, err)
		}
		if vwt != nil {
			l.InstanceSize = vwt.Size
			size = &vwt.Size
		}
	}

	fd, err := desc.FieldDescriptor(i.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read field descriptor of %s: %w", name, err)
	}
	if fd.NumFields > 0 && !sm.HasFieldOffsets() {
		return nil, &FieldError{Index: 0, Err: fmt.Errorf("%w: %s declares %d fields", swift.ErrNoFields, name, fd.NumFields)}
	}

	idx := 0
	for rec, err := range fd.Records(i.mem) {
		if err != nil {
			return nil, &FieldError{Index: idx, Err: err}
		}
		f, err := i.field(sm, rec, idx, size)
		if err != nil {
			return nil, &FieldError{Index: idx, Err: err}
		}
		log.Debug("decoded field",
			zap.Int("index", idx),
			zap.String("name", f.Name),
			zap.Uint32("offset", f.Offset),
			zap.Bool("var", f.IsVar))
		l.Fields = append(l.Fields, f)
		idx++
	}
	return l, nil
}

func (i *Inspector) field(sm *swift.StructMetadata, rec *swift.FieldRecord, idx int, size *uint64) (Field, error) {
	name, err := rec.Name(i.mem)
	if err != nil {
		return Field{}, err
	}
	typ, err := rec.MangledTypeName(i.mem)
	if err != nil {
		return Field{}, err
	}
	off, err := sm.FieldOffset(i.mem, idx)
	if err != nil {
		return Field{}, err
	}
	// Zero sized members may sit at the very end of an instance.
	if size != nil && uint64(off) > *size {
		return Field{}, fmt.Errorf("%w: offset %d of %q is past the instance size %d",
			swift.ErrCorruptDescriptor, off, name, *size)
	}
	return Field{
		Index:          idx,
		Name:           name,
		MangledType:    string(typ),
		Offset:         off,
		IsVar:          rec.IsVar(),
		IsIndirectCase: rec.IsIndirectCase(),
	}, nil
}

func (i *Inspector) generic(sm *swift.StructMetadata) (*GenericInfo, error) {
	gc, err := sm.Descriptor.GenericContext(i.mem)
	if err != nil {
		return nil, err
	}
	pattern, err := gc.Pattern(i.mem)
	if err != nil {
		return nil, err
	}
	info := &GenericInfo{
		NumParams:         gc.Base.NumParams,
		NumRequirements:   gc.Base.NumRequirements,
		NumKeyArguments:   gc.Base.NumKeyArguments,
		NumExtraArguments: gc.Base.NumExtraArguments,
		PatternFlags:      pattern.PatternFlags,
	}
	tf, ok, err := sm.TrailingFlags(i.mem)
	if err != nil {
		return nil, err
	}
	if ok {
		info.TrailingFlags = &tf
	}
	// Statically specialized metadata is emitted complete by the compiler and
	// never goes through the instantiation cache.
	if i.conf.SkipInstantiationCheck || (ok && tf.IsStaticSpecialization()) {
		return info, nil
	}
	if err := gc.Instantiated(i.mem); err != nil {
		return nil, err
	}
	return info, nil
}

// InspectAll inspects every handle, at most Config.Concurrency at a time, and
// returns the layouts in the order of handles. It stops at the first error.
func (i *Inspector) InspectAll(ctx context.Context, handles []TypeHandle) ([]*Layout, error) {
	layouts := make([]*Layout, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(i.conf.concurrency(), len(handles))))
	for idx, h := range handles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l, err := i.Inspect(h)
			if err != nil {
				return fmt.Errorf("type %#x: %w", uint64(h), err)
			}
			layouts[idx] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layouts, nil
}

// IsRetryable reports whether err only means that generic metadata has not
// been instantiated yet.
func IsRetryable(err error) bool {
	return errors.Is(err, swift.ErrNotYetInstantiated)
}
