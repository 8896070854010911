package swiftmeta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

func (l Layout) String() string {
	return l.dump(false)
}

// Verbose includes addresses, offsets and the instance size.
func (l Layout) Verbose() string {
	return l.dump(true)
}

func (l Layout) dump(verbose bool) string {
	var sb strings.Builder
	if verbose {
		fmt.Fprintf(&sb, "// %#x", l.Address)
		if l.InstanceSize > 0 {
			fmt.Fprintf(&sb, " size=%d", l.InstanceSize)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "struct %s%s {", l.QualifiedName(), l.GenericParams())
	if len(l.Fields) > 0 {
		sb.WriteString("\n")
	}
	for _, f := range l.Fields {
		sb.WriteString("    ")
		sb.WriteString(f.dump(verbose))
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// QualifiedName is the type name prefixed with its module, if known.
func (l Layout) QualifiedName() string {
	if l.Module != "" {
		return l.Module + "." + l.Name
	}
	return l.Name
}

// GenericParams names the generic parameters as <A0, A1, ...>. It is empty
// for non-generic structs.
func (l Layout) GenericParams() string {
	if l.Generic == nil || l.Generic.NumParams == 0 {
		return ""
	}
	params := make([]string, l.Generic.NumParams)
	for i := range params {
		params[i] = fmt.Sprintf("A%d", i)
	}
	return "<" + strings.Join(params, ", ") + ">"
}

func (f Field) String() string {
	return f.dump(false)
}

func (f Field) dump(verbose bool) string {
	kw := "let"
	if f.IsVar {
		kw = "var"
	}
	var typ string
	if f.MangledType != "" {
		typ = ": " + f.TypeString()
	}
	if verbose {
		return fmt.Sprintf("/* 0x%02x */ %s %s%s", f.Offset, kw, f.Name, typ)
	}
	return fmt.Sprintf("%s %s%s", kw, f.Name, typ)
}

// TypeString is the mangled type with the raw bytes of symbolic references
// escaped as \xNN.
func (f Field) TypeString() string {
	return printableMangled(f.MangledType)
}

func printableMangled(s string) string {
	if strings.IndexFunc(s, func(r rune) bool { return r < 0x20 || r > 0x7e }) < 0 {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c > 0x7e {
			fmt.Fprintf(&sb, "\\x%02x", c)
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Format selects an encoding for WriteLayouts.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat accepts text, json or msgpack.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatMsgpack:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// MarshalMsgpack encodes the layout with msgpack field tags.
func (l *Layout) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("msgpack")
	type plain Layout
	if err := enc.Encode((*plain)(l)); err != nil {
		return nil, fmt.Errorf("failed to msgpack encode layout %s: %w", l.Name, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalMsgpack decodes a layout written by MarshalMsgpack.
func (l *Layout) UnmarshalMsgpack(data []byte) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("msgpack")
	type plain Layout
	if err := dec.Decode((*plain)(l)); err != nil {
		return fmt.Errorf("failed to msgpack decode layout: %w", err)
	}
	return nil
}

// WriteLayouts writes layouts to w in the given format.
func WriteLayouts(w io.Writer, format Format, verbose bool, layouts ...*Layout) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(layouts) == 1 {
			return enc.Encode(layouts[0])
		}
		return enc.Encode(layouts)
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("msgpack")
		if len(layouts) == 1 {
			return enc.Encode(layouts[0])
		}
		return enc.Encode(layouts)
	case FormatText, "":
		for _, l := range layouts {
			out := l.String()
			if verbose {
				out = l.Verbose()
			}
			if _, err := fmt.Fprintln(w, out); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
