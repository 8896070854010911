package main

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blacktop/go-swiftmeta"
	"github.com/blacktop/go-swiftmeta/internal/fixture"
)

const imageBase = 0x100000

var (
	fieldDefs   []string
	typeName    string
	moduleName  string
	ptrSize     int
	bigEndian   bool
	genericArgs uint16
	format      string

	keywordColor = color.New(color.FgMagenta, color.Bold)
	typeColor    = color.New(color.FgCyan)
	offsetColor  = color.New(color.FgHiBlack)
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Lay out a struct and decode its metadata",
	Long: `Builds the metadata records for a struct described by --field flags and
decodes them. Without --field the Person example struct is used.

Each --field is name:MangledType:offset with an optional :let suffix.`,
	Example: `  swift-layout inspect
  swift-layout inspect --name Point --field x:Sd:0 --field y:Sd:8:let
  swift-layout inspect --generic 1 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("ptr-size") {
			conf.PointerSize = ptrSize
		}
		if bigEndian {
			conf.ByteOrder = "big"
		}
		if err := conf.Validate(); err != nil {
			return err
		}
		outFmt, err := swiftmeta.ParseFormat(format)
		if err != nil {
			return err
		}

		s, err := buildStruct()
		if err != nil {
			return err
		}
		order, err := conf.Order()
		if err != nil {
			return err
		}
		b := fixture.NewBuilder(imageBase, conf.PointerSize, order)
		h := b.Struct(s)
		mem, err := b.Space()
		if err != nil {
			return err
		}

		in := swiftmeta.NewInspector(mem, swiftmeta.WithConfig(conf), swiftmeta.WithLogger(swiftmeta.Logger()))
		l, err := in.Inspect(swiftmeta.TypeHandle(h.Metadata))
		if err != nil {
			return err
		}
		if outFmt != swiftmeta.FormatText {
			return swiftmeta.WriteLayouts(output, outFmt, verbose, l)
		}
		printLayout(l, order)
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringArrayVarP(&fieldDefs, "field", "f", nil, "field as name:MangledType:offset[:let] (repeatable)")
	inspectCmd.Flags().StringVarP(&typeName, "name", "n", "Person", "struct name")
	inspectCmd.Flags().StringVarP(&moduleName, "module", "m", "StructMetadata", "module name")
	inspectCmd.Flags().IntVarP(&ptrSize, "ptr-size", "p", 8, "target pointer size (4 or 8)")
	inspectCmd.Flags().BoolVar(&bigEndian, "big-endian", false, "lay out records big endian")
	inspectCmd.Flags().Uint16VarP(&genericArgs, "generic", "g", 0, "number of generic parameters")
	inspectCmd.Flags().StringVarP(&format, "format", "o", "text", "output format (text|json|msgpack)")
}

func buildStruct() (fixture.Struct, error) {
	var s fixture.Struct
	if len(fieldDefs) == 0 {
		s = fixture.Person(conf.PointerSize)
	} else {
		for _, def := range fieldDefs {
			f, err := parseField(def)
			if err != nil {
				return fixture.Struct{}, err
			}
			s.Fields = append(s.Fields, f)
		}
	}
	s.Name = typeName
	s.Module = moduleName
	if genericArgs > 0 {
		s.Generic = &fixture.Generic{
			NumParams:       genericArgs,
			NumKeyArguments: genericArgs,
			Instantiated:    true,
		}
	}
	return s, nil
}

func parseField(def string) (fixture.Field, error) {
	parts := strings.Split(def, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return fixture.Field{}, fmt.Errorf("invalid field %q: want name:MangledType:offset[:let]", def)
	}
	off, err := strconv.ParseUint(parts[2], 0, 32)
	if err != nil {
		return fixture.Field{}, fmt.Errorf("invalid offset in field %q: %w", def, err)
	}
	f := fixture.Field{
		Name:        parts[0],
		MangledType: parts[1],
		Offset:      uint32(off),
		IsVar:       true,
	}
	if len(parts) == 4 {
		switch parts[3] {
		case "let":
			f.IsVar = false
		case "var":
		default:
			return fixture.Field{}, fmt.Errorf("invalid mutability %q in field %q", parts[3], def)
		}
	}
	return f, nil
}

func printLayout(l *swiftmeta.Layout, order binary.ByteOrder) {
	if verbose {
		offsetColor.Fprintf(output, "// %#x %s ptr=%d %s\n", l.Address, l.Flags, conf.PointerSize, order)
		if l.InstanceSize > 0 {
			offsetColor.Fprintf(output, "// size=%d\n", l.InstanceSize)
		}
	}
	keywordColor.Fprint(output, "struct ")
	typeColor.Fprint(output, l.QualifiedName())
	fmt.Fprint(output, l.GenericParams())
	fmt.Fprintln(output, " {")
	for _, f := range l.Fields {
		fmt.Fprint(output, "    ")
		if verbose {
			offsetColor.Fprintf(output, "/* 0x%02x */ ", f.Offset)
		}
		kw := "let"
		if f.IsVar {
			kw = "var"
		}
		keywordColor.Fprint(output, kw)
		fmt.Fprintf(output, " %s", f.Name)
		if f.MangledType != "" {
			fmt.Fprint(output, ": ")
			typeColor.Fprint(output, f.TypeString())
		}
		fmt.Fprintln(output)
	}
	fmt.Fprintln(output, "}")
}
