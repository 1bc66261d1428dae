// Package records decodes fixed-size structures found in executable
// sections: PE exception directory entries and ELF symbol/dynamic entries.
package records

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"bite/internal/image"
)

// FieldSpec describes one field of a layout.
type FieldSpec struct {
	Name   string
	Type   string
	Size   int
	Format func(v uint64) string
}

// Layout is a named sequence of fields.
type Layout struct {
	Ident  string
	Fields []FieldSpec
}

// Field is a decoded field.
type Field struct {
	Addr  uint64
	Name  string
	Type  string
	Value string
}

// Size is the total byte size of the layout.
func (l *Layout) Size() int {
	n := 0
	for _, f := range l.Fields {
		n += f.Size
	}
	return n
}

// Decode interprets b as a record located at addr. It returns false when b
// is shorter than the layout.
func (l *Layout) Decode(addr uint64, b []byte, order binary.ByteOrder) ([]Field, bool) {
	if len(b) < l.Size() {
		return nil, false
	}

	fields := make([]Field, 0, len(l.Fields))
	off := 0
	for _, fs := range l.Fields {
		var v uint64
		switch fs.Size {
		case 1:
			v = uint64(b[off])
		case 2:
			v = uint64(order.Uint16(b[off:]))
		case 4:
			v = uint64(order.Uint32(b[off:]))
		case 8:
			v = order.Uint64(b[off:])
		}
		format := hex
		if fs.Format != nil {
			format = fs.Format
		}
		fields = append(fields, Field{
			Addr:  addr + uint64(off),
			Name:  fs.Name,
			Type:  fs.Type,
			Value: format(v),
		})
		off += fs.Size
	}
	return fields, true
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

func dynTag64(v uint64) string {
	return elf.DynTag(int64(v)).String()
}

func dynTag32(v uint64) string {
	return elf.DynTag(int32(uint32(v))).String()
}

func symInfo(v uint64) string {
	info := uint8(v)
	return elf.ST_BIND(info).String() + " | " + elf.ST_TYPE(info).String()
}

func symOther(v uint64) string {
	return elf.ST_VISIBILITY(uint8(v)).String()
}

var (
	ExceptionDirectoryEntry = Layout{
		Ident: "ExceptionDirectoryEntry",
		Fields: []FieldSpec{
			{Name: "begin_address", Type: "u32", Size: 4},
			{Name: "end_address", Type: "u32", Size: 4},
			{Name: "unwind_info", Type: "u32", Size: 4},
		},
	}

	Elf32Sym = Layout{
		Ident: "Elf32_Sym",
		Fields: []FieldSpec{
			{Name: "st_name", Type: "u32", Size: 4},
			{Name: "st_value", Type: "u32", Size: 4},
			{Name: "st_size", Type: "u32", Size: 4},
			{Name: "st_info", Type: "u8", Size: 1, Format: symInfo},
			{Name: "st_other", Type: "u8", Size: 1, Format: symOther},
			{Name: "st_shndx", Type: "u16", Size: 2},
		},
	}

	Elf64Sym = Layout{
		Ident: "Elf64_Sym",
		Fields: []FieldSpec{
			{Name: "st_name", Type: "u32", Size: 4},
			{Name: "st_info", Type: "u8", Size: 1, Format: symInfo},
			{Name: "st_other", Type: "u8", Size: 1, Format: symOther},
			{Name: "st_shndx", Type: "u16", Size: 2},
			{Name: "st_value", Type: "u64", Size: 8},
			{Name: "st_size", Type: "u64", Size: 8},
		},
	}

	Elf32Dyn = Layout{
		Ident: "Elf32_Dyn",
		Fields: []FieldSpec{
			{Name: "d_tag", Type: "i32", Size: 4, Format: dynTag32},
			{Name: "d_val", Type: "u32", Size: 4},
		},
	}

	Elf64Dyn = Layout{
		Ident: "Elf64_Dyn",
		Fields: []FieldSpec{
			{Name: "d_tag", Type: "i64", Size: 8, Format: dynTag64},
			{Name: "d_val", Type: "u64", Size: 8},
		},
	}
)

// ForKind returns the layout of a structured section kind.
func ForKind(k image.SectionKind) (*Layout, bool) {
	switch k {
	case image.KindExceptionDirEntry:
		return &ExceptionDirectoryEntry, true
	case image.KindElf32Sym:
		return &Elf32Sym, true
	case image.KindElf64Sym:
		return &Elf64Sym, true
	case image.KindElf32Dyn:
		return &Elf32Dyn, true
	case image.KindElf64Dyn:
		return &Elf64Dyn, true
	}
	return nil, false
}
