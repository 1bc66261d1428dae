package symbols

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"bite/internal/image"
)

const (
	importDescriptorSize = 20
	// PLT stubs point six bytes past the start of the jump.
	jumpSlotAdjust = 6
	maxImportName  = 4096
)

// rvaReader reads n bytes at an RVA of a PE image.
type rvaReader interface {
	ReadRVA(rva uint32, n int) ([]byte, bool)
}

type peFile struct {
	raw  []byte
	secs []*pe.Section
}

func (p peFile) ReadRVA(rva uint32, n int) ([]byte, bool) {
	off, ok := image.RVAToOffset(p.secs, rva)
	if !ok || uint64(off)+uint64(n) > uint64(len(p.raw)) {
		return nil, false
	}
	return p.raw[off : int(off)+n], true
}

// readCString reads a NUL terminated string at rva.
func readCString(r rvaReader, rva uint32) (string, bool) {
	var b []byte
	for i := uint32(0); i < maxImportName; i++ {
		c, ok := r.ReadRVA(rva+i, 1)
		if !ok {
			return "", false
		}
		if c[0] == 0 {
			return string(b), true
		}
		b = append(b, c[0])
	}
	return "", false
}

func trimDLL(module string) string {
	if len(module) >= 4 && strings.EqualFold(module[len(module)-4:], ".dll") {
		return module[:len(module)-4]
	}
	return module
}

func (ix *Index) parsePEImports(raw []byte, img *image.Image) error {
	f, err := pe.NewFile(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("pe: %w", err)
	}

	var dir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_IMPORT {
			dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT]
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_IMPORT {
			dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT]
		}
	}
	if dir.VirtualAddress == 0 {
		return nil
	}

	walkPEImports(peFile{raw: raw, secs: f.Sections}, dir.VirtualAddress, img.Is64, img.Base,
		func(addr uint64, name, module string) {
			ix.insertName(addr, name, module, SourceImport)
		})
	return nil
}

// walkPEImports visits every named import. Descriptors that follow the
// original first thunk resolve to hint+base, bound first thunks resolve to
// the address of their IAT slot.
func walkPEImports(r rvaReader, dirRVA uint32, is64 bool, base uint64, visit func(addr uint64, name, module string)) {
	thunkSize := uint32(4)
	ordinalFlag := uint64(1) << 31
	if is64 {
		thunkSize = 8
		ordinalFlag = 1 << 63
	}
	le := binary.LittleEndian

	for desc := dirRVA; ; desc += importDescriptorSize {
		d, ok := r.ReadRVA(desc, importDescriptorSize)
		if !ok {
			return
		}
		originalFirstThunk := le.Uint32(d[0:])
		nameRVA := le.Uint32(d[12:])
		firstThunk := le.Uint32(d[16:])
		if originalFirstThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			return
		}

		module, ok := readCString(r, nameRVA)
		if !ok {
			continue
		}
		module = trimDLL(module)

		thunk := firstThunk
		if thunk == 0 {
			thunk = originalFirstThunk
		}
		if thunk == 0 {
			continue
		}

		funcRVA := firstThunk
		for slot := thunk; ; slot, funcRVA = slot+thunkSize, funcRVA+thunkSize {
			b, ok := r.ReadRVA(slot, int(thunkSize))
			if !ok {
				break
			}
			v, _ := image.ReadUint(le, b, int(thunkSize))
			if v == 0 {
				break
			}
			if v&ordinalFlag != 0 {
				continue
			}

			hintName := uint32(v)
			h, ok := r.ReadRVA(hintName, 2)
			if !ok {
				continue
			}
			name, ok := readCString(r, hintName+2)
			if !ok || name == "" || !utf8.ValidString(name) {
				continue
			}

			var addr uint64
			if thunk == originalFirstThunk {
				addr = uint64(le.Uint16(h)) + base
			} else {
				addr = uint64(funcRVA) + base
			}
			visit(addr, name, module)
		}
	}
}

type relocKind int

const (
	relocOther relocKind = iota
	relocAbsolute
	relocGlobDat
	relocCopy
	relocJumpSlot
)

// elfRelocKind maps a machine specific relocation type to the kinds that
// name an imported symbol.
func elfRelocKind(m elf.Machine, typ uint32) relocKind {
	switch m {
	case elf.EM_X86_64:
		switch elf.R_X86_64(typ) {
		case elf.R_X86_64_64:
			return relocAbsolute
		case elf.R_X86_64_GLOB_DAT:
			return relocGlobDat
		case elf.R_X86_64_COPY:
			return relocCopy
		case elf.R_X86_64_JMP_SLOT:
			return relocJumpSlot
		}
	case elf.EM_386:
		switch elf.R_386(typ) {
		case elf.R_386_32:
			return relocAbsolute
		case elf.R_386_GLOB_DAT:
			return relocGlobDat
		case elf.R_386_COPY:
			return relocCopy
		case elf.R_386_JMP_SLOT:
			return relocJumpSlot
		}
	case elf.EM_AARCH64:
		switch elf.R_AARCH64(typ) {
		case elf.R_AARCH64_ABS64:
			return relocAbsolute
		case elf.R_AARCH64_GLOB_DAT:
			return relocGlobDat
		case elf.R_AARCH64_COPY:
			return relocCopy
		case elf.R_AARCH64_JUMP_SLOT:
			return relocJumpSlot
		}
	case elf.EM_ARM:
		switch elf.R_ARM(typ) {
		case elf.R_ARM_ABS32:
			return relocAbsolute
		case elf.R_ARM_GLOB_DAT:
			return relocGlobDat
		case elf.R_ARM_COPY:
			return relocCopy
		case elf.R_ARM_JUMP_SLOT:
			return relocJumpSlot
		}
	}
	return relocOther
}

type elfReloc struct {
	offset uint64
	kind   relocKind
	name   string
}

func (ix *Index) parseELFImports(raw []byte, img *image.Image) error {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("elf: %w", err)
	}
	defer f.Close()

	dynsyms, err := f.DynamicSymbols()
	if err != nil {
		// statically linked
		return nil
	}

	var dynsymIdx uint32
	found := false
	for i, s := range f.Sections {
		if s.Type == elf.SHT_DYNSYM {
			dynsymIdx, found = uint32(i), true
			break
		}
	}
	if !found {
		return nil
	}

	var relocs []elfReloc
	for _, s := range f.Sections {
		if (s.Type != elf.SHT_RELA && s.Type != elf.SHT_REL) || s.Link != dynsymIdx {
			continue
		}
		data, err := s.Data()
		if err != nil {
			ix.logger.Debug("unreadable relocation section", "section", s.Name, "err", err)
			continue
		}
		relocs = append(relocs, decodeRelocs(data, f.Class, s.Type == elf.SHT_RELA, f.ByteOrder, f.Machine, dynsyms)...)
	}

	resolveELFImports(relocs, img.Sections, img.ByteOrder, img.Is64, func(addr uint64, name string) {
		ix.insertName(addr, name, "", SourceImport)
	})
	return nil
}

// decodeRelocs reads REL/RELA entries that reference a named dynamic symbol.
func decodeRelocs(data []byte, class elf.Class, rela bool, order binary.ByteOrder, m elf.Machine, dynsyms []elf.Symbol) []elfReloc {
	size := 8
	if class == elf.ELFCLASS64 {
		size = 16
	}
	if rela {
		size += size / 2
	}

	var out []elfReloc
	for off := 0; off+size <= len(data); off += size {
		e := data[off : off+size]
		var (
			offset uint64
			sym    uint32
			typ    uint32
		)
		if class == elf.ELFCLASS64 {
			offset = order.Uint64(e)
			info := order.Uint64(e[8:])
			sym, typ = elf.R_SYM64(info), elf.R_TYPE64(info)
		} else {
			offset = uint64(order.Uint32(e))
			info := order.Uint32(e[4:])
			sym, typ = elf.R_SYM32(info), elf.R_TYPE32(info)
		}

		// DynamicSymbols drops the null symbol at index 0
		if sym == 0 || int(sym) > len(dynsyms) {
			continue
		}
		name := dynsyms[sym-1].Name
		if name == "" {
			continue
		}
		kind := elfRelocKind(m, typ)
		if kind == relocOther {
			continue
		}
		out = append(out, elfReloc{offset: offset, kind: kind, name: name})
	}
	return out
}

// resolveELFImports computes the address named by each relocation. Jump
// slots read the GOT cell and step back over the PLT stub.
func resolveELFImports(relocs []elfReloc, secs []image.Section, order binary.ByteOrder, is64 bool, visit func(addr uint64, name string)) {
	width := 4
	if is64 {
		width = 8
	}
	for _, r := range relocs {
		sec, ok := image.Find(secs, r.offset)
		if !ok || !sec.Contains(r.offset) {
			continue
		}

		addr := r.offset
		if r.kind == relocJumpSlot {
			v, ok := image.ReadUint(order, sec.BytesByAddr(r.offset, width), width)
			if !ok {
				continue
			}
			addr = v - min(v, jumpSlotAdjust)
		}
		visit(addr, r.name)
	}
}
