package image

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"
)

func loadELF(im *Image) error {
	f, err := elf.NewFile(bytes.NewReader(im.Raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	im.Format = FormatELF
	im.Is64 = f.Class == elf.ELFCLASS64
	im.ByteOrder = f.ByteOrder
	im.Entry = f.Entry
	im.Arch = elfArch(f.Machine)

	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		// TLS bss overlaps the sections that follow it.
		if s.Type == elf.SHT_NOBITS && s.Flags&elf.SHF_TLS != 0 {
			continue
		}

		sec := Section{
			Name:  s.Name,
			Ident: s.Type.String(),
			Kind:  ELFSectionKind(s.SectionHeader, im.Is64),
			Start: s.Addr,
			End:   s.Addr + s.Size,
		}
		if s.Type != elf.SHT_NOBITS {
			if data, err := s.Data(); err == nil {
				sec.Bytes = fit(data, s.Size)
			}
		}
		im.Sections = append(im.Sections, sec)
	}

	im.Symbols = elfSymbols(f)
	return nil
}

func elfArch(m elf.Machine) Arch {
	switch m {
	case elf.EM_386:
		return ArchX86
	case elf.EM_X86_64:
		return ArchX8664
	case elf.EM_AARCH64:
		return ArchARM64
	}
	return ArchUnknown
}

// ELFSectionKind classifies an allocated ELF section.
func ELFSectionKind(h elf.SectionHeader, is64 bool) SectionKind {
	pick := func(k32, k64 SectionKind) SectionKind {
		if is64 {
			return k64
		}
		return k32
	}

	switch {
	case strings.HasPrefix(h.Name, ".debug"):
		return KindDebug
	case h.Flags&elf.SHF_EXECINSTR != 0:
		return KindCode
	case h.Type == elf.SHT_DYNSYM || h.Type == elf.SHT_SYMTAB:
		return pick(KindElf32Sym, KindElf64Sym)
	case h.Type == elf.SHT_DYNAMIC:
		return pick(KindElf32Dyn, KindElf64Dyn)
	case h.Name == ".got" || h.Name == ".got.plt":
		return pick(KindGot32, KindGot64)
	case h.Type == elf.SHT_INIT_ARRAY, h.Type == elf.SHT_FINI_ARRAY, h.Type == elf.SHT_PREINIT_ARRAY,
		h.Name == ".data.rel.ro":
		return pick(KindPtr32, KindPtr64)
	case h.Flags&elf.SHF_STRINGS != 0 && h.Entsize <= 1:
		return KindCString
	}
	return KindUnknown
}

// elfSymbols reads .symtab, falling back to the defined entries of .dynsym
// for stripped binaries.
func elfSymbols(f *elf.File) []Symbol {
	syms, err := f.Symbols()
	if err != nil || len(syms) == 0 {
		syms, _ = f.DynamicSymbols()
	}

	var out []Symbol
	for _, s := range syms {
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FILE, elf.STT_SECTION:
			continue
		}
		if s.Section == elf.SHN_UNDEF || s.Value == 0 {
			continue
		}
		out = append(out, Symbol{Addr: s.Value, Name: s.Name})
	}
	return out
}
