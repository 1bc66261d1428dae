package image

import (
	"bytes"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// Mach-O section types (low byte of the section flags).
const (
	machoZerofill           = 0x1
	machoLazySymbolPointers = 0x7
	machoModInitFuncs       = 0x9
	machoModTermFuncs       = 0xa
	machoGBZerofill         = 0xc
	machoThreadZerofill     = 0x12
)

func loadMachO(im *Image) error {
	m, err := macho.NewFile(bytes.NewReader(im.Raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	im.Format = FormatMachO
	im.Is64 = m.Magic == types.Magic64
	im.ByteOrder = m.ByteOrder
	im.Arch = machoArch(m.CPU)

	if text := m.Segment("__TEXT"); text != nil {
		im.Base = text.Addr
	}
	for _, l := range m.Loads {
		if ep, ok := l.(*macho.EntryPoint); ok {
			im.Entry = im.Base + ep.EntryOffset
		}
	}

	for _, s := range m.Sections {
		typ := uint32(s.Flags) & 0xff
		sec := Section{
			Name:  s.Name,
			Ident: s.Seg,
			Kind:  machoKind(s.Seg, s.Flags, im.Is64),
			Start: s.Addr,
			End:   s.Addr + s.Size,
		}
		switch typ {
		case machoZerofill, machoGBZerofill, machoThreadZerofill:
		default:
			if data, err := s.Data(); err == nil {
				sec.Bytes = fit(data, s.Size)
			}
		}
		im.Sections = append(im.Sections, sec)
	}

	if m.Symtab != nil {
		for _, sym := range m.Symtab.Syms {
			if sym.Value == 0 || sym.Name == "" {
				continue
			}
			im.Symbols = append(im.Symbols, Symbol{Addr: sym.Value, Name: sym.Name})
		}
	}
	return nil
}

func machoArch(cpu types.CPU) Arch {
	switch cpu {
	case types.CPUI386:
		return ArchX86
	case types.CPUAmd64:
		return ArchX8664
	case types.CPUArm64:
		return ArchARM64
	}
	return ArchUnknown
}

func machoKind(seg string, flags types.SectionFlag, is64 bool) SectionKind {
	typ := uint32(flags) & 0xff
	ptr, got := KindPtr32, KindGot32
	if is64 {
		ptr, got = KindPtr64, KindGot64
	}
	switch {
	case seg == "__DWARF":
		return KindDebug
	case flags.IsPureInstructions() || flags.IsSomeInstructions():
		return KindCode
	case flags.IsCstringLiterals():
		return KindCString
	case flags.IsNonLazySymbolPointers():
		return got
	case typ == machoLazySymbolPointers, typ == machoModInitFuncs, typ == machoModTermFuncs:
		return ptr
	}
	return KindUnknown
}
