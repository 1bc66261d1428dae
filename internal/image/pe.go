package image

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"strings"
)

const codeViewRSDS = 2

func loadPE(im *Image) error {
	f, err := pe.NewFile(bytes.NewReader(im.Raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var dirs []pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		im.Base = uint64(oh.ImageBase)
		im.Entry = im.Base + uint64(oh.AddressOfEntryPoint)
		dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	case *pe.OptionalHeader64:
		im.Is64 = true
		im.Base = oh.ImageBase
		im.Entry = im.Base + uint64(oh.AddressOfEntryPoint)
		dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	default:
		return fmt.Errorf("%w: PE without optional header", ErrMalformed)
	}

	im.Format = FormatPE
	im.ByteOrder = binary.LittleEndian
	im.Arch = peArch(f.Machine)

	for _, s := range f.Sections {
		size := uint64(s.VirtualSize)
		if size == 0 {
			size = uint64(s.Size)
		}
		start := im.Base + uint64(s.VirtualAddress)
		sec := Section{
			Name:  s.Name,
			Ident: peIdent(s.Characteristics),
			Kind:  PESectionKind(s.Name, s.Characteristics, im.Arch),
			Start: start,
			End:   start + size,
		}
		if s.Characteristics&pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA == 0 && s.Size > 0 {
			if data, err := s.Data(); err == nil {
				sec.Bytes = fit(data, size)
			}
		}
		im.Sections = append(im.Sections, sec)
		im.SegmentRVAs = append(im.SegmentRVAs, s.VirtualAddress)
	}

	for _, sym := range f.Symbols {
		if sym.SectionNumber <= 0 || int(sym.SectionNumber) > len(f.Sections) {
			continue
		}
		addr := im.Base + uint64(f.Sections[sym.SectionNumber-1].VirtualAddress) + uint64(sym.Value)
		im.Symbols = append(im.Symbols, Symbol{Addr: addr, Name: sym.Name})
	}

	if len(dirs) > pe.IMAGE_DIRECTORY_ENTRY_DEBUG {
		im.PDBPath = codeViewPath(im.Raw, f, dirs[pe.IMAGE_DIRECTORY_ENTRY_DEBUG])
	}
	return nil
}

func peArch(m uint16) Arch {
	switch m {
	case pe.IMAGE_FILE_MACHINE_I386:
		return ArchX86
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return ArchX8664
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return ArchARM64
	}
	return ArchUnknown
}

func peIdent(c uint32) string {
	switch {
	case c&pe.IMAGE_SCN_CNT_CODE != 0:
		return "CODE"
	case c&pe.IMAGE_SCN_CNT_INITIALIZED_DATA != 0:
		return "INITIALIZED_DATA"
	case c&pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0:
		return "UNINITIALIZED_DATA"
	}
	return "UNKNOWN"
}

// PESectionKind classifies a PE section by name and characteristics.
func PESectionKind(name string, c uint32, arch Arch) SectionKind {
	switch {
	case strings.HasPrefix(name, ".debug") && c&pe.IMAGE_SCN_MEM_DISCARDABLE != 0:
		return KindDebug
	case c&(pe.IMAGE_SCN_CNT_CODE|pe.IMAGE_SCN_MEM_EXECUTE) != 0:
		return KindCode
	case name == ".pdata" && arch == ArchX8664:
		return KindExceptionDirEntry
	}
	return KindUnknown
}

// RVAToOffset maps an RVA to a file offset through the section table.
func RVAToOffset(secs []*pe.Section, rva uint32) (uint32, bool) {
	for _, s := range secs {
		vs := s.VirtualSize
		if s.Size > vs {
			vs = s.Size
		}
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+vs {
			delta := rva - s.VirtualAddress
			if delta >= s.Size {
				return 0, false
			}
			return s.Offset + delta, true
		}
	}
	return 0, false
}

// codeViewPath extracts the PDB path from an RSDS debug record.
func codeViewPath(raw []byte, f *pe.File, dir pe.DataDirectory) string {
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return ""
	}
	off, ok := RVAToOffset(f.Sections, dir.VirtualAddress)
	if !ok {
		return ""
	}

	const entrySize = 28
	for i := uint64(0); i+entrySize <= uint64(dir.Size); i += entrySize {
		start := uint64(off) + i
		if start+entrySize > uint64(len(raw)) {
			break
		}
		e := raw[start : start+entrySize]
		typ := binary.LittleEndian.Uint32(e[12:])
		size := uint64(binary.LittleEndian.Uint32(e[16:]))
		ptr := uint64(binary.LittleEndian.Uint32(e[24:]))
		if typ != codeViewRSDS || ptr+size > uint64(len(raw)) {
			continue
		}
		cv := raw[ptr : ptr+size]
		// "RSDS" + GUID + age
		if len(cv) < 24 || string(cv[:4]) != "RSDS" {
			continue
		}
		name := cv[24:]
		if n := bytes.IndexByte(name, 0); n >= 0 {
			name = name[:n]
		}
		return string(name)
	}
	return ""
}
