package image

import "strconv"

// SectionKind drives both boundary and block rules.
type SectionKind int

const (
	KindUnknown SectionKind = iota
	KindCode
	KindCString
	KindPtr32
	KindPtr64
	KindGot32
	KindGot64
	KindExceptionDirEntry
	KindElf32Sym
	KindElf64Sym
	KindElf32Dyn
	KindElf64Dyn
	KindUnloaded
	KindDebug
)

var kindNames = [...]string{
	KindUnknown:           "Unknown",
	KindCode:              "Code",
	KindCString:           "CString",
	KindPtr32:             "Ptr32",
	KindPtr64:             "Ptr64",
	KindGot32:             "Got32",
	KindGot64:             "Got64",
	KindExceptionDirEntry: "ExceptionDirEntry",
	KindElf32Sym:          "Elf32Sym",
	KindElf64Sym:          "Elf64Sym",
	KindElf32Dyn:          "Elf32Dyn",
	KindElf64Dyn:          "Elf64Dyn",
	KindUnloaded:          "Unloaded",
	KindDebug:             "Debug",
}

func (k SectionKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "SectionKind(" + strconv.Itoa(int(k)) + ")"
}

// Section is one mapped address range.
type Section struct {
	Name string
	// Ident is a format-specific tag (ELF section type, Mach-O segment,
	// PE content class) or "UNKNOWN".
	Ident string
	Kind  SectionKind
	Start uint64
	End   uint64
	// Bytes is empty for sections with no file data, e.g. .bss.
	Bytes []byte
}

// Contains reports whether start <= addr < end.
func (s *Section) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

// Empty reports whether the section has no backing bytes.
func (s *Section) Empty() bool {
	return len(s.Bytes) == 0
}

func (s *Section) Size() uint64 {
	return s.End - s.Start
}

// BytesByAddr returns up to n bytes starting at addr; n < 0 means up to the
// end of the section. Out-of-range requests return nil.
func (s *Section) BytesByAddr(addr uint64, n int) []byte {
	if addr < s.Start {
		return nil
	}
	off := addr - s.Start
	if off >= uint64(len(s.Bytes)) {
		return nil
	}
	rest := s.Bytes[off:]
	if n >= 0 && n < len(rest) {
		return rest[:n]
	}
	return rest
}
