package image

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"errors"
	"os"
	"testing"

	"github.com/blacktop/go-macho/types"
)

func TestBytesByAddr(t *testing.T) {
	s := Section{Start: 0x1000, End: 0x1008, Bytes: []byte{0, 1, 2, 3, 4, 5, 6, 7}}

	tests := []struct {
		name string
		addr uint64
		n    int
		want []byte
	}{
		{"head", 0x1000, 2, []byte{0, 1}},
		{"middle", 0x1004, 2, []byte{4, 5}},
		{"clamped", 0x1006, 16, []byte{6, 7}},
		{"to end", 0x1005, -1, []byte{5, 6, 7}},
		{"at end", 0x1008, 4, nil},
		{"before start", 0xfff, 4, nil},
		{"far away", 0x9000, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.BytesByAddr(tt.addr, tt.n)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("BytesByAddr(%#x, %d) = %v, want %v", tt.addr, tt.n, got, tt.want)
			}
		})
	}

	empty := Section{Start: 0x2000, End: 0x3000}
	if got := empty.BytesByAddr(0x2000, 4); got != nil {
		t.Errorf("empty section returned %v", got)
	}
}

func TestFind(t *testing.T) {
	secs := []Section{
		{Name: ".text", Start: 0x1000, End: 0x2000},
		{Name: ".rodata", Start: 0x2000, End: 0x2800},
		{Name: ".empty", Start: 0x3000, End: 0x3000},
		{Name: ".data", Start: 0x4000, End: 0x4100},
	}

	tests := []struct {
		addr uint64
		want string
		ok   bool
	}{
		{0x1000, ".text", true},
		{0x1fff, ".text", true},
		{0x2000, ".rodata", true},
		{0x2800, ".rodata", true},
		{0x3000, ".empty", true},
		{0x4100, ".data", true},
		{0x500, "", false},
		{0x3800, "", false},
	}
	for _, tt := range tests {
		s, ok := Find(secs, tt.addr)
		if ok != tt.ok {
			t.Errorf("Find(%#x) ok = %v, want %v", tt.addr, ok, tt.ok)
			continue
		}
		if ok && s.Name != tt.want {
			t.Errorf("Find(%#x) = %s, want %s", tt.addr, s.Name, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	secs := []Section{
		{Name: "b", Start: 0x2000, End: 0x3000},
		{Name: "a", Start: 0x1000, End: 0x2000},
		{Name: "overlap", Start: 0x2800, End: 0x2900},
		{Name: "c", Start: 0x3000, End: 0x3000},
	}
	got := normalize(secs)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("normalize() kept %d sections, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("section %d = %s, want %s", i, got[i].Name, want[i])
		}
	}
}

func TestFit(t *testing.T) {
	if got := fit(nil, 16); got != nil {
		t.Errorf("fit(nil) = %v", got)
	}
	if got := fit([]byte{1, 2, 3, 4}, 2); !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("fit truncate = %v", got)
	}
	if got := fit([]byte{1}, 3); !bytes.Equal(got, []byte{1, 0, 0}) {
		t.Errorf("fit pad = %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"short", []byte{0x7f}, ErrTruncated},
		{"unknown", []byte("hello world"), ErrUnknownFormat},
		{"fat", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 2}, ErrUnsupported},
		{"bad elf", []byte("\x7fELF\x02\x01\x01"), ErrMalformed},
		{"bad pe", []byte("MZ\x00\x00"), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.raw); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestELFSectionKind(t *testing.T) {
	tests := []struct {
		name string
		h    elf.SectionHeader
		is64 bool
		want SectionKind
	}{
		{"text", elf.SectionHeader{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR}, true, KindCode},
		{"plt", elf.SectionHeader{Name: ".plt", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR}, true, KindCode},
		{"dynsym64", elf.SectionHeader{Name: ".dynsym", Type: elf.SHT_DYNSYM, Flags: elf.SHF_ALLOC}, true, KindElf64Sym},
		{"dynsym32", elf.SectionHeader{Name: ".dynsym", Type: elf.SHT_DYNSYM, Flags: elf.SHF_ALLOC}, false, KindElf32Sym},
		{"dynamic", elf.SectionHeader{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Flags: elf.SHF_ALLOC | elf.SHF_WRITE}, true, KindElf64Dyn},
		{"got", elf.SectionHeader{Name: ".got", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE}, true, KindGot64},
		{"got.plt 32", elf.SectionHeader{Name: ".got.plt", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE}, false, KindGot32},
		{"init_array", elf.SectionHeader{Name: ".init_array", Type: elf.SHT_INIT_ARRAY, Flags: elf.SHF_ALLOC | elf.SHF_WRITE}, true, KindPtr64},
		{"strings", elf.SectionHeader{Name: ".rodata.str1.1", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_MERGE | elf.SHF_STRINGS, Entsize: 1}, true, KindCString},
		{"wide strings", elf.SectionHeader{Name: ".rodata.str4.4", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_MERGE | elf.SHF_STRINGS, Entsize: 4}, true, KindUnknown},
		{"debug", elf.SectionHeader{Name: ".debug_info", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC}, true, KindDebug},
		{"rodata", elf.SectionHeader{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC}, true, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ELFSectionKind(tt.h, tt.is64); got != tt.want {
				t.Errorf("ELFSectionKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPESectionKind(t *testing.T) {
	tests := []struct {
		name string
		sec  string
		c    uint32
		arch Arch
		want SectionKind
	}{
		{"text", ".text", pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE, ArchX8664, KindCode},
		{"pdata x64", ".pdata", pe.IMAGE_SCN_CNT_INITIALIZED_DATA, ArchX8664, KindExceptionDirEntry},
		{"pdata x86", ".pdata", pe.IMAGE_SCN_CNT_INITIALIZED_DATA, ArchX86, KindUnknown},
		{"rdata", ".rdata", pe.IMAGE_SCN_CNT_INITIALIZED_DATA, ArchX8664, KindUnknown},
		{"debug", ".debug_info", pe.IMAGE_SCN_MEM_DISCARDABLE, ArchX8664, KindDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PESectionKind(tt.sec, tt.c, tt.arch); got != tt.want {
				t.Errorf("PESectionKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMachOKind(t *testing.T) {
	const (
		pureInstructions = 0x80000000
		cstrings         = 0x2
		nonLazyPointers  = 0x6
	)
	tests := []struct {
		name  string
		seg   string
		flags uint32
		is64  bool
		want  SectionKind
	}{
		{"text", "__TEXT", pureInstructions, true, KindCode},
		{"cstring", "__TEXT", cstrings, true, KindCString},
		{"got", "__DATA_CONST", nonLazyPointers, true, KindGot64},
		{"lazy", "__DATA", machoLazySymbolPointers, false, KindPtr32},
		{"init", "__DATA", machoModInitFuncs, true, KindPtr64},
		{"dwarf", "__DWARF", 0, true, KindDebug},
		{"data", "__DATA", 0, true, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := machoKind(tt.seg, types.SectionFlag(tt.flags), tt.is64); got != tt.want {
				t.Errorf("machoKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMachOArch(t *testing.T) {
	tests := []struct {
		cpu  types.CPU
		want Arch
	}{
		{types.CPUI386, ArchX86},
		{types.CPUAmd64, ArchX8664},
		{types.CPUArm64, ArchARM64},
		{types.CPUPpc, ArchUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := machoArch(tt.cpu); got != tt.want {
				t.Errorf("machoArch(%v) = %v, want %v", tt.cpu, got, tt.want)
			}
		})
	}
}

func TestCodeViewPath(t *testing.T) {
	// One section mapping RVA 0x1000 to file offset 0x200.
	raw := make([]byte, 0x400)
	secs := []*pe.Section{{SectionHeader: pe.SectionHeader{VirtualAddress: 0x1000, VirtualSize: 0x200, Offset: 0x200, Size: 0x200}}}

	// Debug directory entry at RVA 0x1000 pointing at a CodeView record at 0x300.
	entry := raw[0x200:]
	putU32 := func(b []byte, v uint32) { b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24) }
	putU32(entry[12:], codeViewRSDS)
	cv := append([]byte("RSDS"), make([]byte, 20)...)
	cv = append(cv, []byte("C:\\build\\app.pdb\x00")...)
	putU32(entry[16:], uint32(len(cv)))
	putU32(entry[24:], 0x300)
	copy(raw[0x300:], cv)

	f := &pe.File{Sections: secs}
	got := codeViewPath(raw, f, pe.DataDirectory{VirtualAddress: 0x1000, Size: 28})
	if got != "C:\\build\\app.pdb" {
		t.Fatalf("codeViewPath() = %q", got)
	}
}

func TestOpenSelf(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Skip("no executable path")
	}
	im, err := Open(exe)
	if errors.Is(err, ErrUnknownFormat) || errors.Is(err, ErrUnsupported) {
		t.Skipf("test binary format not handled: %v", err)
	}
	if err != nil {
		t.Fatalf("Open(%s) = %v", exe, err)
	}

	if im.Entry == 0 {
		t.Errorf("entry point is zero")
	}
	if len(im.Sections) == 0 {
		t.Fatal("no sections loaded")
	}
	var code bool
	for i, s := range im.Sections {
		if s.Start > s.End {
			t.Errorf("section %s has start > end", s.Name)
		}
		if i > 0 && s.Start < im.Sections[i-1].End {
			t.Errorf("section %s overlaps %s", s.Name, im.Sections[i-1].Name)
		}
		if !s.Empty() && uint64(len(s.Bytes)) != s.Size() {
			t.Errorf("section %s has %d bytes for size %d", s.Name, len(s.Bytes), s.Size())
		}
		if s.Kind == KindCode {
			code = true
		}
	}
	if !code {
		t.Errorf("no code section found")
	}
}
