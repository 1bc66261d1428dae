// Package image loads ELF, PE and Mach-O executables into a flat section
// catalog: ordered, non-overlapping address ranges tagged with a kind and
// backed by the file bytes.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
)

var (
	ErrUnknownFormat = errors.New("image: unknown binary format")
	ErrTruncated     = errors.New("image: file too short")
	ErrMalformed     = errors.New("image: malformed binary")
	ErrUnsupported   = errors.New("image: unsupported binary")
)

// Format is the container format of an image.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	case FormatMachO:
		return "Mach-O"
	default:
		return "unknown"
	}
}

// Arch is the instruction set of the image.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchX8664
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX8664:
		return "x86-64"
	case ArchARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// Symbol is a native symbol table entry.
type Symbol struct {
	Addr uint64
	Name string
}

// Image is a parsed executable.
type Image struct {
	Path      string
	Format    Format
	Arch      Arch
	Is64      bool
	ByteOrder binary.ByteOrder
	Entry     uint64
	// Base is the relative address base: the PE image base, the Mach-O
	// __TEXT address and zero for ELF.
	Base     uint64
	Raw      []byte
	Sections []Section
	Symbols  []Symbol
	// PDBPath is the CodeView path recorded in a PE debug directory.
	PDBPath string
	// SegmentRVAs holds the PE section RVAs; segment n maps to SegmentRVAs[n-1].
	SegmentRVAs []uint32
}

// Open reads and parses the file at path.
func Open(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	im, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	im.Path = path
	return im, nil
}

var (
	elfMagic = []byte("\x7fELF")
	mzMagic  = []byte("MZ")
	fatMagic = []byte{0xca, 0xfe, 0xba, 0xbe}
)

// Parse detects the format of raw and builds the image.
func Parse(raw []byte) (*Image, error) {
	if len(raw) < 4 {
		return nil, ErrTruncated
	}

	im := &Image{Raw: raw}
	var err error
	switch {
	case bytes.HasPrefix(raw, elfMagic):
		err = loadELF(im)
	case bytes.HasPrefix(raw, mzMagic):
		err = loadPE(im)
	case bytes.HasPrefix(raw, fatMagic):
		return nil, fmt.Errorf("%w: universal Mach-O", ErrUnsupported)
	case isMachO(raw):
		err = loadMachO(im)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}

	im.Sections = normalize(im.Sections)
	return im, nil
}

func isMachO(raw []byte) bool {
	switch binary.LittleEndian.Uint32(raw) {
	case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe:
		return true
	}
	return false
}

// normalize sorts sections by start address and drops any section that
// overlaps one already kept.
func normalize(secs []Section) []Section {
	sort.SliceStable(secs, func(i, j int) bool { return secs[i].Start < secs[j].Start })
	out := secs[:0]
	var end uint64
	for i, s := range secs {
		if i > 0 && s.Start < end {
			continue
		}
		out = append(out, s)
		end = s.End
	}
	return out
}

// fit returns data resized to size bytes. Short data is zero padded; empty
// data stays empty so file-absent sections are preserved.
func fit(data []byte, size uint64) []byte {
	if len(data) == 0 {
		return nil
	}
	if uint64(len(data)) >= size {
		return data[:size]
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

// SectionByAddr returns the section containing addr. An address equal to a
// section end resolves to that section when no other section starts there.
func (im *Image) SectionByAddr(addr uint64) (*Section, bool) {
	return Find(im.Sections, addr)
}

// Find locates the section containing addr in an ordered catalog.
func Find(secs []Section, addr uint64) (*Section, bool) {
	i := sort.Search(len(secs), func(i int) bool { return secs[i].End > addr })
	if i < len(secs) && secs[i].Start <= addr {
		return &secs[i], true
	}
	// empty sections and closing addresses
	for j := range secs {
		if secs[j].Start == addr && secs[j].End == addr {
			return &secs[j], true
		}
	}
	for j := range secs {
		if secs[j].End == addr {
			return &secs[j], true
		}
	}
	return nil, false
}

// ReadUint reads a size-byte unsigned value (4 or 8) from b.
func ReadUint(order binary.ByteOrder, b []byte, size int) (uint64, bool) {
	if len(b) < size {
		return 0, false
	}
	switch size {
	case 4:
		return uint64(order.Uint32(b)), true
	case 8:
		return order.Uint64(b), true
	}
	return 0, false
}
