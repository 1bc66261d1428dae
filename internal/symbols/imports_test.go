package symbols

import (
	"encoding/binary"
	"testing"
)

// flatRVA maps RVAs directly onto offsets of a byte slice.
type flatRVA []byte

func (f flatRVA) ReadRVA(rva uint32, n int) ([]byte, bool) {
	if uint64(rva)+uint64(n) > uint64(len(f)) {
		return nil, false
	}
	return f[rva : int(rva)+n], true
}

type peImport struct {
	addr   uint64
	name   string
	module string
}

// buildImports lays out one descriptor at 0x2000 importing two names and
// one ordinal, plus the terminating descriptor.
func buildImports(originalFirstThunk, firstThunk uint32, is64 bool) flatRVA {
	b := make(flatRVA, 0x4000)
	le := binary.LittleEndian

	le.PutUint32(b[0x2000:], originalFirstThunk)
	le.PutUint32(b[0x2000+12:], 0x3400)
	le.PutUint32(b[0x2000+16:], firstThunk)
	copy(b[0x3400:], "KERNEL32.DLL\x00")

	// hint/name entries
	le.PutUint16(b[0x3200:], 0x11)
	copy(b[0x3202:], "ExitProcess\x00")
	le.PutUint16(b[0x3220:], 0x22)
	copy(b[0x3222:], "GetLastError\x00")

	size := uint32(4)
	ordinal := uint64(1) << 31
	if is64 {
		size = 8
		ordinal = 1 << 63
	}
	put := func(at uint32, v uint64) {
		if is64 {
			le.PutUint64(b[at:], v)
		} else {
			le.PutUint32(b[at:], uint32(v))
		}
	}
	for _, thunk := range []uint32{originalFirstThunk, firstThunk} {
		if thunk == 0 {
			continue
		}
		put(thunk, 0x3200)
		put(thunk+size, ordinal|5)
		put(thunk+2*size, 0x3220)
	}
	return b
}

func TestWalkPEImports(t *testing.T) {
	const base = 0x140000000
	tests := []struct {
		name               string
		originalFirstThunk uint32
		firstThunk         uint32
		is64               bool
		want               []peImport
	}{
		{
			name:               "bound first thunk",
			originalFirstThunk: 0x3100,
			firstThunk:         0x3050,
			is64:               true,
			want: []peImport{
				{0x140003050, "ExitProcess", "KERNEL32"},
				{0x140003060, "GetLastError", "KERNEL32"},
			},
		},
		{
			name:               "original first thunk only",
			originalFirstThunk: 0x3100,
			is64:               true,
			want: []peImport{
				{base + 0x11, "ExitProcess", "KERNEL32"},
				{base + 0x22, "GetLastError", "KERNEL32"},
			},
		},
		{
			name:               "32-bit slots",
			originalFirstThunk: 0x3100,
			firstThunk:         0x3050,
			want: []peImport{
				{0x140003050, "ExitProcess", "KERNEL32"},
				{0x140003058, "GetLastError", "KERNEL32"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildImports(tt.originalFirstThunk, tt.firstThunk, tt.is64)
			var got []peImport
			walkPEImports(r, 0x2000, tt.is64, base, func(addr uint64, name, module string) {
				got = append(got, peImport{addr, name, module})
			})
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("import %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWalkPEImportsSkipsUnreadable(t *testing.T) {
	b := buildImports(0, 0x3050, true)
	// point the first slot outside the image
	binary.LittleEndian.PutUint64(b[0x3050:], 0xffff0)

	var got []string
	walkPEImports(b, 0x2000, true, 0, func(_ uint64, name, _ string) {
		got = append(got, name)
	})
	if len(got) != 1 || got[0] != "GetLastError" {
		t.Fatalf("got %v, want only GetLastError", got)
	}
}

func TestTrimDLL(t *testing.T) {
	tests := map[string]string{
		"KERNEL32.DLL": "KERNEL32",
		"user32.dll":   "user32",
		"api-ms-win":   "api-ms-win",
		".dll":         "",
	}
	for in, want := range tests {
		if got := trimDLL(in); got != want {
			t.Errorf("trimDLL(%q) = %q, want %q", in, got, want)
		}
	}
}
