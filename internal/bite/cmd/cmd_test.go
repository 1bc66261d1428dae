package cmd

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"bite/internal/config"
	"bite/internal/image"
	"bite/internal/processor"
	"bite/internal/symbols"
	"bite/internal/tokens"
)

func testProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	img := &image.Image{
		Path:      "/tmp/sample",
		Format:    image.FormatELF,
		Arch:      image.ArchX8664,
		ByteOrder: binary.LittleEndian,
		Entry:     0x1000,
		Raw:       make([]byte, 2048),
		Sections: []image.Section{
			{Name: ".rodata", Kind: image.KindCString, Start: 0x2000, End: 0x2006, Bytes: []byte("ab\x00cd\x00")},
			{Name: ".bss", Kind: image.KindUnknown, Start: 0x3000, End: 0x3400},
		},
	}
	cfg := config.Default()
	ix := symbols.NewIndex(nil, cfg, nil)
	if err := ix.ParseDebug(img); err != nil {
		t.Fatal(err)
	}
	ix.Label()
	return processor.New(img, ix, nil, cfg, nil)
}

func TestSummary(t *testing.T) {
	md := summary(testProcessor(t))
	for _, want := range []string{
		"# sample",
		"**Format:** ELF",
		"**Symbols:** 1 (1 named, 0 imported)",
		"| `.rodata` | CString | `0x2000` | `0x2006` | 6 B |",
		"| `.bss` | Unknown | `0x3000` | `0x3400` | 1.0 kB |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("summary missing %q:\n%s", want, md)
		}
	}
}

func TestListSection(t *testing.T) {
	p := testProcessor(t)

	var buf bytes.Buffer
	if err := listSection(&buf, p, ".rodata", 0, false, tokens.DefaultPalette()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[1] != `0000002000  "ab"` {
		t.Errorf("line 1 = %q", lines[1])
	}

	buf.Reset()
	if err := listSection(&buf, p, ".rodata", 2, false, tokens.DefaultPalette()); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("limit 2 printed %d lines", n)
	}

	if err := listSection(&buf, p, ".nope", 0, false, tokens.DefaultPalette()); err == nil {
		t.Error("expected an error for a missing section")
	}
}

func TestSchema(t *testing.T) {
	var buf bytes.Buffer
	schemaCmd.SetOut(&buf)
	if err := schemaCmd.RunE(schemaCmd, nil); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"bytesBlockSize", "strictPdb", "colors"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
