package demangle

import (
	"strings"
	"testing"

	"bite/internal/tokens"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantScheme Scheme
		wantPrefix string
	}{
		{"itanium function", "_ZN3foo3barEv", SchemeItanium, "foo::bar()"},
		{"itanium darwin underscore", "__ZN3foo3barEv", SchemeItanium, "foo::bar()"},
		{"itanium with plt suffix", "_ZN3foo3barEv$plt", SchemeItanium, "foo::bar()"},
		{"legacy rust", "_ZN4core3fmt5write17h0123456789abcdefE", SchemeRustLegacy, "core::fmt::write"},
		{"rust v0", "_RNvCs15kBYyAo9fc_7mycrate7example", SchemeRustV0, ""},
		{"msvc", "?foo@@YAXXZ", SchemeMSVC, "foo"},
		{"plain c", "main", SchemeNone, "main"},
		{"plain with got suffix", "printf$got", SchemeNone, "printf"},
		{"not mangled underscore", "_start", SchemeNone, "_start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, scheme := Parse(tt.in)
			if scheme != tt.wantScheme {
				t.Fatalf("Parse(%q) scheme = %v, want %v (text %q)", tt.in, scheme, tt.wantScheme, got)
			}
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("Parse(%q) = %q, want prefix %q", tt.in, got, tt.wantPrefix)
			}
		})
	}
}

func TestStripSuffix(t *testing.T) {
	tests := map[string]string{
		"memcpy$got":    "memcpy",
		"memcpy$plt":    "memcpy",
		"memcpy$pltgot": "memcpy",
		"memcpy":        "memcpy",
		// only one suffix is removed
		"memcpy$got$plt": "memcpy$got",
	}
	for in, want := range tests {
		if got := StripSuffix(in); got != want {
			t.Errorf("StripSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLegacyRust(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"_ZN4core3fmt5write17h0123456789abcdefE", true},
		{"_ZN4core3fmt5write17h0123456789abcdeE", false},
		{"_ZN4core3fmt5write17hXXXXXXXXXXXXXXXXE", false},
		{"_ZN3foo3barEv", false},
		{"main", false},
	}
	for _, tt := range tests {
		if got := isLegacyRust(tt.in); got != tt.want {
			t.Errorf("isLegacyRust(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDemangler(t *testing.T) {
	p := tokens.DefaultPalette()
	d := New(p, 16)

	t.Run("itanium is not raw", func(t *testing.T) {
		s := d.Demangle("_ZN3foo3barEv")
		if s.String() != "foo::bar()" {
			t.Fatalf("Demangle() = %q", s.String())
		}
		if s.Len() < 2 {
			t.Errorf("expected a colorized multi-token stream, got %d tokens", s.Len())
		}
	})

	t.Run("unknown stays raw", func(t *testing.T) {
		s := d.Demangle("hello_world")
		toks := s.Tokens()
		if len(toks) != 1 || toks[0].Text != "hello_world" {
			t.Fatalf("Demangle() = %#v, want one raw token", toks)
		}
		if toks[0].Color != p.Item {
			t.Errorf("raw token color = %q, want %q", toks[0].Color, p.Item)
		}
	})

	t.Run("cached", func(t *testing.T) {
		a := d.Demangle("_ZN3foo3barEv")
		b := d.Demangle("_ZN3foo3barEv")
		if a != b {
			t.Errorf("second lookup did not hit the cache")
		}
	})
}
