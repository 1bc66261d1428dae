// Package demangle recovers readable names from mangled symbols.
//
// Schemes are tried in a fixed order: legacy Rust, Itanium C++, Rust v0 and
// MSVC. The first scheme that accepts the name wins; when none does, the raw
// name is returned as a single token.
package demangle

import (
	"strings"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
	"github.com/jtang613/gopdb/pkg/pdb"

	"bite/internal/tokens"
	"bite/internal/ui/colorize"
)

// Scheme identifies the mangling scheme that produced a name.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeRustLegacy
	SchemeItanium
	SchemeRustV0
	SchemeMSVC
)

func (s Scheme) String() string {
	switch s {
	case SchemeRustLegacy:
		return "rust-legacy"
	case SchemeItanium:
		return "itanium"
	case SchemeRustV0:
		return "rust-v0"
	case SchemeMSVC:
		return "msvc"
	default:
		return "none"
	}
}

// suffixes added to PLT/GOT stubs by some toolchains.
var suffixes = []string{"$got", "$plt", "$pltgot"}

type stage struct {
	scheme Scheme
	parse  func(string) (string, bool)
}

var cascade = []stage{
	{SchemeRustLegacy, rustLegacy},
	{SchemeItanium, itanium},
	{SchemeRustV0, rustV0},
	{SchemeMSVC, msvc},
}

// StripSuffix removes at most one PLT/GOT decoration.
func StripSuffix(name string) string {
	for _, s := range suffixes {
		if trimmed, ok := strings.CutSuffix(name, s); ok {
			return trimmed
		}
	}
	return name
}

// Parse runs the cascade and returns the demangled text and the scheme that
// accepted it. Unrecognized names come back unchanged with SchemeNone.
func Parse(name string) (string, Scheme) {
	name = StripSuffix(name)
	for _, st := range cascade {
		if out, ok := st.parse(name); ok {
			return out, st.scheme
		}
	}
	return name, SchemeNone
}

// isLegacyRust matches _ZN...17h<16 hex digits>E.
func isLegacyRust(name string) bool {
	body, ok := strings.CutPrefix(name, "_ZN")
	if !ok {
		body, ok = strings.CutPrefix(name, "__ZN")
	}
	if !ok || !strings.HasSuffix(body, "E") || len(body) < 20 {
		return false
	}
	hash := body[len(body)-20 : len(body)-1]
	if !strings.HasPrefix(hash, "17h") {
		return false
	}
	for _, c := range hash[3:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func rustLegacy(name string) (string, bool) {
	if !isLegacyRust(name) {
		return "", false
	}
	if strings.HasPrefix(name, "__ZN") {
		name = name[1:]
	}
	out, err := demangle.ToString(name, demangle.NoClones)
	if err != nil {
		return "", false
	}
	return out, true
}

func itanium(name string) (string, bool) {
	// Darwin prefixes C and C++ symbols with an extra underscore.
	if strings.HasPrefix(name, "__Z") {
		name = name[1:]
	}
	if !strings.HasPrefix(name, "_Z") {
		return "", false
	}
	out, err := demangle.ToString(name, demangle.NoRust)
	if err != nil {
		return "", false
	}
	return out, true
}

func rustV0(name string) (string, bool) {
	if !strings.HasPrefix(name, "_R") {
		return "", false
	}
	out, err := demangle.ToString(name, demangle.NoClones)
	if err != nil {
		return "", false
	}
	return out, true
}

func msvc(name string) (string, bool) {
	if !strings.HasPrefix(name, "?") {
		return "", false
	}
	res := pdb.DemangleFull(name)
	if res.Name == "" || res.Name == name {
		return "", false
	}
	return res.Name, true
}

// Demangler colorizes demangled names and caches the results.
type Demangler struct {
	palette tokens.Palette
	cache   *lru.Cache[string, *tokens.Stream]
}

// New returns a Demangler using palette p and an LRU cache of size entries.
func New(p tokens.Palette, size int) *Demangler {
	if size <= 0 {
		size = 1
	}
	cache, _ := lru.New[string, *tokens.Stream](size)
	return &Demangler{palette: p, cache: cache}
}

// Demangle returns the colorized name. It never fails; the returned stream
// is shared and must not be modified.
func (d *Demangler) Demangle(name string) *tokens.Stream {
	if s, ok := d.cache.Get(name); ok {
		return s
	}

	text, scheme := Parse(name)

	var s *tokens.Stream
	switch scheme {
	case SchemeNone:
		s = tokens.Simple(text, d.palette.Item)
	case SchemeRustLegacy, SchemeRustV0:
		s = tokens.NewStream()
		s.Extend(colorize.Name(text, colorize.LangRust, d.palette))
	default:
		s = tokens.NewStream()
		s.Extend(colorize.Name(text, colorize.LangCpp, d.palette))
	}

	d.cache.Add(name, s)
	return s
}
