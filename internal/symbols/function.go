package symbols

import (
	"strings"

	"bite/internal/tokens"
)

// Source records where an index entry came from. Lower values win when two
// entries share an address.
type Source int

const (
	SourceDebug Source = iota
	SourceNative
	SourceImport
	SourceEntry
)

func (s Source) String() string {
	switch s {
	case SourceDebug:
		return "pdb"
	case SourceNative:
		return "native"
	case SourceImport:
		return "import"
	case SourceEntry:
		return "entry"
	}
	return "unknown"
}

// intrinsicPrefixes mark compiler generated names.
var intrinsicPrefixes = []string{
	"GCC_except_table",
	"str.",
	".L",
	"anon.",
}

func isIntrinsic(raw string) bool {
	if raw == "" {
		return true
	}
	for _, p := range intrinsicPrefixes {
		if strings.HasPrefix(raw, p) {
			return true
		}
	}
	return false
}

// Function is a resolved symbol. It is immutable once the index is labeled.
type Function struct {
	name      *tokens.Stream
	text      string
	raw       string
	module    string
	intrinsic bool
}

// NewFunction wraps a demangled name. module is empty unless the symbol was
// imported from a named library.
func NewFunction(name *tokens.Stream, raw, module string) *Function {
	return &Function{
		name:   name,
		text:   name.String(),
		raw:    raw,
		module: module,
	}
}

// Name returns the colorized demangled name. Callers must not modify it.
func (f *Function) Name() *tokens.Stream {
	return f.name
}

// String returns the demangled name as plain text.
func (f *Function) String() string {
	return f.text
}

// Raw returns the symbol as it appeared in the binary.
func (f *Function) Raw() string {
	return f.raw
}

func (f *Function) Module() string {
	return f.module
}

// Intrinsic reports whether the function is an unnamed compiler artifact.
func (f *Function) Intrinsic() bool {
	return f.intrinsic
}
