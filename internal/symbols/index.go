// Package symbols builds the address-indexed symbol table of an image from
// native symbols, PDB publics, the entry point and import metadata.
package symbols

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"bite/internal/config"
	"bite/internal/demangle"
	"bite/internal/image"
	"bite/internal/logging"
	"bite/internal/tokens"
)

var ErrMalformedPDB = errors.New("malformed pdb")

// PDBError reports a PDB file that exists but could not be parsed.
type PDBError struct {
	Path string
	Err  error
}

func (e *PDBError) Error() string {
	return fmt.Sprintf("pdb %s: %v", e.Path, e.Err)
}

func (e *PDBError) Unwrap() []error {
	return []error{ErrMalformedPDB, e.Err}
}

// Entry is one address of the index.
type Entry struct {
	Addr   uint64
	Func   *Function
	Source Source
}

// Index is an address-sorted symbol table with unique addresses. It is built
// by a single goroutine and read-only afterwards.
type Index struct {
	entries  []Entry
	namedLen int

	demangler *demangle.Demangler
	cfg       *config.Config
	logger    *log.Logger
}

// NewIndex returns an empty index. A nil logger discards output.
func NewIndex(d *demangle.Demangler, cfg *config.Config, logger *log.Logger) *Index {
	if cfg == nil {
		cfg = config.Default()
	}
	if d == nil {
		d = demangle.New(cfg.Colors, cfg.DemangleCacheSize)
	}
	return &Index{
		demangler: d,
		cfg:       cfg,
		logger:    logging.OrDiscard(logger),
	}
}

// Insert appends a function. The index is unsorted until Sort is called.
func (ix *Index) Insert(addr uint64, f *Function) {
	ix.insert(addr, f, SourceNative)
}

func (ix *Index) insert(addr uint64, f *Function, src Source) {
	ix.entries = append(ix.entries, Entry{Addr: addr, Func: f, Source: src})
}

// insertName demangles raw and appends it.
func (ix *Index) insertName(addr uint64, raw, module string, src Source) {
	ix.insert(addr, NewFunction(ix.demangler.Demangle(raw), raw, module), src)
}

// Sort orders entries by address and keeps one entry per address. Named
// functions beat intrinsic ones, then lower sources win, then the entry
// inserted first.
func (ix *Index) Sort() {
	rank := func(e Entry) int {
		r := int(e.Source)
		if isIntrinsic(e.Func.raw) {
			r += 1 << 8
		}
		return r
	}
	sort.SliceStable(ix.entries, func(i, j int) bool {
		a, b := ix.entries[i], ix.entries[j]
		if a.Addr != b.Addr {
			return a.Addr < b.Addr
		}
		return rank(a) < rank(b)
	})

	out := ix.entries[:0]
	for i, e := range ix.entries {
		if i > 0 && e.Addr == out[len(out)-1].Addr {
			continue
		}
		out = append(out, e)
	}
	clear(ix.entries[len(out):])
	ix.entries = out
}

// ParseDebug collects native symbols, PDB publics and the entry point.
// A missing PDB is ignored. A PDB that exists but fails to parse is logged
// and skipped, or returned as a *PDBError when StrictPDB is set.
func (ix *Index) ParseDebug(img *image.Image) error {
	for _, s := range img.Symbols {
		ix.insertName(s.Addr, s.Name, "", SourceNative)
	}

	if err := ix.parsePDB(img); err != nil {
		return err
	}

	if img.Entry != 0 {
		ix.insert(img.Entry, NewFunction(tokens.Simple("entry", ix.cfg.Colors.Item), "entry", ""), SourceEntry)
	}

	ix.Sort()
	ix.logger.Info("found symbols", "count", len(ix.entries))
	return nil
}

// ParseImports resolves imported functions from the raw file bytes and merges
// them into the index. Mach-O imports are not resolved.
func (ix *Index) ParseImports(raw []byte, img *image.Image) error {
	before := len(ix.entries)

	var err error
	switch img.Format {
	case image.FormatPE:
		err = ix.parsePEImports(raw, img)
	case image.FormatELF:
		err = ix.parseELFImports(raw, img)
	case image.FormatMachO:
		ix.logger.Debug("mach-o imports are not resolved")
	}
	if err != nil {
		return fmt.Errorf("imports: %w", err)
	}

	ix.Sort()
	ix.logger.Debug("resolved imports", "count", len(ix.entries)-before)
	return nil
}

// Label marks intrinsic functions and counts the named ones.
func (ix *Index) Label() {
	ix.namedLen = 0
	for _, e := range ix.entries {
		e.Func.intrinsic = isIntrinsic(e.Func.raw)
		if !e.Func.intrinsic {
			ix.namedLen++
		}
	}
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

// NamedLen is the number of non-intrinsic functions counted by Label.
func (ix *Index) NamedLen() int {
	return ix.namedLen
}

func (ix *Index) IsEmpty() bool {
	return len(ix.entries) == 0
}

// Entries returns the sorted entries. Callers must not modify the slice.
func (ix *Index) Entries() []Entry {
	return ix.entries
}

// Functions returns every function in address order.
func (ix *Index) Functions() []*Function {
	fns := make([]*Function, len(ix.entries))
	for i, e := range ix.entries {
		fns[i] = e.Func
	}
	return fns
}

// GetByAddr finds the function at exactly addr.
func (ix *Index) GetByAddr(addr uint64) (*Function, bool) {
	i := sort.Search(len(ix.entries), func(i int) bool { return ix.entries[i].Addr >= addr })
	if i < len(ix.entries) && ix.entries[i].Addr == addr {
		return ix.entries[i].Func, true
	}
	return nil, false
}

// GetByName finds the first function whose demangled name equals name.
func (ix *Index) GetByName(name string) (uint64, *Function, bool) {
	for _, e := range ix.entries {
		if e.Func.text == name {
			return e.Addr, e.Func, true
		}
	}
	return 0, nil, false
}

// NameAt returns the demangled name at addr.
func (ix *Index) NameAt(addr uint64) (string, bool) {
	f, ok := ix.GetByAddr(addr)
	if !ok {
		return "", false
	}
	return f.text, true
}
