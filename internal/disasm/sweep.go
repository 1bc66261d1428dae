package disasm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sync/errgroup"

	"bite/internal/image"
	"bite/internal/logging"
	"bite/internal/tokens"
	"bite/internal/ui/colorize"
)

// maxX86Len is the architectural limit on an x86 instruction's length.
const maxX86Len = 15

// Sweep is a linear-sweep Decoder over every code section of an image.
type Sweep struct {
	arch     image.Arch
	palette  tokens.Palette
	insts    map[uint64]Instruction
	errs     map[uint64]DecodeError
	maxWidth int
}

type sweepResult struct {
	insts    map[uint64]Instruction
	errs     map[uint64]DecodeError
	maxWidth int
}

// NewSweep decodes all code sections, one goroutine per section. workers
// limits concurrency when positive. Sections of an unsupported architecture
// are left undecoded and show up as raw bytes.
func NewSweep(arch image.Arch, sections []image.Section, p tokens.Palette, workers int, logger *log.Logger) *Sweep {
	logger = logging.OrDiscard(logger)
	s := &Sweep{
		arch:    arch,
		palette: p,
		insts:   make(map[uint64]Instruction),
		errs:    make(map[uint64]DecodeError),
	}

	if arch == image.ArchUnknown {
		logger.Warn("no decoder for architecture, code will be shown as bytes")
		return s
	}

	var code []*image.Section
	for i := range sections {
		if sections[i].Kind == image.KindCode && !sections[i].Empty() {
			code = append(code, &sections[i])
		}
	}

	results := make([]sweepResult, len(code))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, sec := range code {
		g.Go(func() error {
			results[i] = sweepSection(arch, sec)
			logger.Debug("decoded section", "section", sec.Name,
				"instructions", len(results[i].insts), "errors", len(results[i].errs))
			return nil
		})
	}
	// workers only write their own slot and never return an error
	_ = g.Wait()

	for _, r := range results {
		for a, in := range r.insts {
			s.insts[a] = in
		}
		for a, e := range r.errs {
			s.errs[a] = e
		}
		s.maxWidth = max(s.maxWidth, r.maxWidth)
	}
	return s
}

func sweepSection(arch image.Arch, sec *image.Section) sweepResult {
	r := sweepResult{
		insts: make(map[uint64]Instruction),
		errs:  make(map[uint64]DecodeError),
	}
	b := sec.Bytes
	for off := 0; off < len(b); {
		addr := sec.Start + uint64(off)
		in, derr := decodeOne(arch, addr, b[off:])
		if derr != nil {
			if derr.Size <= 0 {
				derr.Size = 1
			}
			derr.Size = min(derr.Size, len(b)-off)
			r.errs[addr] = *derr
			off += derr.Size
			continue
		}
		r.insts[addr] = in
		r.maxWidth = max(r.maxWidth, in.Len)
		off += in.Len
	}
	return r
}

func decodeOne(arch image.Arch, addr uint64, b []byte) (Instruction, *DecodeError) {
	switch arch {
	case image.ArchX86, image.ArchX8664:
		mode := 64
		if arch == image.ArchX86 {
			mode = 32
		}
		inst, err := x86asm.Decode(b, mode)
		if err != nil || inst.Len == 0 || inst.Op == 0 {
			kind := ErrUnrecognized
			switch {
			case errors.Is(err, x86asm.ErrTruncated):
				kind = ErrTruncated
			case errors.Is(err, x86asm.ErrInvalidMode):
				kind = ErrInvalidMode
			case err == nil && len(b) < maxX86Len:
				// the decoder stops without an error when the input runs out
				// mid-instruction
				kind = ErrTruncated
			}
			return Instruction{}, &DecodeError{Kind: kind, Size: 1}
		}
		return Instruction{Addr: addr, Len: inst.Len, Op: strings.ToLower(inst.Op.String()), inst: inst}, nil

	case image.ArchARM64:
		if len(b) < 4 {
			return Instruction{}, &DecodeError{Kind: ErrTruncated, Size: len(b)}
		}
		inst, err := arm64asm.Decode(b[:4])
		if err != nil {
			return Instruction{}, &DecodeError{Kind: ErrUnrecognized, Size: 4}
		}
		return Instruction{Addr: addr, Len: 4, Op: strings.ToLower(inst.Op.String()), inst: inst}, nil
	}
	return Instruction{}, &DecodeError{Kind: ErrInvalidMode, Size: 1}
}

func (s *Sweep) InstructionAt(addr uint64) (Instruction, bool) {
	in, ok := s.insts[addr]
	return in, ok
}

func (s *Sweep) ErrorAt(addr uint64) (DecodeError, bool) {
	e, ok := s.errs[addr]
	return e, ok
}

func (s *Sweep) MaxWidth() int {
	return s.maxWidth
}

// Len is the number of decoded instructions.
func (s *Sweep) Len() int {
	return len(s.insts)
}

// Text formats an instruction, naming branch and call targets through names.
func (s *Sweep) Text(in Instruction, names SymbolResolver) string {
	switch inst := in.inst.(type) {
	case x86asm.Inst:
		symname := func(addr uint64) (string, uint64) {
			if names == nil {
				return "", 0
			}
			if name, ok := names.NameAt(addr); ok && name != "" {
				return name, addr
			}
			return "", 0
		}
		return x86asm.IntelSyntax(inst, in.Addr, symname)

	case arm64asm.Inst:
		text := arm64asm.GNUSyntax(inst)
		for _, a := range inst.Args {
			if a == nil {
				break
			}
			rel, ok := a.(arm64asm.PCRel)
			if !ok || names == nil {
				continue
			}
			target := uint64(int64(in.Addr) + int64(rel))
			if name, ok := names.NameAt(target); ok && name != "" {
				text += fmt.Sprintf(" <%s>", name)
			}
		}
		return text
	}
	return in.Op
}

func (s *Sweep) Tokens(in Instruction, names SymbolResolver) []tokens.Token {
	return colorize.Instruction(s.Text(in, names), s.arch == image.ArchARM64, s.palette)
}
