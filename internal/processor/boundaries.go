package processor

import (
	"slices"

	"golang.org/x/sync/errgroup"

	"bite/internal/image"
	"bite/internal/records"
)

// ComputeBoundaries returns the sorted, deduplicated block start addresses
// of secs. Sections are processed concurrently.
func (p *Processor) ComputeBoundaries(secs []image.Section) []uint64 {
	results := make([][]uint64, len(secs))

	var g errgroup.Group
	if p.cfg.MaxWorkers > 0 {
		g.SetLimit(p.cfg.MaxWorkers)
	}
	for i := range secs {
		g.Go(func() error {
			results[i] = p.sectionBoundaries(&secs[i])
			p.logger.Debug("computed boundaries", "section", secs[i].Name, "count", len(results[i]))
			return nil
		})
	}
	// workers only write their own slot and never return an error
	_ = g.Wait()

	var all []uint64
	for _, r := range results {
		all = append(all, r...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

func (p *Processor) sectionBoundaries(sec *image.Section) []uint64 {
	// nothing to look at before the loader fills these in
	if sec.Kind == image.KindUnloaded || sec.Kind == image.KindDebug || sec.Empty() {
		return []uint64{sec.Start, sec.End}
	}

	out := []uint64{sec.Start}
	switch sec.Kind {
	case image.KindCode:
		out = p.codeBoundaries(sec, out)
	case image.KindCString:
		out = cstringBoundaries(sec, out)
	case image.KindPtr32, image.KindGot32:
		out = every(sec, 4, out)
	case image.KindPtr64, image.KindGot64:
		out = every(sec, 8, out)
	default:
		if l, ok := records.ForKind(sec.Kind); ok {
			out = every(sec, uint64(l.Size()), out)
		} else {
			out = every(sec, uint64(p.cfg.BytesBlockSize), out)
		}
	}
	return append(out, sec.End)
}

func every(sec *image.Section, step uint64, out []uint64) []uint64 {
	for addr := sec.Start; addr < sec.End; addr += step {
		out = append(out, addr)
	}
	return out
}

func (p *Processor) codeBoundaries(sec *image.Section, out []uint64) []uint64 {
	addr := sec.Start
	for addr < sec.End {
		if _, ok := p.index.GetByAddr(addr); ok {
			out = append(out, addr)
		}

		if in, ok := p.dec.InstructionAt(addr); ok {
			out = append(out, addr)
			addr += uint64(max(in.Len, 1))
			continue
		}

		if e, ok := p.dec.ErrorAt(addr); ok {
			out = append(out, addr)
			addr += uint64(max(e.Size, 1))
			continue
		}

		out = append(out, addr)
		addr = p.rawEnd(sec, addr)
	}
	return out
}

// rawEnd returns the end of the undecoded run starting at addr: the next
// instruction, decode error or other labeled address.
func (p *Processor) rawEnd(sec *image.Section, addr uint64) uint64 {
	end := addr + 1
	for ; end < sec.End; end++ {
		if _, ok := p.dec.InstructionAt(end); ok {
			break
		}
		if _, ok := p.dec.ErrorAt(end); ok {
			break
		}
		if _, ok := p.index.GetByAddr(end); ok {
			break
		}
	}
	return end
}

// cstringBoundaries marks the start of every string. Runs of NULs do not
// produce empty strings.
func cstringBoundaries(sec *image.Section, out []uint64) []uint64 {
	start := 0
	for i, c := range sec.Bytes {
		if c != 0 {
			continue
		}
		if i != start {
			out = append(out, sec.Start+uint64(start))
		}
		start = i + 1
	}
	if start < len(sec.Bytes) {
		out = append(out, sec.Start+uint64(start))
	}
	return out
}
