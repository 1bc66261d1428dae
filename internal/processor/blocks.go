package processor

import (
	"bytes"

	"bite/internal/image"
	"bite/internal/records"
	"bite/internal/symbols"
	"bite/internal/tokens"
)

// BlocksAt classifies the bytes at a boundary address. Addresses outside
// every section yield no blocks; unloaded and debug sections only yield
// their markers.
func (p *Processor) BlocksAt(addr uint64) []Block {
	sec, ok := image.Find(p.img.Sections, addr)
	if !ok {
		return nil
	}

	blocks := p.markers(addr)

	if sec.Kind == image.KindUnloaded || sec.Kind == image.KindDebug || addr >= sec.End || sec.Empty() {
		return blocks
	}

	switch sec.Kind {
	case image.KindCode:
		return p.code(addr, sec, blocks)
	case image.KindPtr32:
		return p.pointer(addr, sec, 4, blocks)
	case image.KindPtr64:
		return p.pointer(addr, sec, 8, blocks)
	case image.KindGot32:
		return p.got(addr, sec, 4, blocks)
	case image.KindGot64:
		return p.got(addr, sec, 8, blocks)
	case image.KindCString:
		b := sec.BytesByAddr(addr, -1)
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		return append(blocks, Block{Addr: addr, Content: CString{Bytes: b}})
	}

	if l, ok := records.ForKind(sec.Kind); ok {
		b := sec.BytesByAddr(addr, l.Size())
		if fields, ok := l.Decode(addr, b, p.img.ByteOrder); ok {
			return append(blocks, Block{Addr: addr, Content: Struct{Ident: l.Ident, Fields: fields}})
		}
		return append(blocks, Block{Addr: addr, Content: Bytes{Bytes: b}})
	}

	b := sec.BytesByAddr(addr, p.cfg.BytesBlockSize)
	return append(blocks, Block{Addr: addr, Content: Bytes{Bytes: b}})
}

// markers emits section transitions at addr. A section that ends here is
// closed before the next one opens; an empty section that opens here is
// closed immediately.
func (p *Processor) markers(addr uint64) []Block {
	var starting, ending *image.Section
	secs := p.img.Sections
	for i := range secs {
		s := &secs[i]
		if s.Kind == image.KindUnloaded {
			continue
		}
		if starting == nil && s.Start == addr {
			starting = s
		}
		if ending == nil && s.End == addr && s.Start != addr {
			ending = s
		}
	}

	var blocks []Block
	if ending != nil {
		blocks = append(blocks, Block{Addr: addr, Content: SectionEnd{Section: ending}})
	}
	if starting != nil {
		blocks = append(blocks, Block{Addr: addr, Content: SectionStart{Section: starting}})
		if starting.Start == starting.End {
			blocks = append(blocks, Block{Addr: addr, Content: SectionEnd{Section: starting}})
		}
	}
	return blocks
}

// symbolAt looks up a function at addr. Section starts are never labeled
// since the section marker already names them.
func (p *Processor) symbolAt(addr uint64, sec *image.Section) (*symbols.Function, bool) {
	if addr == sec.Start {
		return nil, false
	}
	return p.index.GetByAddr(addr)
}

func (p *Processor) label(addr uint64, sec *image.Section, blocks []Block) []Block {
	if f, ok := p.symbolAt(addr, sec); ok {
		blocks = append(blocks, Block{Addr: addr, Content: Label{Func: f}})
	}
	return blocks
}

func (p *Processor) hexWidth() int {
	return max(p.dec.MaxWidth(), 1)*3 + 1
}

func (p *Processor) code(addr uint64, sec *image.Section, blocks []Block) []Block {
	if in, ok := p.dec.InstructionAt(addr); ok {
		blocks = p.label(addr, sec, blocks)
		return append(blocks, Block{Addr: addr, Content: Instruction{
			Tokens: p.dec.Tokens(in, p.index),
			Bytes:  hexBytes(sec.BytesByAddr(addr, in.Len), p.hexWidth(), true),
		}})
	}

	if e, ok := p.dec.ErrorAt(addr); ok {
		blocks = p.label(addr, sec, blocks)
		return append(blocks, Block{Addr: addr, Content: DecodeError{
			Kind:  e.Kind,
			Bytes: hexBytes(sec.BytesByAddr(addr, e.Size), p.hexWidth(), true),
		}})
	}

	end := p.rawEnd(sec, addr)
	blocks = p.label(addr, sec, blocks)
	return append(blocks, Block{Addr: addr, Content: Bytes{Bytes: sec.BytesByAddr(addr, int(end-addr))}})
}

func (p *Processor) pointer(addr uint64, sec *image.Section, size int, blocks []Block) []Block {
	b := sec.BytesByAddr(addr, size)
	v, ok := image.ReadUint(p.img.ByteOrder, b, size)
	if !ok {
		return append(blocks, Block{Addr: addr, Content: Bytes{Bytes: b}})
	}

	ptr := Pointer{Value: v}
	if f, ok := p.symbolAt(v, sec); ok {
		ptr.Func = f
	}
	return append(blocks, Block{Addr: addr, Content: ptr})
}

func (p *Processor) got(addr uint64, sec *image.Section, size int, blocks []Block) []Block {
	f, ok := p.symbolAt(addr, sec)
	if !ok {
		f = symbols.NewFunction(tokens.NewStream(), "", "")
	}
	return append(blocks, Block{Addr: addr, Content: Got{Size: size, Func: f}})
}
