package processor

import (
	"fmt"
	"strconv"
	"strings"

	"bite/internal/disasm"
	"bite/internal/image"
	"bite/internal/records"
	"bite/internal/symbols"
	"bite/internal/tokens"
)

// bytesPerRow is the number of raw bytes rendered per row.
const bytesPerRow = 32

// Content is the payload of a Block. The concrete types are SectionStart,
// SectionEnd, Label, Instruction, DecodeError, CString, Got, Pointer, Struct
// and Bytes.
type Content interface {
	// Rows is the number of rendered rows.
	Rows() int
	tokenize(addr uint64, s *tokens.Stream, p tokens.Palette)
}

// Block is one renderable unit of a section.
type Block struct {
	Addr    uint64
	Content Content
}

// Len is the number of rows the block occupies when tokenized.
func (b Block) Len() int {
	return b.Content.Rows()
}

// Tokenize appends the block's tokens to s.
func (b Block) Tokenize(s *tokens.Stream, p tokens.Palette) {
	b.Content.tokenize(b.Addr, s, p)
}

type (
	SectionStart struct{ Section *image.Section }
	SectionEnd   struct{ Section *image.Section }
	Label        struct{ Func *symbols.Function }

	Instruction struct {
		Tokens []tokens.Token
		Bytes  string
	}

	DecodeError struct {
		Kind  disasm.ErrorKind
		Bytes string
	}

	CString struct{ Bytes []byte }

	// Got is a GOT slot; Func is anonymous when the slot is unresolved.
	Got struct {
		Size int
		Func *symbols.Function
	}

	Pointer struct {
		Value uint64
		Func  *symbols.Function // nil when unresolved
	}

	Struct struct {
		Ident  string
		Fields []records.Field
	}

	Bytes struct{ Bytes []byte }
)

func (SectionStart) Rows() int { return 2 }
func (SectionEnd) Rows() int { return 2 }
func (Label) Rows() int { return 2 }
func (Instruction) Rows() int { return 1 }
func (DecodeError) Rows() int { return 1 }
func (c CString) Rows() int { return len(c.Bytes) + 1 }
func (Got) Rows() int { return 1 }
func (Pointer) Rows() int { return 1 }
func (c Struct) Rows() int { return 2 + len(c.Fields) }
func (c Bytes) Rows() int { return len(c.Bytes)/bytesPerRow + 1 }

func pushAddr(s *tokens.Stream, addr uint64, p tokens.Palette) {
	s.Push(fmt.Sprintf("%010X  ", addr), p.Address)
}

func pushName(s *tokens.Stream, f *symbols.Function, p tokens.Palette) {
	if m := f.Module(); m != "" {
		s.Push(m, p.Root)
		s.Push("!", p.Delimiter)
	}
	s.Extend(f.Name().Tokens())
}

func sectionMarker(s *tokens.Stream, verb string, sec *image.Section, ident string, p tokens.Palette) {
	s.Push(verb, tokens.White)
	s.Push(" "+sec.Name+" ", tokens.Blue)
	s.Push("{", tokens.Gray60)
	s.Push(ident, tokens.Magenta)
	s.Push("} ", tokens.Gray60)
	s.Push(fmt.Sprintf("%010X", sec.Start), p.Segment)
	s.Push("-", tokens.Gray60)
	s.Push(fmt.Sprintf("%010X", sec.End), p.Segment)
}

func (c SectionStart) tokenize(_ uint64, s *tokens.Stream, p tokens.Palette) {
	ident := c.Section.Ident
	if ident == "" || ident == "UNKNOWN" {
		ident = c.Section.Kind.String()
	}
	sectionMarker(s, "section started", c.Section, ident, p)
}

func (c SectionEnd) tokenize(_ uint64, s *tokens.Stream, p tokens.Palette) {
	sectionMarker(s, "section ended", c.Section, c.Section.Kind.String(), p)
}

func (c Label) tokenize(_ uint64, s *tokens.Stream, p tokens.Palette) {
	s.Push("\n<", p.Annotation)
	pushName(s, c.Func, p)
	s.Push(">", p.Annotation)
}

func (c Instruction) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	pushAddr(s, addr, p)
	s.Push(c.Bytes, p.Segment)
	s.Extend(c.Tokens)
}

func (c DecodeError) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	pushAddr(s, addr, p)
	s.Push(c.Bytes, p.Segment)
	s.Push("<", tokens.Gray40)
	s.Push(c.Kind.String(), p.Error)
	s.Push(">", tokens.Gray40)
}

func (c CString) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	pushAddr(s, addr, p)
	s.Push(strconv.Quote(strings.ToValidUTF8(string(c.Bytes), "�")), p.String)
}

func (c Got) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	pushAddr(s, addr, p)
	s.Push("<", p.Annotation)
	if c.Func == nil || c.Func.String() == "" {
		s.Push("unresolved", p.Error)
	} else {
		pushName(s, c.Func, p)
	}
	s.Push(">", p.Annotation)
}

func (c Pointer) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	pushAddr(s, addr, p)
	s.Push(fmt.Sprintf("%#x", c.Value), p.Segment)
	if c.Func != nil {
		s.Push(" <", p.Annotation)
		pushName(s, c.Func, p)
		s.Push(">", p.Annotation)
	}
}

// addr  struct Ident {
// addr      field: type = value
// addr  }
func (c Struct) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	first, last := addr, addr
	if len(c.Fields) > 0 {
		first, last = c.Fields[0].Addr, c.Fields[len(c.Fields)-1].Addr
	}
	pushAddr(s, first, p)
	s.Push("struct ", p.Keyword)
	s.Push(c.Ident, p.Type)
	s.Push(" {\n", p.Delimiter)
	for _, f := range c.Fields {
		pushAddr(s, f.Addr, p)
		s.Push("    ", p.Text)
		s.Push(f.Name, p.Field)
		s.Push(": ", p.Text)
		s.Push(f.Type, p.Type)
		s.Push(" = ", p.Delimiter)
		s.Push(f.Value, p.Constant)
		s.Push("\n", p.Text)
	}
	pushAddr(s, last, p)
	s.Push("}", p.Delimiter)
}

func (c Bytes) tokenize(addr uint64, s *tokens.Stream, p tokens.Palette) {
	if len(c.Bytes) == 0 {
		pushAddr(s, addr, p)
		return
	}
	for off := 0; off < len(c.Bytes); off += bytesPerRow {
		chunk := c.Bytes[off:min(off+bytesPerRow, len(c.Bytes))]
		pushAddr(s, addr+uint64(off), p)
		s.Push(hexBytes(chunk, 0, false), p.Segment)
		s.Push("\n", p.Text)
	}
	s.Pop()
}

// hexBytes renders b as space separated pairs. A positive width truncates
// longer output and, with pad, right-pads shorter output.
func hexBytes(b []byte, width int, pad bool) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	s := sb.String()
	if width <= 0 {
		return s
	}
	if len(s) > width {
		if width > 3 {
			return s[:width-3] + "..."
		}
		return s[:width]
	}
	if pad {
		s += strings.Repeat(" ", width-len(s))
	}
	return s
}
