// Package colorize turns plain text (demangled names, instruction text) into
// palette-colored tokens using chroma lexers, and renders token streams to ANSI.
package colorize

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/lipgloss/v2"

	"bite/internal/tokens"
)

// Lang selects the lexer used for symbol names.
type Lang int

const (
	LangCpp Lang = iota
	LangRust
)

// getNameLexer returns the lexer for a demangled name with fallbacks.
func getNameLexer(lang Lang) chroma.Lexer {
	candidates := []string{"c++", "cpp", "C++"}
	if lang == LangRust {
		candidates = []string{"rust", "rs"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer(arm bool) chroma.Lexer {
	candidates := []string{"nasm", "gas", "GAS"}
	if arm {
		candidates = []string{"armasm", "gas", "GAS", "Gas", "nasm"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// lex tokenizes a single line. The result always concatenates back to text;
// if the lexer rewrites the input in any way a single fallback token is used.
func lex(lexer chroma.Lexer, text string, fallback tokens.Color, color func(i int, tok chroma.Token) tokens.Color) []tokens.Token {
	if lexer == nil || text == "" {
		return []tokens.Token{{Text: text, Color: fallback}}
	}

	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return []tokens.Token{{Text: text, Color: fallback}}
	}

	var out []tokens.Token
	var b strings.Builder
	i := 0
	for tok := iterator(); tok != chroma.EOF; tok = iterator() {
		v := strings.ReplaceAll(tok.Value, "\n", "")
		if v == "" {
			continue
		}
		b.WriteString(v)
		tok.Value = v
		out = append(out, tokens.Token{Text: v, Color: color(i, tok)})
		i++
	}

	if b.String() != text {
		return []tokens.Token{{Text: text, Color: fallback}}
	}
	return out
}

func isBracket(s string) bool {
	return strings.Trim(s, "()<>[]{}") == ""
}

// Name colorizes a demangled symbol name.
func Name(text string, lang Lang, p tokens.Palette) []tokens.Token {
	return lex(getNameLexer(lang), text, p.Item, func(_ int, tok chroma.Token) tokens.Color {
		tt := tok.Type
		switch {
		case tt == chroma.KeywordType:
			return p.Type
		case tt.InCategory(chroma.Keyword):
			return p.Keyword
		case tt == chroma.NameBuiltin || tt == chroma.NameBuiltinPseudo:
			return p.Known
		case tt == chroma.NameClass || tt == chroma.NameNamespace:
			return p.Type
		case tt.InSubCategory(chroma.LiteralString):
			return p.String
		case tt.InCategory(chroma.Literal):
			return p.Constant
		case tt.InCategory(chroma.Punctuation), tt.InCategory(chroma.Operator):
			if isBracket(tok.Value) {
				return p.Brackets
			}
			return p.Delimiter
		case tt.InCategory(chroma.Comment):
			return p.Comment
		case tt.InCategory(chroma.Text):
			return p.Text
		default:
			return p.Item
		}
	})
}

// Instruction colorizes one line of disassembly. The first word is the opcode.
func Instruction(text string, arm bool, p tokens.Palette) []tokens.Token {
	opcodeSeen := false
	return lex(getAssemblyLexer(arm), text, p.Opcode, func(_ int, tok chroma.Token) tokens.Color {
		tt := tok.Type
		if strings.TrimSpace(tok.Value) == "" {
			return p.Text
		}
		if !opcodeSeen {
			opcodeSeen = true
			return p.Opcode
		}
		switch {
		case tt.InCategory(chroma.Text):
			return p.Text
		case tt.InCategory(chroma.Literal) && !tt.InSubCategory(chroma.LiteralString):
			return p.Immediate
		case tt.InSubCategory(chroma.LiteralString):
			return p.String
		case tt == chroma.KeywordType:
			return p.Attribute
		case tt.InCategory(chroma.Keyword):
			return p.Keyword
		case tt == chroma.NameLabel || tt == chroma.NameFunction:
			return p.Item
		case tt.InCategory(chroma.Name):
			return p.Register
		case tt.InCategory(chroma.Punctuation), tt.InCategory(chroma.Operator):
			if isBracket(tok.Value) {
				return p.Brackets
			}
			return p.Delimiter
		case tt.InCategory(chroma.Comment):
			return p.Comment
		default:
			return p.Expr
		}
	})
}

// Render converts tokens to a string, coloring each token when color is set.
func Render(ts []tokens.Token, color bool) string {
	var b strings.Builder
	styles := make(map[tokens.Color]lipgloss.Style)
	for _, t := range ts {
		if !color || t.Color == "" {
			b.WriteString(t.Text)
			continue
		}
		st, ok := styles[t.Color]
		if !ok {
			st = lipgloss.NewStyle().Foreground(lipgloss.Color(string(t.Color)))
			styles[t.Color] = st
		}
		b.WriteString(st.Render(t.Text))
	}
	return b.String()
}
