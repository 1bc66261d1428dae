// Package tokens defines the colored text stream handed to renderers.
// A Stream is an ordered list of (text, color) pairs; tokens own their text.
package tokens

import "strings"

// Color is a "#rrggbb" hex string.
type Color string

// Token is one colored piece of text.
type Token struct {
	Text  string
	Color Color
}

// Stream is an ordered sequence of tokens.
type Stream struct {
	tokens []Token
}

// NewStream returns an empty stream with room for a typical line.
func NewStream() *Stream {
	return &Stream{tokens: make([]Token, 0, 25)}
}

// Simple returns a stream holding a single token.
func Simple(text string, c Color) *Stream {
	return &Stream{tokens: []Token{{Text: text, Color: c}}}
}

func (s *Stream) Push(text string, c Color) {
	s.tokens = append(s.tokens, Token{Text: text, Color: c})
}

func (s *Stream) Extend(ts []Token) {
	s.tokens = append(s.tokens, ts...)
}

// Pop drops the last token, if any.
func (s *Stream) Pop() {
	if len(s.tokens) > 0 {
		s.tokens = s.tokens[:len(s.tokens)-1]
	}
}

// Tokens returns the underlying tokens. Callers must not modify them.
func (s *Stream) Tokens() []Token {
	if s == nil {
		return nil
	}
	return s.tokens
}

func (s *Stream) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tokens)
}

// String concatenates the token texts.
func (s *Stream) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	for _, t := range s.tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}
