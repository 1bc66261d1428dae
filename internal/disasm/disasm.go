// Package disasm decodes machine code ahead of time so the analysis core
// can ask what lives at an address without decoding again.
package disasm

import (
	"bite/internal/tokens"
)

// ErrorKind classifies an undecodable byte sequence.
type ErrorKind int

const (
	ErrUnrecognized ErrorKind = iota
	ErrTruncated
	ErrInvalidMode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTruncated:
		return "Truncated"
	case ErrInvalidMode:
		return "InvalidMode"
	default:
		return "Unrecognized"
	}
}

// Instruction is a decoded instruction.
type Instruction struct {
	Addr uint64
	Len  int
	Op   string // mnemonic in lowercase
	inst any    // x86asm.Inst or arm64asm.Inst
}

// DecodeError records bytes the decoder rejected.
type DecodeError struct {
	Kind ErrorKind
	Size int
}

// SymbolResolver names exact addresses, typically the symbol index.
type SymbolResolver interface {
	NameAt(addr uint64) (string, bool)
}

// Decoder answers per-address questions about code sections.
type Decoder interface {
	InstructionAt(addr uint64) (Instruction, bool)
	ErrorAt(addr uint64) (DecodeError, bool)
	// MaxWidth is the widest instruction seen, in bytes.
	MaxWidth() int
	Tokens(inst Instruction, names SymbolResolver) []tokens.Token
}
