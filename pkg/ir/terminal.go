package ir

import "fmt"

// Terminal describes how control leaves a Block.
type Terminal interface {
	isTerminal()
	String() string
}

// TermInvalid marks a block whose translation has not set a terminal.
type TermInvalid struct{}

// TermReturnToDispatch hands control back to the dispatcher, which looks
// up the block for the current guest state.
type TermReturnToDispatch struct{}

// TermLinkBlock continues at Next. The dispatcher still checks the halt
// flag and cycle budget before entering it.
type TermLinkBlock struct {
	Next Location
}

// TermPopRSBHint returns to the dispatcher with a hint that the current PC
// is likely the top of the return stack buffer.
type TermPopRSBHint struct{}

// TermIf takes Then when Cond passes on the current flags, Else otherwise.
type TermIf struct {
	Cond Cond
	Then Terminal
	Else Terminal
}

func (TermInvalid) isTerminal()          {}
func (TermReturnToDispatch) isTerminal() {}
func (TermLinkBlock) isTerminal()        {}
func (TermPopRSBHint) isTerminal()       {}
func (TermIf) isTerminal()               {}

func (TermInvalid) String() string          { return "Invalid" }
func (TermReturnToDispatch) String() string { return "ReturnToDispatch" }
func (t TermLinkBlock) String() string      { return fmt.Sprintf("LinkBlock %s", t.Next) }
func (TermPopRSBHint) String() string       { return "PopRSBHint" }
func (t TermIf) String() string {
	return fmt.Sprintf("If %s then (%s) else (%s)", t.Cond, t.Then, t.Else)
}
