// Package instruction models the instructions of a single method body.
//
// Every instruction is one variant of a closed set of opcode families. All
// variants answer the same questions: which stack types they consume (deepest
// first), which type they push, which local slots they read and write, and
// which instruction orders may execute next.
//
// Jumps, switches and RET are first built as placeholders carrying raw target
// orders. A Program collects the first-pass elements and resolves every
// placeholder once the whole stream exists. Placeholders do not implement
// Instruction, so unresolved control flow cannot reach the analyses.
package instruction

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

// UnknownLine is the line number of instructions without debug information.
const UnknownLine = -1

// MethodID identifies a method by declaring class, name and descriptor.
type MethodID struct {
	Class string
	Name  string
	Desc  string
}

func (id MethodID) String() string {
	return fmt.Sprintf("%s.%s%s", id.Class, id.Name, id.Desc)
}

// Element is anything that can occupy a position of the first-pass stream:
// a resolved Instruction or a Placeholder.
type Element interface {
	Method() MethodID
	Order() int
	Opcode() opcodes.Opcode
	Line() int
	Label() string

	elem() *base
}

// Instruction is a fully built instruction.
type Instruction interface {
	Element

	// ConsumedFromStack lists the types popped, deepest first.
	ConsumedFromStack() []lattice.Set
	// PushedToStack is the type pushed, or lattice.Void.
	PushedToStack() lattice.Set
	ReadsVariables() mapset.Set[int]
	WritesVariables() mapset.Set[int]
	// Successors lists the orders that may execute next, ignoring exceptions.
	Successors() []int
}

type base struct {
	method *MethodID
	order  int
	op     opcodes.Opcode
	line   int
}

func (b *base) elem() *base            { return b }
func (b *base) Method() MethodID       { return *b.method }
func (b *base) Order() int             { return b.order }
func (b *base) Opcode() opcodes.Opcode { return b.op }
func (b *base) Line() int              { return b.line }
func (b *base) Label() string          { return b.op.String() }

// plain provides the defaults of instructions that touch no local slot and
// do not branch.
type plain struct {
	base
}

func (p *plain) ReadsVariables() mapset.Set[int]  { return slots() }
func (p *plain) WritesVariables() mapset.Set[int] { return slots() }

// Successors continues with the next order unless the opcode ends the flow.
func (p *plain) Successors() []int {
	if p.op.EndsFlow() {
		return nil
	}
	return []int{p.order + 1}
}

func slots(s ...int) mapset.Set[int] {
	return mapset.NewThreadUnsafeSet[int](s...)
}

// IsExit reports whether ins leaves the method: a return or a throw.
func IsExit(ins Instruction) bool {
	op := ins.Opcode()
	return op.IsReturn() || op == opcodes.ATHROW
}

// String renders an element as "order: label".
func String(e Element) string {
	return fmt.Sprintf("%d: %s", e.Order(), e.Label())
}
