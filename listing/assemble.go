package listing

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/opcodes"
	"github.com/jflow-project/jflow/core/variables"
)

// stmt is one instruction of a body with its operands still as text.
type stmt struct {
	pos  int // line within the code block, from 1
	line int // source line from the last .line directive
	op   opcodes.Opcode
	args []string
}

type body struct {
	stmts  []stmt
	labels map[string]int
}

var arrayCodes = map[string]int{
	"boolean": 4, "char": 5, "float": 6, "double": 7,
	"byte": 8, "short": 9, "int": 10, "long": 11,
}

// Assemble parses the body of m. Syntax errors are reported here; errors the
// builder detects, such as literals out of range, surface when the method is
// analysed.
func Assemble(class string, m Method) (analyser.Method, error) {
	id := instruction.MethodID{Class: class, Name: m.Name, Desc: m.Desc}
	b, err := parseBody(m.Code)
	if err != nil {
		return analyser.Method{}, errors.Wrapf(err, "%v", id)
	}
	out := analyser.Method{
		ID:     id,
		Static: m.Static,
		Emit:   b.emit,
	}
	for _, l := range m.Locals {
		start, err := b.resolve(l.Start)
		if err != nil {
			return analyser.Method{}, errors.Wrapf(err, "%v: local %s", id, l.Name)
		}
		end, err := b.resolve(l.End)
		if err != nil {
			return analyser.Method{}, errors.Wrapf(err, "%v: local %s", id, l.Name)
		}
		out.Locals = append(out.Locals, variables.Declaration{Slot: l.Slot, Name: l.Name, Desc: l.Desc, Start: start, End: end})
	}
	for i, h := range m.Handlers {
		var tc instruction.TryCatch
		for _, f := range []struct {
			dst *int
			ref string
		}{{&tc.Start, h.Start}, {&tc.End, h.End}, {&tc.Handler, h.Handler}} {
			if *f.dst, err = b.resolve(f.ref); err != nil {
				return analyser.Method{}, errors.Wrapf(err, "%v: handler %d", id, i)
			}
		}
		tc.Type = h.Type
		out.Handlers = append(out.Handlers, tc)
	}
	return out, nil
}

func parseBody(code string) (*body, error) {
	var (
		b    = &body{labels: make(map[string]int)}
		sc   = bufio.NewScanner(strings.NewReader(code))
		pos  int
		line = instruction.UnknownLine
	)
	for sc.Scan() {
		pos++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "//") {
			continue
		}
		// Leading "name:" tokens label the next instruction.
		for {
			i := strings.IndexAny(text, ": \t")
			if i <= 0 || text[i] != ':' {
				break
			}
			name := text[:i]
			if _, dup := b.labels[name]; dup {
				return nil, errors.Errorf("line %d: label %q defined twice", pos, name)
			}
			b.labels[name] = len(b.stmts)
			text = strings.TrimSpace(text[i+1:])
		}
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if fields[0] == ".line" {
			if len(fields) != 2 {
				return nil, errors.Errorf("line %d: .line takes one number", pos)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, errors.Errorf("line %d: bad line number %q", pos, fields[1])
			}
			line = n
			continue
		}
		op, ok := opcodes.Lookup(fields[0])
		if !ok {
			return nil, errors.Errorf("line %d: unknown opcode %q", pos, fields[0])
		}
		args := fields[1:]
		if op == opcodes.LDC || op == opcodes.LDC_W || op == opcodes.LDC2_W {
			// String constants may contain blanks.
			args = ldcArgs(strings.TrimSpace(text[len(fields[0]):]))
		}
		b.stmts = append(b.stmts, stmt{pos: pos, line: line, op: op, args: args})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for name, order := range b.labels {
		if order >= len(b.stmts) {
			return nil, errors.Errorf("label %q does not precede an instruction", name)
		}
	}
	// Check targets now so that a typo fails the listing, not the analysis.
	for _, s := range b.stmts {
		for _, ref := range s.targets() {
			if _, err := b.resolve(ref); err != nil {
				return nil, errors.Wrapf(err, "line %d", s.pos)
			}
		}
	}
	return b, nil
}

func ldcArgs(rest string) []string {
	kind, value, _ := strings.Cut(rest, " ")
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{kind}
	}
	return []string{kind, value}
}

// targets returns the operands naming instructions.
func (s stmt) targets() []string {
	switch {
	case s.op.IsJump() && len(s.args) == 1:
		return s.args
	case s.op == opcodes.TABLESWITCH && len(s.args) >= 3:
		return s.args[2:]
	case s.op == opcodes.LOOKUPSWITCH && len(s.args) >= 1:
		out := []string{s.args[0]}
		for _, kv := range s.args[1:] {
			if _, t, ok := strings.Cut(kv, ":"); ok {
				out = append(out, t)
			}
		}
		return out
	}
	return nil
}

// resolve turns a label or a decimal order into an order.
func (b *body) resolve(ref string) (int, error) {
	if order, ok := b.labels[ref]; ok {
		return order, nil
	}
	order, err := strconv.Atoi(ref)
	if err != nil {
		return 0, errors.Errorf("unknown label %q", ref)
	}
	return order, nil
}

func (b *body) resolveAll(refs []string) ([]int, error) {
	out := make([]int, len(refs))
	for i, ref := range refs {
		order, err := b.resolve(ref)
		if err != nil {
			return nil, err
		}
		out[i] = order
	}
	return out, nil
}

func (b *body) emit(bld *instruction.Builder) error {
	for order, s := range b.stmts {
		bld.Line(s.line)
		if err := b.emitOne(bld, s); err != nil {
			if failure.KindOf(err) == nil {
				return failure.Malformed(order, "%v", err)
			}
			return err
		}
	}
	return nil
}

func (b *body) emitOne(bld *instruction.Builder, s stmt) error {
	op, args := s.op, s.args
	want := func(n int) error {
		if len(args) != n {
			return errors.Errorf("line %d: %v takes %d operands, got %d", s.pos, op, n, len(args))
		}
		return nil
	}

	switch {
	case op == opcodes.BIPUSH || op == opcodes.SIPUSH || op == opcodes.NEWARRAY:
		if err := want(1); err != nil {
			return err
		}
		if code, ok := arrayCodes[args[0]]; ok && op == opcodes.NEWARRAY {
			return bld.Int(op, code)
		}
		v, err := s.numbers(args)
		if err != nil {
			return err
		}
		return bld.Int(op, v[0])

	case op == opcodes.IINC:
		if err := want(2); err != nil {
			return err
		}
		v, err := s.numbers(args)
		if err != nil {
			return err
		}
		return bld.Iinc(v[0], v[1])

	case (op.IsLoad() || op.IsStore() || op == opcodes.RET) && !isImplicit(op):
		if err := want(1); err != nil {
			return err
		}
		v, err := s.numbers(args)
		if err != nil {
			return err
		}
		return bld.Var(op, v[0])

	case op == opcodes.NEW || op == opcodes.ANEWARRAY || op == opcodes.CHECKCAST || op == opcodes.INSTANCEOF:
		if err := want(1); err != nil {
			return err
		}
		return bld.Type(op, args[0])

	case op == opcodes.MULTIANEWARRAY:
		if err := want(2); err != nil {
			return err
		}
		dims, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Errorf("line %d: bad dimensions %q", s.pos, args[1])
		}
		return bld.MultiANewArray(args[0], dims)

	case op.IsField():
		if err := want(3); err != nil {
			return err
		}
		return bld.Field(op, args[0], args[1], args[2])

	case op == opcodes.INVOKEDYNAMIC:
		if err := want(2); err != nil {
			return err
		}
		return bld.Invoke(op, "", args[0], args[1])

	case op.IsInvoke():
		if err := want(3); err != nil {
			return err
		}
		return bld.Invoke(op, args[0], args[1], args[2])

	case op == opcodes.LDC || op == opcodes.LDC_W || op == opcodes.LDC2_W:
		c, err := parseConst(args)
		if err != nil {
			return errors.Wrapf(err, "line %d", s.pos)
		}
		return bld.Ldc(op, c)

	case op.IsJump():
		if err := want(1); err != nil {
			return err
		}
		target, err := b.resolve(args[0])
		if err != nil {
			return err
		}
		return bld.Jump(op, target)

	case op == opcodes.TABLESWITCH:
		if len(args) < 3 {
			return errors.Errorf("line %d: TABLESWITCH takes min, max, default and targets", s.pos)
		}
		bounds, err := s.numbers(args[:2])
		if err != nil {
			return err
		}
		dflt, err := b.resolve(args[2])
		if err != nil {
			return err
		}
		targets, err := b.resolveAll(args[3:])
		if err != nil {
			return err
		}
		return bld.TableSwitch(bounds[0], bounds[1], dflt, targets)

	case op == opcodes.LOOKUPSWITCH:
		if len(args) < 1 {
			return errors.Errorf("line %d: LOOKUPSWITCH takes a default", s.pos)
		}
		dflt, err := b.resolve(args[0])
		if err != nil {
			return err
		}
		var keys, targets []int
		for _, kv := range args[1:] {
			k, t, ok := strings.Cut(kv, ":")
			if !ok {
				return errors.Errorf("line %d: LOOKUPSWITCH case %q is not key:target", s.pos, kv)
			}
			key, err := strconv.Atoi(k)
			if err != nil {
				return errors.Errorf("line %d: bad key %q", s.pos, k)
			}
			target, err := b.resolve(t)
			if err != nil {
				return err
			}
			keys, targets = append(keys, key), append(targets, target)
		}
		return bld.LookupSwitch(dflt, keys, targets)
	}

	if err := want(0); err != nil {
		return err
	}
	return bld.Insn(op)
}

// numbers parses operands as decimal integers.
func (s stmt) numbers(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, errors.Errorf("line %d: %v: bad number %q", s.pos, s.op, a)
		}
		out[i] = v
	}
	return out, nil
}

func isImplicit(op opcodes.Opcode) bool {
	_, ok := op.ImplicitSlot()
	return ok
}

// parseConst reads "kind value" operands of LDC. Dynamic constants are
// written "dynamic name desc".
func parseConst(args []string) (instruction.Const, error) {
	if len(args) == 0 {
		return instruction.Const{}, errors.New("LDC without a constant")
	}
	kind, ok := instruction.ParseConstKind(args[0])
	if !ok {
		return instruction.Const{}, errors.Errorf("unknown constant kind %q", args[0])
	}
	if len(args) != 2 {
		return instruction.Const{}, errors.Errorf("%v constant without a value", kind)
	}
	value := args[1]
	switch kind {
	case instruction.ConstInt, instruction.ConstLong:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return instruction.Const{}, errors.Errorf("bad %v %q", kind, value)
		}
		return instruction.Const{Kind: kind, Value: v}, nil
	case instruction.ConstFloat, instruction.ConstDouble:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return instruction.Const{}, errors.Errorf("bad %v %q", kind, value)
		}
		return instruction.Const{Kind: kind, Value: v}, nil
	case instruction.ConstString:
		if unq, err := strconv.Unquote(value); err == nil {
			value = unq
		}
		return instruction.Const{Kind: kind, Value: value}, nil
	case instruction.ConstDynamic:
		name, desc, ok := strings.Cut(value, " ")
		if !ok {
			return instruction.Const{}, errors.New("dynamic constant needs a name and a descriptor")
		}
		return instruction.Const{Kind: kind, Value: name, Desc: strings.TrimSpace(desc)}, nil
	}
	return instruction.Const{Kind: kind, Value: value}, nil
}
