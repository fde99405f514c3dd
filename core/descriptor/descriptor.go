// Package descriptor parses JVM field and method descriptors and maps them
// onto stack-type lattice categories.
package descriptor

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/core/lattice"
)

// ErrInvalid is wrapped by every parse failure.
var ErrInvalid = errors.New("invalid descriptor")

// Category returns the lattice category of a single field descriptor such as
// "I", "Ljava/lang/String;" or "[[J". Unknown leading characters yield Empty.
func Category(desc string) lattice.Set {
	if desc == "" {
		return lattice.Empty
	}
	switch desc[0] {
	case 'Z':
		return lattice.Boolean
	case 'B':
		return lattice.Byte
	case 'C':
		return lattice.Char
	case 'S':
		return lattice.Short
	case 'I':
		return lattice.Int
	case 'F':
		return lattice.Float
	case 'J':
		return lattice.Long
	case 'D':
		return lattice.Double
	case 'L':
		return lattice.Object
	case '[':
		return lattice.Array
	case 'V':
		return lattice.Void
	}
	return lattice.Empty
}

// OwnerCategory returns the category of a value whose class is named by an
// internal name, as used for invocation receivers and CHECKCAST operands.
// Array classes are written as descriptors ("[I"), other classes by name.
func OwnerCategory(internalName string) lattice.Set {
	if strings.HasPrefix(internalName, "[") {
		return lattice.Array
	}
	return lattice.Object
}

// Wide reports whether a value of the descriptor occupies two local slots.
func Wide(desc string) bool {
	return desc == "J" || desc == "D"
}

// fieldEnd returns the index just past the field descriptor starting at i.
func fieldEnd(s string, i int) (int, error) {
	start := i
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, errors.Wrapf(ErrInvalid, "%q: truncated at %d", s, start)
	}
	switch s[i] {
	case 'Z', 'B', 'C', 'S', 'I', 'F', 'J', 'D':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end <= 1 {
			return 0, errors.Wrapf(ErrInvalid, "%q: unterminated class name at %d", s, i)
		}
		return i + end + 1, nil
	}
	return 0, errors.Wrapf(ErrInvalid, "%q: unexpected %q at %d", s, s[i], i)
}

// ValidateField checks that desc is exactly one field descriptor.
func ValidateField(desc string) error {
	end, err := fieldEnd(desc, 0)
	if err != nil {
		return err
	}
	if end != len(desc) {
		return errors.Wrapf(ErrInvalid, "%q: trailing data", desc)
	}
	return nil
}

// Method is a parsed method descriptor.
type Method struct {
	Desc   string
	Params []string
	Return string
}

// ParseMethod parses a method descriptor such as "(ILjava/lang/String;)V".
func ParseMethod(desc string) (*Method, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, errors.Wrapf(ErrInvalid, "%q: missing '('", desc)
	}
	m := &Method{Desc: desc}
	i := 1
	for {
		if i >= len(desc) {
			return nil, errors.Wrapf(ErrInvalid, "%q: missing ')'", desc)
		}
		if desc[i] == ')' {
			break
		}
		end, err := fieldEnd(desc, i)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, desc[i:end])
		i = end
	}
	ret := desc[i+1:]
	if ret != "V" {
		if err := ValidateField(ret); err != nil {
			return nil, err
		}
	}
	m.Return = ret
	return m, nil
}

// ParamCategories returns the category of every declared parameter.
func (m *Method) ParamCategories() []lattice.Set {
	out := make([]lattice.Set, len(m.Params))
	for i, p := range m.Params {
		out[i] = Category(p)
	}
	return out
}

// ReturnCategory returns the category of the return type, Void for "V".
func (m *Method) ReturnCategory() lattice.Set {
	return Category(m.Return)
}

// SpacedParams lays the parameters out the way they occupy local slots on
// method entry: the receiver first for instance methods, and an empty entry
// after every long or double for the second slot it takes.
func (m *Method) SpacedParams(static bool) []lattice.Set {
	out := make([]lattice.Set, 0, len(m.Params)+1)
	if !static {
		out = append(out, lattice.Object)
	}
	for _, p := range m.Params {
		out = append(out, Category(p))
		if Wide(p) {
			out = append(out, lattice.Empty)
		}
	}
	return out
}

// ArgSlots returns the number of local slots the arguments occupy on entry.
func (m *Method) ArgSlots(static bool) int {
	return len(m.SpacedParams(static))
}
