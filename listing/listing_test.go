package listing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/lattice"
)

const flags = `
class: demo/Flags
methods:
  - name: isZero
    desc: (I)Z
    static: true
    code: |
      .line 3
      ILOAD_0
      IFEQ yes
      ICONST_0
      GOTO done
      .line 4
      yes: ICONST_1
      done:
        IRETURN
  - name: greet
    desc: ()Ljava/lang/String;
    static: true
    code: |
      LDC string "hello, world"
      ARETURN
---
class: demo/Other
methods:
  - name: pick
    desc: (I)I
    static: true
    code: |
      ILOAD_0
      LOOKUPSWITCH other 1:one 10:ten
      one: ICONST_1
      IRETURN
      ten: BIPUSH 10
      IRETURN
      other: ICONST_0
      IRETURN
`

func analyse(t *testing.T, m analyser.Method) (*analyser.Result, *analyser.Error) {
	t.Helper()
	a, err := analyser.New(analyser.Defaults)
	require.NoError(t, err)
	res, _, aerr := a.Analyse(m)
	return res, aerr
}

func TestDecode(t *testing.T) {
	methods, err := Decode(strings.NewReader(flags))
	require.NoError(t, err)
	require.Len(t, methods, 3)
	assert.Equal(t, instruction.MethodID{Class: "demo/Flags", Name: "isZero", Desc: "(I)Z"}, methods[0].ID)
	assert.Equal(t, "demo/Other", methods[2].ID.Class)

	res, aerr := analyse(t, methods[0])
	require.Nil(t, aerr)
	assert.Equal(t, 6, res.Len())
	assert.True(t, res.IsBooleanOperand(5, 0))
	assert.Equal(t, 3, res.Instructions[0].Line())
	assert.Equal(t, 4, res.Instructions[4].Line())
	assert.Equal(t, []int{2, 4}, res.Graph.Successors(1))

	res, aerr = analyse(t, methods[1])
	require.Nil(t, aerr)
	c, ok := res.Instructions[0].(*instruction.Constant)
	require.True(t, ok)
	assert.Equal(t, "hello, world", c.Value)
	assert.Equal(t, lattice.Object, c.PushedToStack())

	res, aerr = analyse(t, methods[2])
	require.Nil(t, aerr)
	assert.ElementsMatch(t, []int{2, 4, 6}, res.Graph.Successors(1))
}

func TestLocalsAndHandlers(t *testing.T) {
	const src = `
class: demo/Guard
methods:
  - name: run
    desc: ()V
    static: true
    code: |
      begin: ICONST_1
      ISTORE 0
      use: ILOAD_0
      POP
      last: RETURN
      catch: ASTORE_1
      RETURN
    locals:
      - {slot: 0, name: done, desc: Z, start: use, end: last}
    handlers:
      - {start: begin, end: last, handler: catch, type: java/lang/Exception}
`
	methods, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, methods, 1)
	m := methods[0]
	assert.Equal(t, 2, m.Locals[0].Start)
	assert.Equal(t, 4, m.Locals[0].End)
	assert.Equal(t, instruction.TryCatch{Start: 0, End: 4, Handler: 5, Type: "java/lang/Exception"}, m.Handlers[0])

	res, aerr := analyse(t, m)
	require.Nil(t, aerr)
	ok, err := res.WritesBoolean(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, res.Graph.IsHandlerEntry(5))
}

func TestSwitchCardinality(t *testing.T) {
	const src = `
class: demo/Switch
methods:
  - name: pick
    desc: (I)V
    static: true
    code: |
      ILOAD_0
      TABLESWITCH 0 2 out a b %s
      a: RETURN
      b: RETURN
      c: RETURN
      out: RETURN
`
	methods, err := Decode(strings.NewReader(strings.Replace(src, "%s", "c", 1)))
	require.NoError(t, err)
	res, aerr := analyse(t, methods[0])
	require.Nil(t, aerr)
	assert.Len(t, res.Graph.Successors(1), 4)

	methods, err = Decode(strings.NewReader(strings.Replace(src, "%s", "", 1)))
	require.NoError(t, err)
	_, aerr = analyse(t, methods[0])
	require.NotNil(t, aerr)
	assert.Equal(t, failure.ErrMalformed, aerr.Kind)
	assert.Equal(t, 1, aerr.Order)
}

func TestOperandErrorsAreAttributed(t *testing.T) {
	const src = `
class: demo/Bad
methods:
  - name: m
    desc: ()V
    code: |
      NOP
      BIPUSH
      RETURN
`
	methods, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	_, aerr := analyse(t, methods[0])
	require.NotNil(t, aerr)
	assert.Equal(t, failure.ErrMalformed, aerr.Kind)
	assert.Equal(t, 1, aerr.Order)
}

func TestSyntaxErrors(t *testing.T) {
	tests := map[string]string{
		"unknown opcode":  "FROB",
		"unknown label":   "GOTO nowhere",
		"duplicate label": "a: NOP\na: RETURN",
		"dangling label":  "RETURN\nend:",
		"bad line":        ".line x\nRETURN",
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Assemble("demo/X", Method{Name: "m", Desc: "()V", Code: code})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "demo/X.m()V")
		})
	}

	_, err := Decode(strings.NewReader("methods: []\n"))
	assert.Error(t, err)
	_, err = Decode(strings.NewReader("class: a\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"b.yaml", "a.yaml"} {
		path := filepath.Join(dir, name)
		src := "class: demo/" + strings.TrimSuffix(name, ".yaml") + "\nmethods:\n  - {name: m, desc: ()V, code: RETURN}\n"
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
		paths = append(paths, path)
	}
	methods, err := LoadFiles(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "demo/b", methods[0].ID.Class)
	assert.Equal(t, "demo/a", methods[1].ID.Class)

	_, err = LoadFiles(context.Background(), append(paths, filepath.Join(dir, "missing.yaml")))
	assert.Error(t, err)
}
