package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guardListing = `
class: demo/Guard
methods:
  - name: isZero
    desc: (I)Z
    static: true
    code: |
      .line 7
      ILOAD_0
      IFEQ yes
      ICONST_0
      GOTO done
      yes: ICONST_1
      done: IRETURN
  - name: run
    desc: ()V
    static: true
    code: |
      begin: ICONST_1
      POP
      last: RETURN
      catch: ASTORE_0
      RETURN
    handlers:
      - {start: begin, end: last, handler: catch, type: java/lang/Exception}
`

func runDraw(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(guardListing), 0o644))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append(append([]string{"cfgdraw", "--verbosity", "1"}, args...), path))
	return out.String(), err
}

func TestDrawBranches(t *testing.T) {
	out, err := runDraw(t, "--method", "isZero", "--deps")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph CFG {")
	assert.Contains(t, out, `label="demo/Guard.isZero(I)Z"`)
	assert.Contains(t, out, `n0 [label="0: ILOAD_0 0\nline 7"];`)
	assert.Contains(t, out, `n1 -> n2 [label="F"];`)
	assert.Contains(t, out, `n1 -> n4 [label="T"];`)
	assert.Contains(t, out, "n3 -> n5;")
	assert.Contains(t, out, `n1 -> n4 [style=dotted, color=blue, constraint=false, label="T"];`)
}

func TestDrawBlocks(t *testing.T) {
	out, err := runDraw(t, "--method", "isZero", "--blocks")
	require.NoError(t, err)
	assert.Contains(t, out, "  subgraph cluster_b0 {\n    label=\"block 0\";\n    n0 [")
	assert.Contains(t, out, "subgraph cluster_b3 {")
	assert.NotContains(t, out, "cluster_b4")

	out, err = runDraw(t, "--method", "isZero")
	require.NoError(t, err)
	assert.NotContains(t, out, "subgraph")
}

func TestDrawExceptionEdges(t *testing.T) {
	out, err := runDraw(t, "--method", "run")
	require.NoError(t, err)
	assert.Contains(t, out, `n0 -> n3 [style=dashed, color=red, label="java/lang/Exception"];`)
	assert.Contains(t, out, `n3 [label="3: ASTORE_0 0", peripheries=2];`)

	out, err = runDraw(t, "--method", "run", "--noexceptionedges")
	require.NoError(t, err)
	assert.NotContains(t, out, "color=red")
	assert.Contains(t, out, "style=dashed, color=gray")
}

func TestSelection(t *testing.T) {
	_, err := runDraw(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 methods match")

	_, err = runDraw(t, "--method", "missing")
	assert.Error(t, err)

	_, err = runDraw(t, "--method", "run", "--format", "png")
	assert.Error(t, err)
}

func TestOutputFormat(t *testing.T) {
	for _, tt := range []struct{ format, out, want string }{
		{"", "", "dot"},
		{"", "graph.SVG", "svg"},
		{"", "graph.dot", "dot"},
		{"dot", "graph.svg", "dot"},
		{"svg", "", "svg"},
	} {
		got, err := outputFormat(tt.format, tt.out)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "format %q out %q", tt.format, tt.out)
	}
}

func TestEscapeDOT(t *testing.T) {
	assert.Equal(t, `a \"b\"\nc`, escapeDOT("a \"b\"\nc"))
}
