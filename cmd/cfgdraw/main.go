// cfgdraw renders the control-flow graph of one method of a YAML listing as
// Graphviz DOT or SVG.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/jflow-project/jflow/cmd/utils"
	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/internal/debug"
	"github.com/jflow-project/jflow/listing"
)

var (
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Output file path (.dot or .svg). If empty, write to stdout",
	}
	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: dot or svg (inferred from --out when omitted)",
	}
	titleFlag = &cli.StringFlag{
		Name:  "title",
		Usage: "Graph title (defaults to the method)",
	}
	depsFlag = &cli.BoolFlag{
		Name:  "deps",
		Usage: "Also draw control dependences",
	}
	blocksFlag = &cli.BoolFlag{
		Name:  "blocks",
		Usage: "Group instructions into basic-block clusters",
	}
)

func newApp() *cli.App {
	app := &cli.App{
		Name:      "cfgdraw",
		Usage:     "render a method's control-flow graph as DOT/SVG",
		ArgsUsage: "<listing>",
		Action:    draw,
		Flags: []cli.Flag{
			utils.ClassFlag,
			utils.MethodFlag,
			utils.NoExceptionEdgesFlag,
			outFlag,
			formatFlag,
			titleFlag,
			depsFlag,
			blocksFlag,
			debug.VerbosityFlag,
		},
	}
	app.Before = func(ctx *cli.Context) error {
		cfg := debug.DefaultLogConfig
		debug.ApplyFlags(ctx, &cfg)
		return debug.Setup(cfg)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cfgdraw: %v\n", err)
		os.Exit(1)
	}
}

// selectMethod loads the listing and returns the single method picked by
// --class and --method.
func selectMethod(ctx *cli.Context) (analyser.Method, error) {
	if ctx.NArg() != 1 {
		return analyser.Method{}, errors.New("exactly one listing file is required")
	}
	methods, err := listing.Load(ctx.Args().First())
	if err != nil {
		return analyser.Method{}, err
	}
	var (
		classes = utils.ClassFilter(ctx)
		sel     = ctx.String(utils.MethodFlag.Name)
		matches []analyser.Method
	)
	for _, m := range methods {
		if classes != nil && !classes[m.ID.Class] {
			continue
		}
		if sel != "" && sel != m.ID.Name && sel != m.ID.Name+m.ID.Desc {
			continue
		}
		matches = append(matches, m)
	}
	switch len(matches) {
	case 0:
		return analyser.Method{}, errors.New("no method matches the selection")
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.ID.String()
	}
	return analyser.Method{}, errors.Errorf("%d methods match, narrow with --class or --method: %s", len(matches), strings.Join(names, ", "))
}

// outputFormat resolves --format, falling back to the extension of --out.
func outputFormat(format, out string) (string, error) {
	if format == "" && out != "" {
		if strings.ToLower(filepath.Ext(out)) == ".svg" {
			format = "svg"
		}
	}
	switch format {
	case "", "dot":
		return "dot", nil
	case "svg":
		return "svg", nil
	}
	return "", errors.Errorf("unknown format %q (use dot or svg)", format)
}

func draw(ctx *cli.Context) error {
	format, err := outputFormat(ctx.String(formatFlag.Name), ctx.String(outFlag.Name))
	if err != nil {
		return err
	}
	m, err := selectMethod(ctx)
	if err != nil {
		return err
	}
	config := analyser.Defaults
	config.ExceptionEdges = !ctx.Bool(utils.NoExceptionEdgesFlag.Name)
	a, err := analyser.New(config)
	if err != nil {
		return err
	}
	res, _, aerr := a.Analyse(m)
	if aerr != nil {
		return aerr
	}

	title := ctx.String(titleFlag.Name)
	if title == "" {
		title = m.ID.String()
	}
	data := buildDOT(res.Graph, title, ctx.Bool(depsFlag.Name), ctx.Bool(blocksFlag.Name))
	if format == "svg" {
		if data, err = renderSVG(data); err != nil {
			return err
		}
	}
	if out := ctx.String(outFlag.Name); out != "" {
		return os.WriteFile(out, data, 0o644)
	}
	_, err = ctx.App.Writer.Write(data)
	return err
}
