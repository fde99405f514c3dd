package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/jflow-project/jflow/cmd/utils"
	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/frames"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/store"
	"github.com/jflow-project/jflow/internal/debug"
	"github.com/jflow-project/jflow/listing"
	"github.com/jflow-project/jflow/log"
	"github.com/jflow-project/jflow/metrics"
	"github.com/jflow-project/jflow/resultdb"
)

var (
	analyseCommand = &cli.Command{
		Action:    analyse,
		Name:      "analyse",
		Aliases:   []string{"analyze"},
		Usage:     "Analyse the methods of YAML listings",
		ArgsUsage: "<listing> [listing...]",
		Flags: flagGroups([]cli.Flag{
			utils.ClassFlag,
			utils.MethodFlag,
		}, utils.AnalysisFlags, utils.DatabaseFlags),
		Description: `
The analyse command types the operand stack of every selected method and
prints a summary. Failures are reported per method and never stop the
others. With --db the per-method summaries are persisted.`,
	}
	framesCommand = &cli.Command{
		Action:    printFrames,
		Name:      "frames",
		Usage:     "Print the stack frames computed for methods",
		ArgsUsage: "<listing> [listing...]",
		Flags: flagGroups([]cli.Flag{
			utils.ClassFlag,
			utils.MethodFlag,
		}, utils.AnalysisFlags),
		Description: `
Prints one table per selected method with the stack before and after every
instruction and its control-flow successors.`,
	}
	dumpCommand = &cli.Command{
		Action:    dumpSummaries,
		Name:      "dump",
		Usage:     "Dump method summaries as YAML",
		ArgsUsage: "[listing...]",
		Flags: flagGroups([]cli.Flag{
			utils.ClassFlag,
			utils.MethodFlag,
			utils.FilterFlag,
		}, utils.AnalysisFlags, utils.DatabaseFlags),
		Description: `
Without arguments the summaries are read from the database given by --db.
Otherwise the listings are analysed and their summaries dumped. --filter
keeps the summaries matching a boolean expression over their fields.`,
	}
)

var errColor = color.New(color.FgRed)

// loadMethods reads the listings named on the command line and keeps the
// methods matching --class and --method.
func loadMethods(ctx *cli.Context) ([]analyser.Method, error) {
	if ctx.NArg() == 0 {
		return nil, errors.New("no listing files given")
	}
	methods, err := listing.LoadFiles(ctx.Context, ctx.Args().Slice())
	if err != nil {
		return nil, err
	}
	var (
		classes = utils.ClassFilter(ctx)
		sel     = ctx.String(utils.MethodFlag.Name)
		kept    []analyser.Method
	)
	for _, m := range methods {
		if classes != nil && !classes[m.ID.Class] {
			continue
		}
		if sel != "" && !selects(sel, m.ID) {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return nil, errors.New("no method matches the selection")
	}
	return kept, nil
}

// selects matches a --method value, either a bare name or name+descriptor.
func selects(sel string, id instruction.MethodID) bool {
	if strings.Contains(sel, "(") {
		return sel == id.Name+id.Desc
	}
	return sel == id.Name
}

// run loads the selected methods and analyses them with the effective
// configuration.
func run(ctx *cli.Context) (jflowConfig, []analyser.Outcome, error) {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return cfg, nil, err
	}
	utils.SetupMetrics(ctx, &cfg.Analysis)

	methods, err := loadMethods(ctx)
	if err != nil {
		return cfg, nil, err
	}
	a, err := analyser.New(cfg.Analysis)
	if err != nil {
		return cfg, nil, err
	}
	defer debug.StartRegion("analyse")()

	start := time.Now()
	outcomes := a.AnalyseAll(methods)
	log.Debug("Analysed methods", "count", len(methods), "elapsed", time.Since(start).Round(time.Microsecond))
	return cfg, outcomes, nil
}

func analyse(ctx *cli.Context) error {
	cfg, outcomes, err := run(ctx)
	if err != nil {
		return err
	}
	var (
		w     = ctx.App.Writer
		st    = store.New()
		stats analyser.Stats
	)
	for _, o := range outcomes {
		stats.Fold(o.Events)
		if o.Err != nil {
			errColor.Fprintf(w, "error: %v\n", o.Err)
			continue
		}
		stats.Fold(st.Put(o.Result))
	}
	log.Info("Analysis done", "methods", len(outcomes), "classes", len(st.Classes()), "failed", stats.Failed)

	if db := utils.MakeDatabase(cfg.Database); db != nil {
		defer db.Close()
		if err := resultdb.WriteOutcomes(db, outcomes); err != nil {
			return err
		}
		log.Info("Persisted method summaries", "path", db.Path(), "count", len(outcomes))
	}
	printClasses(w, st)
	printStats(w, stats)
	if ctx.Bool(utils.MetricsEnabledFlag.Name) {
		metrics.WriteOnce(nil, w)
	}
	return nil
}

func printClasses(w io.Writer, st *store.Store) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Class", "Methods", "With jumps", "Boolean producers"})
	for _, class := range st.Classes() {
		var jumps, producers int
		results := st.ByClass(class)
		for _, res := range results {
			if res.HasJumps {
				jumps++
			}
			producers += len(res.BooleanProducers())
		}
		table.Append([]string{class, strconv.Itoa(len(results)), strconv.Itoa(jumps), strconv.Itoa(producers)})
	}
	table.Render()
}

func printStats(w io.Writer, stats analyser.Stats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Outcome", "Count"})
	table.AppendBulk([][]string{
		{"Analysed", strconv.Itoa(stats.Started)},
		{"Succeeded", strconv.Itoa(stats.Succeeded)},
		{"Failed", strconv.Itoa(stats.Failed)},
		{"  malformed input", strconv.Itoa(stats.Malformed)},
		{"  lattice", strconv.Itoa(stats.Lattice)},
		{"  ambiguous typing", strconv.Itoa(stats.Ambiguous)},
		{"Fixed-point visits", strconv.Itoa(stats.Iterations)},
		{"Load type changes", strconv.Itoa(stats.LoadTypeChanges)},
	})
	table.SetFooter([]string{"Elapsed", stats.Elapsed.Round(time.Microsecond).String()})
	table.Render()
}

func printFrames(ctx *cli.Context) error {
	_, outcomes, err := run(ctx)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	for _, o := range outcomes {
		if o.Err != nil {
			errColor.Fprintf(w, "error: %v\n", o.Err)
			continue
		}
		res := o.Result
		fmt.Fprintf(w, "%v\n", res.ID)

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"#", "Line", "Instruction", "Stack in", "Stack out", "Successors"})
		table.SetAutoWrapText(false)
		for order, ins := range res.Instructions {
			line := "-"
			if ins.Line() != instruction.UnknownLine {
				line = strconv.Itoa(ins.Line())
			}
			in, out := "unreachable", ""
			if f, ok := res.Frames.Frame(order); ok {
				in, out = frames.Format(f.Input), frames.Format(f.Output)
			}
			table.Append([]string{
				strconv.Itoa(order), line, ins.Label(), in, out,
				fmt.Sprint(res.Graph.Successors(order)),
			})
		}
		table.Render()
	}
	return nil
}

func dumpSummaries(ctx *cli.Context) error {
	filter, err := resultdb.NewFilter(ctx.String(utils.FilterFlag.Name))
	if err != nil {
		return err
	}
	var summaries []*resultdb.Summary
	if ctx.NArg() == 0 {
		cfg, err := makeConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.Database.Path == "" {
			return errors.New("either listing files or --db is required")
		}
		cfg.Database.ReadOnly = true
		db := utils.MakeDatabase(cfg.Database)
		defer db.Close()

		classes := utils.ClassFilter(ctx)
		sel := ctx.String(utils.MethodFlag.Name)
		err = resultdb.Iterate(db, func(s *resultdb.Summary) bool {
			if (classes == nil || classes[s.Class]) && (sel == "" || selects(sel, s.ID())) {
				summaries = append(summaries, s)
			}
			return true
		})
		if err != nil {
			return err
		}
	} else {
		_, outcomes, err := run(ctx)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if o.Err != nil {
				summaries = append(summaries, resultdb.FailedSummary(o.Err))
			} else {
				summaries = append(summaries, resultdb.NewSummary(o.Result))
			}
		}
	}
	kept := summaries[:0]
	for _, s := range summaries {
		ok, err := filter.Match(s)
		if err != nil {
			return err
		}
		if ok {
			kept = append(kept, s)
		}
	}
	summaries = kept
	enc := yaml.NewEncoder(ctx.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(summaries); err != nil {
		return err
	}
	return enc.Close()
}
