// Package utils contains internal helper functions for jflow commands.
package utils

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/log"
	"github.com/jflow-project/jflow/metrics"
	"github.com/jflow-project/jflow/resultdb"
)

const (
	AnalysisCategory = "ANALYSIS"
	DatabaseCategory = "RESULT DATABASE"
	MetricsCategory  = "METRICS"
	MiscCategory     = "MISC"
)

// These are all the command line flags we support.
// If you add to this list, please remember to include the
// flag in the appropriate command definition.
//
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: MiscCategory,
	}

	// Analysis settings
	WorkersFlag = &cli.IntFlag{
		Name:     "workers",
		Usage:    "Number of methods analysed concurrently (0 = derive from batch size and CPUs)",
		Value:    analyser.Defaults.Workers,
		Category: AnalysisCategory,
	}
	DescriptorCacheFlag = &cli.IntFlag{
		Name:     "cache.descriptors",
		Usage:    "Number of parsed method descriptors kept in memory",
		Value:    analyser.Defaults.DescriptorCache,
		Category: AnalysisCategory,
	}
	NoExceptionEdgesFlag = &cli.BoolFlag{
		Name:     "noexceptionedges",
		Usage:    "Do not connect instructions covered by a try range to their handler",
		Category: AnalysisCategory,
	}
	MaxIterationsFlag = &cli.IntFlag{
		Name:     "maxiterations",
		Usage:    "Fixed-point visit limit per method, as a multiple of its instruction count",
		Value:    analyser.Defaults.MaxIterations,
		Category: AnalysisCategory,
	}
	StrictFlag = &cli.BoolFlag{
		Name:     "strict",
		Usage:    "Reject methods containing unreachable instructions",
		Category: AnalysisCategory,
	}
	ClassFlag = &cli.StringFlag{
		Name:     "class",
		Usage:    "Comma separated list of internal class names to restrict the command to",
		Category: AnalysisCategory,
	}
	MethodFlag = &cli.StringFlag{
		Name:     "method",
		Usage:    "Method to select, as name or name+descriptor (e.g. isZero or isZero(I)Z)",
		Category: AnalysisCategory,
	}
	FilterFlag = &cli.StringFlag{
		Name:     "filter",
		Usage:    "Boolean expression over summary fields (e.g. 'HasJumps == true and Error is empty')",
		Category: AnalysisCategory,
	}

	// Database settings
	DBPathFlag = &cli.StringFlag{
		Name:     "db",
		Usage:    "Directory of the result database (persistence is off when empty)",
		Category: DatabaseCategory,
	}
	DBCacheFlag = &cli.IntFlag{
		Name:     "db.cache",
		Usage:    "Megabytes of memory allocated to the result database cache",
		Value:    16,
		Category: DatabaseCategory,
	}

	// Metrics flags
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:     "metrics",
		Usage:    "Enable metrics collection and reporting",
		Category: MetricsCategory,
	}
	MetricsTagsFlag = &cli.StringFlag{
		Name:     "metrics.tags",
		Usage:    "Comma-separated tags (key/values) recorded with the run info label",
		Value:    "",
		Category: MetricsCategory,
	}
)

var (
	// AnalysisFlags is the flag group of all analysis settings.
	AnalysisFlags = []cli.Flag{
		WorkersFlag,
		DescriptorCacheFlag,
		NoExceptionEdgesFlag,
		MaxIterationsFlag,
		StrictFlag,
	}
	// DatabaseFlags is the flag group of the result database.
	DatabaseFlags = []cli.Flag{
		DBPathFlag,
		DBCacheFlag,
	}
	// MetricsFlags is the flag group of metrics collection.
	MetricsFlags = []cli.Flag{
		MetricsEnabledFlag,
		MetricsTagsFlag,
	}
)

// SetAnalyserConfig applies analysis related command line flags to the config.
func SetAnalyserConfig(ctx *cli.Context, cfg *analyser.Config) {
	CheckExclusive(ctx, StrictFlag, NoExceptionEdgesFlag)

	if ctx.IsSet(WorkersFlag.Name) {
		cfg.Workers = ctx.Int(WorkersFlag.Name)
	}
	if ctx.IsSet(DescriptorCacheFlag.Name) {
		cfg.DescriptorCache = ctx.Int(DescriptorCacheFlag.Name)
	}
	if ctx.IsSet(NoExceptionEdgesFlag.Name) {
		cfg.ExceptionEdges = !ctx.Bool(NoExceptionEdgesFlag.Name)
	}
	if ctx.IsSet(MaxIterationsFlag.Name) {
		cfg.MaxIterations = ctx.Int(MaxIterationsFlag.Name)
	}
	if ctx.IsSet(StrictFlag.Name) {
		cfg.Strict = ctx.Bool(StrictFlag.Name)
	}
	if cfg.Workers < 0 {
		log.Warn("Sanitizing invalid worker count", "provided", cfg.Workers, "updated", 0)
		cfg.Workers = 0
	}
	if cfg.MaxIterations <= 0 {
		log.Warn("Sanitizing invalid iteration limit", "provided", cfg.MaxIterations, "updated", analyser.Defaults.MaxIterations)
		cfg.MaxIterations = analyser.Defaults.MaxIterations
	}
}

// SetDatabaseConfig applies result database flags to the config.
func SetDatabaseConfig(ctx *cli.Context, cfg *resultdb.Config) {
	if ctx.IsSet(DBPathFlag.Name) {
		cfg.Path = ctx.String(DBPathFlag.Name)
	}
	if ctx.IsSet(DBCacheFlag.Name) {
		cfg.Cache = ctx.Int(DBCacheFlag.Name)
	}
}

// MakeDatabase opens the result database described by cfg and will hard
// crash if it fails. It returns nil when no path is configured.
func MakeDatabase(cfg resultdb.Config) *resultdb.Database {
	if cfg.Path == "" {
		return nil
	}
	db, err := resultdb.Open(cfg)
	if err != nil {
		Fatalf("Could not open result database: %v", err)
	}
	return db
}

// ClassFilter returns the set of classes named by --class, or nil when the
// flag is absent.
func ClassFilter(ctx *cli.Context) map[string]bool {
	classes := SplitAndTrim(ctx.String(ClassFlag.Name))
	if len(classes) == 0 {
		return nil
	}
	filter := make(map[string]bool, len(classes))
	for _, class := range classes {
		filter[class] = true
	}
	return filter
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// CheckExclusive verifies that only a single instance of the provided flags was
// set by the user. Each flag might optionally be followed by a string type to
// specialize it further.
func CheckExclusive(ctx *cli.Context, args ...interface{}) {
	set := make([]string, 0, 1)
	for i := 0; i < len(args); i++ {
		flag, ok := args[i].(cli.Flag)
		if !ok {
			panic(fmt.Sprintf("invalid argument, not cli.Flag type: %T", args[i]))
		}
		name := flag.Names()[0]

		if i+1 < len(args) {
			switch option := args[i+1].(type) {
			case string:
				// Extended flag check, make sure value set doesn't conflict with passed in option
				if ctx.String(flag.Names()[0]) == option {
					name += "=" + option
					set = append(set, "--"+name)
				}
				i++
				continue

			case cli.Flag:
			default:
				panic(fmt.Sprintf("invalid argument, not cli.Flag or string extension: %T", args[i+1]))
			}
		}
		// Mark the flag if it's set
		if ctx.IsSet(flag.Names()[0]) {
			set = append(set, "--"+name)
		}
	}
	if len(set) > 1 {
		Fatalf("Flags %v can't be used at the same time", strings.Join(set, ", "))
	}
}

// SetupMetrics turns metrics collection on when requested and records the
// run configuration in the jflow/info label.
func SetupMetrics(ctx *cli.Context, cfg *analyser.Config) {
	if !ctx.Bool(MetricsEnabledFlag.Name) {
		return
	}
	log.Info("Enabling metrics collection")
	metrics.Enable()

	info := map[string]interface{}{
		"workers":        cfg.Workers,
		"exceptionedges": cfg.ExceptionEdges,
		"strict":         cfg.Strict,
		"maxiterations":  cfg.MaxIterations,
		"go-version":     runtime.Version(),
	}
	for k, v := range SplitTagsFlag(ctx.String(MetricsTagsFlag.Name)) {
		info[k] = v
	}
	metrics.GetOrRegisterLabel("jflow/info", nil).Mark(info)
}

// SplitTagsFlag parses a comma-separated list of k=v metrics tags.
func SplitTagsFlag(tagsFlag string) map[string]string {
	tags := strings.Split(tagsFlag, ",")
	tagsMap := map[string]string{}

	for _, t := range tags {
		if t != "" {
			kv := strings.Split(t, "=")

			if len(kv) == 2 {
				tagsMap[kv[0]] = kv[1]
			}
		}
	}

	return tagsMap
}
