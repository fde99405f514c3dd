// Package debug configures logging and runtime tracing for the command line
// tools.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jflow-project/jflow/log"
)

// LoggingCategory groups the flags below in help output.
const LoggingCategory = "LOGGING AND DEBUGGING"

var (
	VerbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value:    3,
		Category: LoggingCategory,
	}
	LogFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log format to use (terminal|logfmt|json)",
		Category: LoggingCategory,
	}
	LogFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Write logs to a file",
		Category: LoggingCategory,
	}
	LogRotateFlag = &cli.BoolFlag{
		Name:     "log.rotate",
		Usage:    "Enables size-based log rotation",
		Category: LoggingCategory,
	}
	LogMaxSizeMBsFlag = &cli.IntFlag{
		Name:     "log.maxsize",
		Usage:    "Maximum size in megabytes of the log file before it gets rotated",
		Value:    100,
		Category: LoggingCategory,
	}
	LogMaxBackupsFlag = &cli.IntFlag{
		Name:     "log.maxbackups",
		Usage:    "Maximum number of log files to retain",
		Value:    10,
		Category: LoggingCategory,
	}
	LogMaxAgeFlag = &cli.IntFlag{
		Name:     "log.maxage",
		Usage:    "Maximum number of days to retain a log file",
		Value:    30,
		Category: LoggingCategory,
	}
	LogCompressFlag = &cli.BoolFlag{
		Name:     "log.compress",
		Usage:    "Compress the log files",
		Category: LoggingCategory,
	}
	LogRotateHoursFlag = &cli.UintFlag{
		Name:     "log.rotatehours",
		Usage:    "Write logs to hourly files through a buffered writer, rotating every N hours (0 disables)",
		Category: LoggingCategory,
	}
	TraceFlag = &cli.StringFlag{
		Name:     "go-trace",
		Usage:    "Write an execution trace of the analysis to the given file",
		Category: LoggingCategory,
	}
)

// Flags holds all command-line flags required for debugging.
var Flags = []cli.Flag{
	VerbosityFlag,
	LogFormatFlag,
	LogFileFlag,
	LogRotateFlag,
	LogMaxSizeMBsFlag,
	LogMaxBackupsFlag,
	LogMaxAgeFlag,
	LogCompressFlag,
	LogRotateHoursFlag,
	TraceFlag,
}

// LogConfig is the logging section of the configuration file.
type LogConfig struct {
	Verbosity   int
	Format      string `toml:",omitempty"`
	File        string `toml:",omitempty"`
	Rotate      bool   `toml:",omitempty"`
	MaxSizeMBs  int    `toml:",omitempty"`
	MaxBackups  int    `toml:",omitempty"`
	MaxAgeDays  int    `toml:",omitempty"`
	Compress    bool   `toml:",omitempty"`
	RotateHours uint   `toml:",omitempty"`
}

// DefaultLogConfig mirrors the flag defaults.
var DefaultLogConfig = LogConfig{
	Verbosity:  VerbosityFlag.Value,
	MaxSizeMBs: LogMaxSizeMBsFlag.Value,
	MaxBackups: LogMaxBackupsFlag.Value,
	MaxAgeDays: LogMaxAgeFlag.Value,
}

// ApplyFlags overrides cfg with the logging flags set on the command line.
func ApplyFlags(ctx *cli.Context, cfg *LogConfig) {
	if ctx.IsSet(VerbosityFlag.Name) {
		cfg.Verbosity = ctx.Int(VerbosityFlag.Name)
	}
	if ctx.IsSet(LogFormatFlag.Name) {
		cfg.Format = ctx.String(LogFormatFlag.Name)
	}
	if ctx.IsSet(LogFileFlag.Name) {
		cfg.File = ctx.String(LogFileFlag.Name)
	}
	if ctx.IsSet(LogRotateFlag.Name) {
		cfg.Rotate = ctx.Bool(LogRotateFlag.Name)
	}
	if ctx.IsSet(LogMaxSizeMBsFlag.Name) {
		cfg.MaxSizeMBs = ctx.Int(LogMaxSizeMBsFlag.Name)
	}
	if ctx.IsSet(LogMaxBackupsFlag.Name) {
		cfg.MaxBackups = ctx.Int(LogMaxBackupsFlag.Name)
	}
	if ctx.IsSet(LogMaxAgeFlag.Name) {
		cfg.MaxAgeDays = ctx.Int(LogMaxAgeFlag.Name)
	}
	if ctx.IsSet(LogCompressFlag.Name) {
		cfg.Compress = ctx.Bool(LogCompressFlag.Name)
	}
	if ctx.IsSet(LogRotateHoursFlag.Name) {
		cfg.RotateHours = ctx.Uint(LogRotateHoursFlag.Name)
	}
}

var (
	logOutputFile io.WriteCloser
	asyncWriter   *log.AsyncFileWriter
	levelHandler  *log.LevelHandler
)

// Setup installs the root logger described by cfg. Log records go to stderr
// and, when configured, to a file.
func Setup(cfg LogConfig) error {
	var (
		terminalOutput = io.Writer(os.Stderr)
		output         io.Writer
		useColor       = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	)
	if useColor {
		terminalOutput = colorable.NewColorableStderr()
	}
	context := []interface{}{"rotate", cfg.Rotate}
	if cfg.Format != "" {
		context = append(context, "format", cfg.Format)
	} else {
		context = append(context, "format", "terminal")
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to initialize file logger: %v", err)
		}
	}
	switch {
	case cfg.Rotate:
		file := cfg.File
		if file == "" {
			file = filepath.Join(os.TempDir(), "jflow-lumberjack.log")
		}
		context = append(context, "location", file)
		logOutputFile = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMBs,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		output = io.MultiWriter(terminalOutput, logOutputFile)
	case cfg.File != "" && cfg.RotateHours > 0:
		asyncWriter = log.NewAsyncFileWriter(cfg.File, 100, cfg.RotateHours)
		if err := asyncWriter.Start(); err != nil {
			return err
		}
		context = append(context, "location", cfg.File, "rotatehours", cfg.RotateHours)
		output = io.MultiWriter(terminalOutput, asyncWriter)
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		logOutputFile = f
		context = append(context, "location", cfg.File)
		output = io.MultiWriter(logOutputFile, terminalOutput)
	default:
		output = terminalOutput
	}

	// Colour codes only make sense when nothing but the terminal is written.
	color := useColor && output == terminalOutput
	inner, err := newHandler(cfg.Format, output, color)
	if err != nil {
		return err
	}
	levelHandler = log.NewLevelHandler(inner)
	levelHandler.Verbosity(log.FromLegacyLevel(cfg.Verbosity))
	log.SetDefault(log.NewLogger(levelHandler))

	if cfg.File != "" || cfg.Rotate {
		log.Info("Logging configured", context...)
	}
	return nil
}

func newHandler(format string, output io.Writer, color bool) (slog.Handler, error) {
	switch format {
	case "json":
		return log.JSONHandler(output), nil
	case "logfmt":
		return log.LogfmtHandler(output), nil
	case "", "terminal":
		return log.NewTerminalHandler(output, color), nil
	}
	return nil, fmt.Errorf("unknown log format: %v", format)
}

// Exit flushes and closes the log outputs opened by Setup.
func Exit() {
	if asyncWriter != nil {
		asyncWriter.Stop()
		asyncWriter = nil
	}
	if logOutputFile != nil {
		logOutputFile.Close()
		logOutputFile = nil
	}
	StopGoTrace()
}
