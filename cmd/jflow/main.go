// jflow is the command-line front end of the method analyser. It reads YAML
// method listings, runs the type-flow analysis over them and reports or
// persists the results.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/jflow-project/jflow/cmd/utils"
	"github.com/jflow-project/jflow/internal/debug"
	"github.com/jflow-project/jflow/log"
)

var app = newApp()

func newApp() *cli.App {
	app := &cli.App{
		Name:                 "jflow",
		Usage:                "the JVM method type-flow analyser",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			analyseCommand,
			framesCommand,
			dumpCommand,
			dumpConfigCommand,
		},
		Flags: flagGroups(
			[]cli.Flag{utils.ConfigFileFlag},
			debug.Flags,
			utils.MetricsFlags,
		),
	}
	app.Before = func(ctx *cli.Context) error {
		cfg, err := baseConfig(ctx)
		if err != nil {
			return err
		}
		debug.ApplyFlags(ctx, &cfg.Log)
		if err := debug.Setup(cfg.Log); err != nil {
			return err
		}
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			log.Debug(fmt.Sprintf(format, args...))
		})); err != nil {
			log.Warn("Failed to set GOMAXPROCS", "err", err)
		}
		if file := ctx.String(debug.TraceFlag.Name); file != "" {
			return debug.StartGoTrace(file)
		}
		return nil
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
	return app
}

// flagGroups concatenates flag lists.
func flagGroups(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
