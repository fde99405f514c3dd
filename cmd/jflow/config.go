package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/jflow-project/jflow/cmd/utils"
	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/internal/debug"
	"github.com/jflow-project/jflow/resultdb"
)

var (
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Export configuration values in a TOML format",
		ArgsUsage:   "<dumpfile (optional)>",
		Flags:       flagGroups(utils.AnalysisFlags, utils.DatabaseFlags),
		Description: `Export configuration values in TOML format (to stdout by default).`,
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type jflowConfig struct {
	Analysis analyser.Config
	Log      debug.LogConfig
	Database resultdb.Config
}

func defaultConfig() jflowConfig {
	return jflowConfig{
		Analysis: analyser.Defaults,
		Log:      debug.DefaultLogConfig,
		Database: resultdb.Config{Cache: utils.DBCacheFlag.Value},
	}
}

func loadConfig(file string, cfg *jflowConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// baseConfig loads the config file, if any, over the defaults.
func baseConfig(ctx *cli.Context) (jflowConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(utils.ConfigFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// makeConfig returns the effective configuration: defaults, then the config
// file, then command line flags.
func makeConfig(ctx *cli.Context) (jflowConfig, error) {
	cfg, err := baseConfig(ctx)
	if err != nil {
		return cfg, err
	}
	debug.ApplyFlags(ctx, &cfg.Log)
	utils.SetAnalyserConfig(ctx, &cfg.Analysis)
	utils.SetDatabaseConfig(ctx, &cfg.Database)
	return cfg, nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	_, err = dump.Write(out)
	return err
}
