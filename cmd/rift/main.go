//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package main

import (
	"fmt"
	"os"
	"path"

	flags "github.com/jessevdk/go-flags"

	"github.com/daos-stack/rift/build"
	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/logging"
)

type cliOptions struct {
	Debug         bool       `short:"d" long:"debug" description:"enable debug output"`
	DBPath        string     `short:"b" long:"db" description:"path to the results database"`
	TelemetryPort int        `short:"t" long:"telemetry-port" description:"serve metrics on this port"`
	Run           runCmd     `command:"run" alias:"r" description:"Run a scenario against the system under test"`
	Results       resultsCmd `command:"results" alias:"res" description:"List recorded scenario results"`
	Version       versionCmd `command:"version" description:"Print rift version"`
}

type cmdLogger interface {
	setLog(*logging.LeveledLogger)
}

type logCmd struct {
	log *logging.LeveledLogger
}

func (c *logCmd) setLog(log *logging.LeveledLogger) {
	c.log = log
}

type optsSetter interface {
	setOpts(*cliOptions)
}

type optsCmd struct {
	opts *cliOptions
}

func (c *optsCmd) setOpts(opts *cliOptions) {
	c.opts = opts
}

type versionCmd struct{}

func (cmd *versionCmd) Execute(_ []string) error {
	fmt.Println(build.String(build.ToolName))
	os.Exit(0)
	return nil
}

func exitWithError(log logging.Logger, err error) {
	cmdName := path.Base(os.Args[0])
	log.Errorf("%s: %v", cmdName, err)
	if fault.HasResolution(err) {
		log.Errorf("%s: %s", cmdName, fault.ShowResolutionFor(err))
	}
	os.Exit(1)
}

func parseOpts(args []string, opts *cliOptions, log *logging.LeveledLogger) error {
	p := flags.NewParser(opts, flags.Default)
	p.Options ^= flags.PrintErrors // Don't allow the library to print errors
	p.CommandHandler = func(cmd flags.Commander, cmdArgs []string) error {
		if cmd == nil {
			return nil
		}

		if opts.Debug {
			log.WithLogLevel(logging.LogLevelDebug)
			log.Debug("debug output enabled")
		}

		if logCmd, ok := cmd.(cmdLogger); ok {
			logCmd.setLog(log)
		}
		if oCmd, ok := cmd.(optsSetter); ok {
			oCmd.setOpts(opts)
		}

		return cmd.Execute(cmdArgs)
	}

	_, err := p.ParseArgs(args)
	return err
}

func main() {
	log := logging.NewCommandLineLogger()
	var opts cliOptions

	if err := parseOpts(os.Args[1:], &opts, log); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			log.Info(fe.Error())
			os.Exit(0)
		}
		exitWithError(log, err)
	}
}
