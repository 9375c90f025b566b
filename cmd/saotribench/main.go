// Command saotribench runs a hidden-requirement discovery task against an
// agent working through a workspace directory.
//
// Usage:
//
//	saotribench list --tasks-dir tasks/
//	saotribench validate --tasks-dir tasks/
//	saotribench run --tasks-dir tasks/ --task fizzbuzz --workspace ./ws
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/redush-com/SaotriBench/internal/logging"
)

// CLI defines the command-line interface.
type CLI struct {
	List     ListCmd     `cmd:"" help:"List discoverable tasks under --tasks-dir."`
	Validate ValidateCmd `cmd:"" help:"Validate one or every task descriptor under --tasks-dir."`
	Run      RunCmd      `cmd:"" help:"Run a task against an agent working through a workspace directory."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)." name:"log-file"`
	LogFormat string `help:"Log format (simple, json)." default:"simple" name:"log-format"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("saotribench"),
		kong.Description("SaotriBench - hidden-requirement discovery benchmark runner"),
		kong.UsageOnError(),
	)

	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	output := os.Stderr
	if cli.LogFile != "" {
		f, err := logging.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
			os.Exit(2)
		}
		defer f.Close()
		output = f
	}

	if err := logging.Init(level, output, cli.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	err = ctx.Run(&cli)
	if err != nil {
		if code, ok := err.(exitCoder); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(code.ExitCode())
		}
		ctx.FatalIfErrorf(err)
	}
}

// exitCoder lets a subcommand's error carry a specific process exit code
// (report.ExitCodes), rather than every failure collapsing to kong's
// default of 1.
type exitCoder interface {
	error
	ExitCode() int
}
