// Command voicecheck classifies microphone quality in real time and reports
// it on the console, over HTTP and as Prometheus metrics. It can also analyse
// recorded WAV files and list capture devices.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/MrWong99/voicecheck/internal/config"
)

var version = "dev"

// CLI is the command-line grammar.
type CLI struct {
	Config string `short:"c" type:"path" help:"Path to the YAML configuration file. Without it the built-in defaults are used." env:"VOICECHECK_CONFIG"`

	Listen  ListenCmd  `cmd:"" default:"1" help:"Capture from a device and show the live status (default)."`
	Analyze AnalyzeCmd `cmd:"" help:"Analyse WAV files and print a report per file."`
	Devices DevicesCmd `cmd:"" help:"List capture devices."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// runEnv is bound into every command's Run method.
type runEnv struct {
	ctx        context.Context
	configPath string
	logLevel   *slog.LevelVar
}

// loadConfig returns the config file's contents, or the defaults when no
// file was given.
func (e *runEnv) loadConfig() (*config.Config, error) {
	if e.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(e.configPath)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := &CLI{}
	parser, err := newParser(cli)
	if err != nil {
		printError(err.Error())
		return 2
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return 2
	}

	logLevel := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &runEnv{ctx: ctx, configPath: cli.Config, logLevel: logLevel}
	if err := kctx.Run(env); err != nil && !errors.Is(err, context.Canceled) {
		printError(err.Error())
		return 1
	}
	return 0
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("voicecheck"),
		kong.Description("Real-time microphone quality check"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Help(styledHelp),
	)
}
