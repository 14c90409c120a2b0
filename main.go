package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/posener/complete"
	"github.com/willabides/kongplete"

	"github.com/semmy-space/dirctl/internal/cli"
	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/output"
)

var (
	version = "dev"
)

func main() {
	cliInstance := &cli.CLI{}
	parser := kong.Must(cliInstance,
		kong.Name("dirctl"),
		kong.Description("Yandex Direct credentials broker, API client and tool server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)

	// Answers shell completion requests and exits; a no-op otherwise
	kongplete.Complete(parser,
		kongplete.WithPredictor("file", complete.PredictFiles("*.json")),
	)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cliInstance.Logger
	if logger == nil {
		logger = logging.New(os.Stderr, cliInstance.Verbose)
	}
	ctx = logging.NewContext(ctx, logger)
	kctx.BindTo(ctx, (*context.Context)(nil))

	if err := kctx.Run(); err != nil {
		formatter := output.New(cliInstance.ResolvedOutput(""))
		code := output.Fail(formatter, err)
		stop()
		os.Exit(code)
	}
}
