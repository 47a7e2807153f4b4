package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pmeyes/cmd/pmeyes/commands"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
	"git.home.luguber.info/inful/pmeyes/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli commands.CLI
	global := &commands.Global{Out: os.Stdout}
	defer global.Close()
	parser, err := kong.New(&cli,
		kong.Name("pmeyes"),
		kong.Description("Markdown to JSON content pipeline for the pmeyes blog."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		panic(err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		// Setup failures are classified; anything else is a usage error.
		if _, ok := ferrors.AsClassified(err); !ok {
			parser.FatalIfErrorf(err)
		}
		return ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}

	err = kctx.Run()
	return ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
}
