package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/pmeyes/internal/pipeline"
)

// ConvertCmd implements the 'convert' command.
type ConvertCmd struct {
	Force bool `short:"f" help:"Regenerate even when the cache reports no changes"`
}

func (c *ConvertCmd) Run(ctx context.Context, g *Global) error {
	p := pipeline.New(g.Config,
		pipeline.WithRecorder(g.Recorder),
		pipeline.WithPublisher(g.Publisher),
		pipeline.WithHistory(g.History),
		pipeline.WithLogger(g.Logger),
		pipeline.WithForce(c.Force),
	)
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if !res.Regenerated {
		_, _ = fmt.Fprintln(g.Out, "No changes, skipped")
		return nil
	}
	_, _ = fmt.Fprintf(g.Out, "Converted %d articles (%d assets copied) in %s\n",
		res.Articles, res.AssetsCopied, res.Duration.Round(time.Millisecond))
	return nil
}
