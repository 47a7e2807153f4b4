package commands

import (
	"context"

	"git.home.luguber.info/inful/pmeyes/internal/pipeline"
	"git.home.luguber.info/inful/pmeyes/internal/server"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides serve.addr)"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Global) error {
	if c.Addr != "" {
		g.Config.Serve.Addr = c.Addr
	}
	p := pipeline.New(g.Config,
		pipeline.WithRecorder(g.Recorder),
		pipeline.WithPublisher(g.Publisher),
		pipeline.WithHistory(g.History),
		pipeline.WithLogger(g.Logger),
	)
	return server.New(g.Config, p,
		server.WithRegistry(g.Registry),
		server.WithLogger(g.Logger),
	).Run(ctx)
}
