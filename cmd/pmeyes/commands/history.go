package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	N int `short:"n" help:"Number of runs to show" default:"10"`
}

func (c *HistoryCmd) Run(ctx context.Context, g *Global) error {
	if g.Config.History.Path == "" {
		return ferrors.ConfigError("run history is disabled; set history.path").Build()
	}
	runs, err := g.History.Recent(ctx, c.N)
	if err != nil {
		return ferrors.StoreError("cannot read run history").WithCause(err).
			WithContext("path", g.Config.History.Path).Build()
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(g.Out, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tKIND\tOUTCOME\tARTICLES\tASSETS\tDURATION\tERROR")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Kind, r.Outcome,
			r.Articles, r.Assets, r.Duration.Round(time.Millisecond), r.Error)
	}
	return tw.Flush()
}
