package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/pmeyes/internal/locales"
)

// LocalesCmd implements the 'locales' command.
type LocalesCmd struct {
	Watch bool `short:"w" help:"Keep running and regenerate when a source file changes"`
}

func (c *LocalesCmd) Run(ctx context.Context, g *Global) error {
	gen := locales.NewGenerator(g.Config.Locales).
		WithHistory(g.History).
		WithLogger(g.Logger)
	if c.Watch {
		return gen.Watch(ctx)
	}

	stats, err := gen.Generate(ctx)
	if err != nil {
		return err
	}
	if !stats.Regenerated {
		_, _ = fmt.Fprintln(g.Out, "Locale files up to date")
		return nil
	}
	for _, lang := range g.Config.Locales.Languages {
		missing := stats.Missing[lang]
		_, _ = fmt.Fprintf(g.Out, "%s: %d keys", lang, stats.Keys[lang])
		if len(missing) > 0 {
			_, _ = fmt.Fprintf(g.Out, ", %d filled from %s", len(missing), g.Config.Locales.Base)
		}
		_, _ = fmt.Fprintln(g.Out)
	}
	return nil
}
