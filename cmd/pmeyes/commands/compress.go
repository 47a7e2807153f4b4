package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/pmeyes/internal/imagecompress"
	"git.home.luguber.info/inful/pmeyes/internal/metrics"
)

// CompressImagesCmd implements the 'compress-images' command.
type CompressImagesCmd struct{}

func (c *CompressImagesCmd) Run(ctx context.Context, g *Global) error {
	comp := imagecompress.New(g.Config,
		imagecompress.WithRecorder(g.Recorder),
		imagecompress.WithPublisher(g.Publisher),
		imagecompress.WithHistory(g.History),
		imagecompress.WithLogger(g.Logger),
	)
	rep, err := comp.Run(ctx)
	if err != nil {
		return err
	}

	for _, o := range rep.Images {
		switch o.Result {
		case metrics.ImageCompressed, metrics.ImageRenamed:
			name := o.Path
			if o.NewPath != o.Path {
				name = o.Path + " -> " + o.NewPath
			}
			_, _ = fmt.Fprintf(g.Out, "%s: %s -> %s\n", name, kb(o.Before), kb(o.After))
		case metrics.ImageFailed:
			_, _ = fmt.Fprintf(g.Out, "%s: failed: %v\n", o.Path, o.Err)
		}
	}
	_, _ = fmt.Fprintf(g.Out, "%d images checked, %d renamed, %d failed, %s saved\n",
		len(rep.Images), rep.Renamed, rep.Failed, kb(rep.Saved))
	return nil
}

func kb(n int64) string {
	return fmt.Sprintf("%.2fKB", float64(n)/1024)
}
