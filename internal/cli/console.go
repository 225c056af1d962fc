package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Till-X/xiaozhi-sever-DIY/internal/config"
	"github.com/Till-X/xiaozhi-sever-DIY/internal/console"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console for driving the pipeline by hand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsole(cmd.Context(), activeCfg)
		},
	}
}

func runConsole(ctx context.Context, cfg config.Config) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ui := console.New(a.pipeline, a.library)
	ui.OnInterrupt(func() {
		if a.sink != nil {
			a.sink.Clear()
		}
	})
	a.observe = ui.Observe

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- a.pipeline.Run(runCtx) }()
	if a.uploader != nil {
		go a.uploader.Run(runCtx)
	}

	uiErr := ui.Run(runCtx)

	a.pipeline.Close()
	runErr := <-runDone
	if a.uploader != nil {
		a.uploader.Drain(context.Background())
	}
	return errors.Join(uiErr, runErr)
}
