package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
	"github.com/Till-X/xiaozhi-sever-DIY/internal/config"
)

func newSpeakCmd() *cobra.Command {
	var timeoutS int

	cmd := &cobra.Command{
		Use:   "speak [sentence]...",
		Short: "Speak the given sentences through the configured sink and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeak(cmd.Context(), activeCfg, args, time.Duration(timeoutS)*time.Second)
		},
	}
	cmd.Flags().IntVar(&timeoutS, "timeout", 60, "Seconds to wait for delivery before giving up")
	return cmd
}

func runSpeak(ctx context.Context, cfg config.Config, sentences []string, timeout time.Duration) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	delivered := make(chan struct{}, 1)
	a.observe = func(chunk delivery.AudioChunk) {
		if chunk.Sentence == delivery.SentenceLast {
			select {
			case delivered <- struct{}{}:
			default:
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- a.pipeline.Run(runCtx) }()

	a.pipeline.Speak(sentences...)

	select {
	case <-delivered:
	case <-time.After(timeout):
		a.pipeline.Close()
		<-runDone
		return fmt.Errorf("gave up waiting for delivery after %s", timeout)
	case err := <-runDone:
		if err != nil {
			return err
		}
		return fmt.Errorf("pipeline stopped before the utterance was delivered")
	case <-ctx.Done():
		a.pipeline.Close()
		<-runDone
		return ctx.Err()
	}

	a.awaitSink()
	a.pipeline.Close()
	if err := <-runDone; err != nil {
		return err
	}
	if a.uploader != nil {
		return a.uploader.Drain(context.Background())
	}
	return nil
}
