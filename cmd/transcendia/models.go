package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/transcendia/platform/internal/events"
	"github.com/transcendia/platform/internal/models"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Download any missing OCR model files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus := events.NewBus()
			prov := models.New(modelDir(cfg), models.DefaultModels, bus,
				models.WithTimeouts(cfg.Models.ConnectTimeout, cfg.Models.Timeout))

			progress, unsubscribe := bus.Subscribe(256)
			defer unsubscribe()
			go printProgress(cmd, progress)

			// Ctrl-C stops the downloads the way the UI's stop button does.
			go func() {
				<-ctx.Done()
				prov.CancelAll()
			}()

			ready, err := provision(context.WithoutCancel(ctx), prov)
			if err != nil {
				return err
			}
			if ready {
				fmt.Fprintf(cmd.OutOrStdout(), "models ready in %s\n", prov.Dir())
			}
			return nil
		},
	}
	cmd.AddCommand(newModelsVerifyCmd(opts))
	return cmd
}

func newModelsVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check model files against their recorded checksums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			prov := models.New(modelDir(cfg), models.DefaultModels, nil)
			var failed int
			for _, d := range models.DefaultModels {
				status := "ok"
				if err := prov.Verify(d.Name); err != nil {
					status = err.Error()
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", d.Name, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d model file(s) failed verification", failed)
			}
			return nil
		},
	}
}

func printProgress(cmd *cobra.Command, ch <-chan events.Event) {
	out := cmd.ErrOrStderr()
	for e := range ch {
		switch p := e.Payload.(type) {
		case events.Progress:
			if p.Progress == p.TotalSize {
				fmt.Fprintf(out, "%s: %s done\n", p.File, humanize.Bytes(uint64(p.TotalSize)))
			}
		case events.Files:
			fmt.Fprintf(out, "downloading %d file(s)\n", len(p.Files))
		case events.Failure:
			fmt.Fprintf(out, "%s failed: %s\n", p.File, p.Message)
		}
	}
}
