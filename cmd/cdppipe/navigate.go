package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cdppipe/cdppipe/browser"
)

func newNavigateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "navigate [url]",
		Short: "Launch chromium and navigate the first tab to url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNavigate(cmd, args[0])
		},
	}
}

func runNavigate(cmd *cobra.Command, url string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := browser.Start(ctx, startupConfig(), afero.NewOsFs(), newLogger())
	if err != nil {
		return fmt.Errorf("cdppipe: starting browser: %w", err)
	}
	defer b.Close(ctx)

	t, err := b.Navigate(ctx, url, time.Now().Add(10*time.Second))
	if err != nil {
		return fmt.Errorf("cdppipe: navigate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tab %s -> %s\n", t.TargetID, url)
	return nil
}
