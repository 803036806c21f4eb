package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cdppipe/cdppipe/browser"
	"github.com/cdppipe/cdppipe/cdp/browserdomain"
	"github.com/cdppipe/cdppipe/internal/supervisor"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Launch chromium briefly and print its Browser.getVersion response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd)
		},
	}
}

func runVersion(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := browser.Start(ctx, startupConfig(), afero.NewOsFs(), newLogger())
	if err != nil {
		return fmt.Errorf("cdppipe: starting browser: %w", err)
	}
	defer b.Close(ctx)

	raw, err := b.Call(ctx, "", browserdomain.MethodGetVersion, nil, time.Now().Add(5*time.Second))
	if err != nil {
		return fmt.Errorf("cdppipe: Browser.getVersion: %w", err)
	}
	var result browserdomain.GetVersionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("cdppipe: decoding Browser.getVersion result: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.Product, result.ProtocolVersion)
	return nil
}

func startupConfig() browser.Config {
	cfg := browser.Config{
		ChromePath:     flagChromePath,
		Headless:       supervisor.Bool(flagHeadless),
		StartupTimeout: time.Duration(flagTimeout) * time.Second,
	}
	return cfg
}
