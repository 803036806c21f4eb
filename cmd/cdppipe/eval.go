package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cdppipe/cdppipe/browser"
)

func newEvalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval [url] [expression]",
		Short: "Navigate to url and print the JSON-encoded value of expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args[0], args[1])
		},
	}
}

func runEval(cmd *cobra.Command, url, expression string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := browser.Start(ctx, startupConfig(), afero.NewOsFs(), newLogger())
	if err != nil {
		return fmt.Errorf("cdppipe: starting browser: %w", err)
	}
	defer b.Close(ctx)

	deadline := time.Now().Add(10 * time.Second)
	t, err := b.Navigate(ctx, url, deadline)
	if err != nil {
		return fmt.Errorf("cdppipe: navigate: %w", err)
	}

	result, err := t.Eval(ctx, expression, true, deadline)
	if err != nil {
		return fmt.Errorf("cdppipe: eval: %w", err)
	}
	out, err := json.Marshal(result.Value)
	if err != nil {
		return fmt.Errorf("cdppipe: encoding eval result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
