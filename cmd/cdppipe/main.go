// Command cdppipe is the example driver binary called out in the domain
// stack: a thin cobra CLI over the Browser/Tab API, grounded on grafana/k6's
// and tomasbasham/har-capture's direct use of spf13/cobra for their own
// top-level commands. It exists to exercise the package API end-to-end, not
// as a general-purpose automation tool.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagChromePath string
	flagHeadless   bool
	flagTimeout    int
	flagVerbose    bool

	// version and commit are injected at build time via -ldflags, in the
	// teacher-adjacent style of tomasbasham/har-capture's cmd/har.
	version = "dev"
	commit  = ""
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cdppipe",
		Short:         "Drive a locally-launched Chromium over CDP pipes",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&flagChromePath, "chrome-path", "", "path to the chromium executable (default: $PYPECDP_CHROME_PATH or \"chromium\")")
	pflags.BoolVar(&flagHeadless, "headless", true, "launch chromium headless")
	pflags.IntVar(&flagTimeout, "startup-timeout", 30, "seconds to wait for the browser to attach its first tab")
	pflags.BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	root.AddCommand(newNavigateCommand())
	root.AddCommand(newEvalCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func versionString() string {
	if commit == "" {
		return version
	}
	return version + " (" + commit + ")"
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if flagVerbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
