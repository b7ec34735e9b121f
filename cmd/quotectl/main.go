// Command quotectl prices answers against a tenant configuration file and manages those files.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/logging"
	"github.com/Simplici0/quotewizard/internal/pricing"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "quotectl",
		Short: "Quote wizard pricing tools",
		Long: `quotectl works with tenant pricing configuration outside the server.

Examples:
  quotectl validate --config acme.yaml
  quotectl calculate --config acme.yaml --answers answers.json --format text
  quotectl export --base appXXXXXXXX --out acme.yaml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine decisions to stderr")

	newLogger := func(cmd *cobra.Command) *zap.Logger {
		cfg := logging.DefaultConfig()
		cfg.Format = "console"
		cfg.Level = "warn"
		if verbose {
			cfg.Level = "debug"
		}
		return logging.NewWriter(cfg, cmd.ErrOrStderr())
	}

	root.AddCommand(
		calculateCmd(newLogger),
		validateCmd(),
		exportCmd(newLogger),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quotectl %s\n", version)
		},
	}
}

// readAnswers loads a JSON answer document. Both a bare form and {"formData": {...}} are accepted.
func readAnswers(path string) (pricing.FormData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var form pricing.FormData
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("parse answers %s: %w", path, err)
	}
	if inner, ok := form["formData"].(map[string]any); ok {
		form = pricing.FormData(inner)
	}
	return form, nil
}
