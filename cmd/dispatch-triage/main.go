package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dispatch_triage/config"
	"dispatch_triage/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// cli carries state shared by subcommands once flags are parsed.
type cli struct {
	cfg    config.Config
	dotenv string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "dispatch-triage",
		Short: "Classify emergency-call transcripts for dispatch",
		Long: "dispatch-triage turns caller transcripts into a category, priority, severity\n" +
			"and routing recommendation, optionally refined by a local language model.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv(c.dotenv)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.dotenv, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(newServeCmd(c))
	root.AddCommand(newClassifyCmd(c))
	root.AddCommand(newBatchCmd(c))
	root.AddCommand(newLookupCmd(c))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
