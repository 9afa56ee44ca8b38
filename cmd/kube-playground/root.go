package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ritzau/kube-playground/pkg/config"
	"github.com/ritzau/kube-playground/pkg/logging"
)

// errIssuesFound fails a command whose report already told the user why.
var errIssuesFound = errors.New("issues found")

func isSilent(err error) bool {
	return errors.Is(err, errIssuesFound)
}

var rootCmd = &cobra.Command{
	Use:   "kube-playground",
	Short: "Draw Kubernetes architectures and keep them in sync with YAML",
	Long: `kube-playground keeps a canvas of Kubernetes resources and a set of
manifests in sync: edits on either side show up on the other, deployments
grow and shrink their pods as replicas change, and an advisor points out
common mistakes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a TOML config file (default "+config.DefaultFile+" if present)")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	flags.Bool("json", false, "Log as JSON")

	rootCmd.AddCommand(serveCmd, renderCmd, checkCmd, graphCmd)
}

// setup resolves the configuration of cmd and applies its logging settings.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if err != nil {
		return nil, err
	}
	if cfg.JSON {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}
	return cfg, nil
}
