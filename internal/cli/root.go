// Package cli implements the meridian-stream command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-stream-go/config"
)

const rootLongDesc string = `meridian-stream streams completions from LLM providers through a
single normalized chunk pipeline.

Run commands using:
  meridian-stream stream -m claude-sonnet-4-5 "Explain backpressure"
  meridian-stream replay --provider bedrock capture.bin
  meridian-stream version

API keys are read from the environment or from a .env file found by walking
up from the working directory.`

const rootShortDesc string = "meridian-stream - streaming LLM client"

// globals holds the state shared by every subcommand once the persistent
// flags have been parsed.
type globals struct {
	configPath string
	debug      bool
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd returns the meridian-stream command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "meridian-stream",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return g.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file merged over the defaults")
	cmd.PersistentFlags().BoolVarP(&g.debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: pretty, json or text (overrides the config file)")

	cmd.AddCommand(newStreamCmd(g))
	cmd.AddCommand(newReplayCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (g *globals) load() error {
	config.LoadEnv()

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
		if err := cfg.Log.Validate(); err != nil {
			return err
		}
	}

	g.cfg = cfg
	g.logger = cfg.Log.Logger(g.debug)
	return nil
}
