package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	agentName = "ghosttrack-agent"
	version   = "0.3.0"
)

var (
	logLevel string

	cfg    *config.Agent
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ghosttrack-agent",
	Short: "Device identity and recovery agent",
	Long: `ghosttrack-agent keeps a stable identity for this machine and, once the
owner reports it stolen, reports its position and runs remote commands.

Run "ghosttrack-agent run" to host the agent. The other commands either act
on their own or talk to a running agent through its local control API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadAgent()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Str("service", "ghosttrack-agent").
			Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides GT_LOG_LEVEL")

	rootCmd.AddCommand(runCmd, wakeCmd, fingerprintCmd, registerCmd, notifyCmd, trackCmd, statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
