package main

import (
	"fmt"
	"os"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatbuddy",
	Short: "Multi-user conversational assistant with intent classification",
	Long: `chatbuddy answers chat messages from a catalog of intents. Messages are
classified by a swappable model; when nothing matches it offers a web search.
It serves an HTTP API and NATS subjects, and ships an interactive chat for
trying intents locally.`,
	SilenceUsage: true,
}

func main() {
	exitOnError(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "chatbuddy.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads .env, the config and the logger shared by every command
func setup() (*config.Config, *zap.Logger, error) {
	// Load .env file if it exists (for development)
	envErr := godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, err
	}
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	return cfg, logger, nil
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
