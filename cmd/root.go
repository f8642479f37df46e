package cmd

import (
	"fmt"
	"os"

	config "github.com/inference-gateway/chatledger/config"
	container "github.com/inference-gateway/chatledger/internal/container"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	cobra "github.com/spf13/cobra"
	viper "github.com/spf13/viper"
)

var (
	// V is the live configuration source of the running command
	V   *viper.Viper
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chatledger",
	Short: "Prepaid credit billing for AI chat",
	Long: `chatledger runs a chat bot in front of an inference gateway and bills
every answered question against the asker's prepaid credit balance.

Use 'chatledger serve' to run the bot and the HTTP API, or the
administrative commands to manage models, balances and billing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the root command
func Execute() {
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", fmt.Sprintf("config file (default is %s)", config.DefaultConfigPath))
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}

func initConfig(cmd *cobra.Command) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	configPath, _ := cmd.Flags().GetString("config")

	loaded, v, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, V = loaded, v

	logger.Init(verbose, cfg.LoggerOptions())
	return nil
}

// newContainer wires the services for one command run
func newContainer(opts ...container.Option) (*container.ServiceContainer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return container.NewServiceContainer(cfg, V, opts...)
}

// withContainer runs fn against a freshly wired container and closes it
func withContainer(fn func(c *container.ServiceContainer) error) error {
	c, err := newContainer(containerOptions...)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close container", "error", err)
		}
	}()
	return fn(c)
}

// containerOptions lets tests swap collaborators such as the AI client
var containerOptions []container.Option
