package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	fsnotify "github.com/fsnotify/fsnotify"
	container "github.com/inference-gateway/chatledger/internal/container"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	cobra "github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat bot, the billing workers and the HTTP API",
	Long: `Start every long running component:
  - the billing dispatcher and its workers
  - the reward scheduler, when rewards are enabled
  - the Telegram bot, when telegram is enabled
  - the HTTP API with health, metrics and the receipt feed

On SIGINT, SIGTERM or a confirmed /shutdown, components stop in reverse
order and queued billing events are drained before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("address"); addr != "" {
			cfg.API.Address = addr
		}
		return withContainer(runServer)
	},
}

func init() {
	serveCmd.Flags().String("address", "", "HTTP API listen address (overrides api.address)")
	rootCmd.AddCommand(serveCmd)
}

func runServer(c *container.ServiceContainer) error {
	if err := checkHealth(c); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchConfig()

	dispatcher := c.GetDispatcher()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	rewards := c.GetRewardScheduler()
	rewards.Start(ctx)
	defer rewards.Stop()

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if c.GetConfig().API.Enabled {
		server := c.NewAPIServer()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil {
				errs <- fmt.Errorf("http api: %w", err)
			}
		}()
	}

	if c.GetConfig().Telegram.Enabled {
		bot, err := c.NewTelegramTransport(func() {
			logger.Info("shutdown requested by admin")
			cancel()
		})
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Start(ctx)
		}()
	}

	logger.Info("chatledger started",
		"storage", c.GetStore().Dialect(),
		"api", c.GetConfig().API.Enabled,
		"telegram", c.GetConfig().Telegram.Enabled)
	fmt.Fprintln(os.Stdout, "chatledger is running, press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		cancel()
	}

	logger.Info("shutting down")
	wg.Wait()
	return runErr
}

func checkHealth(c *container.ServiceContainer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("storage is not available: %w", err)
	}
	return nil
}

// watchConfig reloads the config file on change. Admin identities are read
// live from viper, so edits to admin.identities apply without a restart.
func watchConfig() {
	if V == nil || V.ConfigFileUsed() == "" {
		return
	}
	V.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed", "path", e.Name, "op", e.Op.String())
	})
	V.WatchConfig()
}
