package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatrelay/chatrelay/pkg/cache"
	"github.com/chatrelay/chatrelay/pkg/config"
	"github.com/chatrelay/chatrelay/pkg/gateway"
	"github.com/chatrelay/chatrelay/pkg/line"
	"github.com/chatrelay/chatrelay/pkg/logger"
	"github.com/chatrelay/chatrelay/pkg/memory"
	"github.com/chatrelay/chatrelay/pkg/providers"
	"github.com/chatrelay/chatrelay/pkg/router"
	"github.com/chatrelay/chatrelay/pkg/storage"
	"github.com/chatrelay/chatrelay/pkg/web"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:           appName,
		Short:         "Relay between a LINE webhook channel and OpenAI chat models",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newServeCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".chatrelay", "config.json")
}

func newServeCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if debug {
				logger.SetLevel(logger.DEBUG)
			} else {
				logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(cfg *config.Config) error {
	store, err := storage.Open(cfg.Storage.Backend, cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	newClient := func(apiKey string) (router.ModelClient, error) {
		return providers.NewClient(apiKey, cfg.OpenAI.APIBase, cfg.OpenAI.ModelEngine, cfg.OpenAI.Proxy)
	}

	sessions := router.NewSessions()
	if err := sessions.Rehydrate(store, newClient); err != nil {
		return fmt.Errorf("rehydrate sessions: %w", err)
	}

	msgCache := cache.NewMessageCache(cfg.Chat.CacheSize)
	quotes := cache.NewQuoteResolver(msgCache)
	botClient := line.NewClient(cfg.Line.ChannelToken, cfg.Line.APIBase, cfg.Line.DataAPIBase)

	rt := router.New(router.Options{
		BotUserID:   cfg.Line.BotUserID,
		ModelEngine: cfg.OpenAI.ModelEngine,
		NewClient:   newClient,
		Store:       store,
		Sessions:    sessions,
		Memory:      memory.NewStore(cfg.Chat.SystemMessage, cfg.Chat.MemoryCount),
		Quotes:      quotes,
		Content:     botClient,
		Pages:       web.NewReader(),
		FindURL:     web.FindURL,
	})

	srv, err := gateway.NewServer(gateway.Options{
		ChannelSecret: cfg.Line.ChannelSecret,
		Replier:       botClient,
		Router:        rt,
		Cache:         msgCache,
		Quotes:        quotes,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.StartStats(ctx, cfg.Gateway.StatsCron); err != nil {
		return err
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.InfoC("gateway", "Shutting down")
		cancel()
	}()

	return srv.Start(ctx, cfg.Gateway.Host, cfg.Gateway.Port)
}

func newChatCommand() *cobra.Command {
	var (
		configPath string
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured model from the terminal (no LINE channel needed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if apiKey == "" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}
			if strings.TrimSpace(apiKey) == "" {
				return fmt.Errorf("an API key is required (--api-key or OPENAI_API_KEY)")
			}
			client, err := providers.NewClient(apiKey, cfg.OpenAI.APIBase, cfg.OpenAI.ModelEngine, cfg.OpenAI.Proxy)
			if err != nil {
				return err
			}
			return runChatREPL(client, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config file")
	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "OpenAI API key")
	return cmd
}
