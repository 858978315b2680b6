package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gembot/internal/ai"
	"gembot/internal/bot"
	"gembot/internal/channels/telegram"
	"gembot/internal/config"
	"gembot/internal/ratelimit"
	"gembot/internal/search"
	"gembot/internal/session"
	"gembot/internal/store"
	"gembot/internal/verify"
	"gembot/internal/version"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gembot",
	Short: "Gembot - phone-verified Telegram AI assistant",
	Long: `Gembot is a Telegram chatbot that answers questions, analyzes images,
and runs web searches through a generative AI backend.

Access is gated on phone verification via Telegram contact sharing, and
every chat is rate limited with a sliding window.`,
	Version: version.Full(),
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Telegram bot",
	Long: `Start the bot in long-polling mode. This is the main server mode that
consumes Telegram updates and handles conversations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Gembot %s\n", version.Full())
		buildInfo := version.GetBuildInfo()

		if buildInfo.GitCommit != "unknown" {
			fmt.Printf("Git commit: %s\n", buildInfo.GitCommit)
		}
		if buildInfo.BuildDate != "unknown" {
			fmt.Printf("Build date: %s\n", buildInfo.BuildDate)
		}
		fmt.Printf("Go version: %s\n", buildInfo.GoVersion)

		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// If no command is specified, default to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	}
}

func initConfig() {
	// Load .env early so ${ENV_VAR} expansion in the config file sees it.
	// A missing .env is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: Failed to load .env: %v", err)
	}

	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Verbose logging enabled")
	}
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is not configured (set TELEGRAM_BOT_TOKEN)")
	}
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("AI API key is not configured (set GEMINI_API_KEY)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	provider, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
		APIKey:      cfg.AI.APIKey,
		TextModel:   cfg.AI.TextModel,
		VisionModel: cfg.AI.VisionModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}

	var searchSvc *search.Service
	if cfg.Search.APIKey != "" {
		client, err := search.NewSerperClient(search.SerperConfig{
			APIKey:      cfg.Search.APIKey,
			Endpoint:    cfg.Search.Endpoint,
			Timeout:     cfg.Search.Timeout(),
			MaxAttempts: cfg.Search.MaxAttempts,
			Locale:      cfg.Search.Locale,
			Language:    cfg.Search.Language,
			ResultCount: cfg.Search.ResultCount,
		})
		if err != nil {
			return fmt.Errorf("failed to create search client: %w", err)
		}
		searchSvc = search.NewService(client, provider)
	} else {
		log.Printf("WARNING: Search API key not configured, web search disabled")
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimiting.Enabled {
		limiter = ratelimit.New(cfg.RateLimiting.Window(), cfg.RateLimiting.MaxRequests,
			cfg.RateLimiting.CleanupInterval())
		defer limiter.Stop()
	} else {
		log.Printf("WARNING: Rate limiting disabled")
	}

	adapter, err := telegram.NewAdapter("telegram", telegram.Config{
		BotToken: cfg.Telegram.BotToken,
		Debug:    cfg.Telegram.Debug,
	})
	if err != nil {
		return fmt.Errorf("failed to create Telegram adapter: %w", err)
	}

	orchestrator := bot.New(adapter, verify.NewGate(st), session.NewRouter(), limiter,
		provider, searchSvc, st, bot.Config{
			ResponseTimeout: cfg.AI.Timeout(),
			HistoryLimit:    cfg.History.Limit,
		})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	log.Printf("Starting Gembot %s", version.Full())
	if err := orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("bot failed to start: %w", err)
	}

	<-ctx.Done()

	if err := orchestrator.Stop(); err != nil {
		log.Printf("WARNING: Shutdown error: %v", err)
	}

	log.Println("Gembot stopped gracefully")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
