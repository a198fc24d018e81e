// Package main provides the mixcue CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"mixcue/internal/agent"
	"mixcue/internal/core"
	"mixcue/internal/httpapi"
	"mixcue/internal/resolver"
	"mixcue/internal/spotify"
	"mixcue/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mixcue",
	Short: "mixcue - AI song recommendations queued straight to Spotify",
	Long: `mixcue takes a seed song, asks an LLM for similar songs, resolves each
suggestion against the Spotify catalog with fuzzy matching, verifies the
matches and adds the survivors to your playback queue.`,
	RunE: runRecommend,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recommendation HTTP API",
	RunE:  runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("spotify-token-path", "", "path for the persisted Spotify token")
	rootCmd.PersistentFlags().String("spotify-market", "", "Spotify market for search results")
	rootCmd.PersistentFlags().String("llm-provider", "anthropic", "LLM provider (openai, anthropic, ollama)")
	rootCmd.PersistentFlags().String("llm-model", "", "LLM model name")
	rootCmd.PersistentFlags().String("llm-api-key", "", "LLM API key")
	rootCmd.PersistentFlags().String("llm-base-url", "", "LLM base URL override")
	rootCmd.PersistentFlags().String("history-path", "", "path for the recommendation history database")
	rootCmd.PersistentFlags().String("server-host", "", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")

	rootCmd.Flags().StringP("song", "s", "", "seed song, e.g. \"Lahore by Guru Randhawa\"")
	rootCmd.Flags().StringSliceP("artist", "a", nil, "seed artist (repeatable, overrides artists parsed from --song)")
	rootCmd.Flags().IntP("count", "n", 5, "number of recommendations to request")
	rootCmd.Flags().Bool("verify", true, "verify recommendations with the LLM before queueing")
	rootCmd.Flags().Bool("dry-run", false, "resolve and verify but do not touch the queue")
	rootCmd.Flags().Bool("autoplay", false, "start playing the seed song before queueing")

	rootCmd.AddCommand(serveCmd)

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("MIXCUE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if v := viper.GetString("spotify-redirect-url"); v != "" {
		cfg.Spotify.RedirectURL = v
	}
	if v := viper.GetString("spotify-token-path"); v != "" {
		cfg.Spotify.TokenPath = v
	}
	if v := viper.GetString("spotify-market"); v != "" {
		cfg.Spotify.Market = v
	}

	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.APIKey = viper.GetString("llm-api-key")
	cfg.LLM.BaseURL = viper.GetString("llm-base-url")

	if v := viper.GetString("server-host"); v != "" {
		cfg.Server.Host = v
	}
	if v := viper.GetInt("server-port"); v != 0 {
		cfg.Server.Port = v
	}

	if v := viper.GetString("history-path"); v != "" {
		cfg.Store.HistoryPath = v
	}

	cfg.Log.Level = viper.GetString("log-level")

	cfg.App.Count = viper.GetInt("count")
	cfg.App.Verify = viper.GetBool("verify")
	cfg.App.DryRun = viper.GetBool("dry-run")
	cfg.App.Autoplay = viper.GetBool("autoplay")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}
	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}
	if config.LLM.APIKey == "" && config.LLM.Provider != "ollama" {
		return fmt.Errorf("LLM API key is required for provider: %s", config.LLM.Provider)
	}
	return nil
}

// buildPipeline wires the full recommendation pipeline. The returned cleanup
// closes the history store.
func buildPipeline(ctx context.Context) (*core.Orchestrator, func(), error) {
	spotifyClient := spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	if err := spotifyClient.Authenticate(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	llmClient, err := agent.NewClient(&config.LLM, logger.Named("llm"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	history, err := store.NewHistoryStore(config.Store.HistoryPath, logger.Named("history"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history store: %w", err)
	}

	orchestrator := core.NewOrchestrator(
		config,
		spotifyClient,
		resolver.New(spotifyClient, config.Resolver, logger.Named("resolver")),
		agent.NewSuggester(llmClient, logger.Named("suggester")),
		agent.NewVerifier(llmClient, logger.Named("verifier")),
		store.NewDedupStore(config.Store.DedupCapacity),
		history,
		logger.Named("orchestrator"),
	)

	if err := orchestrator.WarmDedup(ctx); err != nil {
		logger.Warn("failed to warm dedup store", zap.Error(err))
	}

	cleanup := func() {
		if err := history.Close(); err != nil {
			logger.Warn("failed to close history store", zap.Error(err))
		}
	}
	return orchestrator, cleanup, nil
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	song, _ := cmd.Flags().GetString("song")
	if strings.TrimSpace(song) == "" {
		return fmt.Errorf("--song is required")
	}
	artists, _ := cmd.Flags().GetStringSlice("artist")

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	orchestrator, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	verify := config.App.Verify
	req := core.RecommendRequest{
		Song:     song,
		Artists:  artists,
		Count:    config.App.Count,
		Verify:   &verify,
		DryRun:   config.App.DryRun,
		Autoplay: config.App.Autoplay,
	}

	faint := color.New(color.Faint)
	progress := func(ev core.ProgressEvent) {
		switch ev.Type {
		case core.EventStatus:
			faint.Println(ev.Message)
		case core.EventSeed:
			fmt.Printf("Seed: %s - %s\n", ev.Track.Name, strings.Join(ev.Track.Artists, ", "))
		case core.EventSkipped:
			faint.Printf("not found: %s\n", ev.Suggestion.Title)
		case core.EventDuplicate:
			faint.Printf("already played: %s\n", ev.Track.Name)
		case core.EventRejected:
			faint.Printf("rejected: %s (%s)\n", ev.Recommendation.Track.Name, ev.Recommendation.Verification.Reason)
		}
	}

	result, err := orchestrator.Recommend(ctx, req, progress)
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func printResult(result *core.RecommendationResult) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	bold.Printf("Recommendations for %s - %s\n\n", result.Seed.Name, strings.Join(result.Seed.Artists, ", "))

	if len(result.Recommendations) == 0 {
		yellow.Println("No recommendations survived resolution and verification.")
		return
	}

	for i, rec := range result.Recommendations {
		status := " "
		if rec.InQueue {
			status = green.Sprint("✓")
		}
		fmt.Printf("%2d. %s %-40s %-30s score %.2f",
			i+1, status, rec.Track.Name, strings.Join(rec.Track.Artists, ", "), rec.MatchScore)
		if rec.Verification != nil {
			fmt.Printf("  conf %.2f", rec.Verification.Confidence)
		}
		fmt.Println()
	}

	fmt.Println()
	fmt.Printf("suggested %d, queued %d, rejected %d, duplicates %d\n",
		result.TotalFound, result.TotalQueued, result.TotalRejected, result.TotalDuplicates)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("Starting mixcue",
		zap.String("llm_provider", config.LLM.Provider),
		zap.String("market", config.Spotify.Market))

	orchestrator, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	server := httpapi.NewServer(&config.Server, orchestrator, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	logger.Info("mixcue started",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("mixcue stopped with error", zap.Error(err))
		return err
	}

	logger.Info("mixcue stopped gracefully")
	return nil
}
