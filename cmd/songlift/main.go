// Package main provides the songlift CLI application entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"songlift/internal/core"
	httpserver "songlift/internal/http"
	"songlift/internal/match"
	"songlift/internal/spotify"
	"songlift/internal/store"
	"songlift/pkg/fuzzy"
	"songlift/pkg/text"
)

// Exit codes reported to the shell.
const (
	exitOK      = 0
	exitConfig  = 1
	exitInput   = 2
	exitPartial = 3
	exitRuntime = 4
)

const seenStoreCapacity = 10000

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

// exitError carries a process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "songlift",
	Short: "songlift - import song lists into Spotify playlists",
	Long: `songlift parses "title - artist" song lists, matches each line against the
Spotify catalog with fuzzy scoring, and optionally collects the matches into
a playlist.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Match a song list and optionally create a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0])
	},
}

var batchImportCmd = &cobra.Command{
	Use:   "batch-import <file>",
	Short: "Match a large song list with batch-tuned defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Same flow as import, with fan-out sized for long lists unless
		// overridden explicitly.
		if !cmd.Flags().Changed("concurrency") {
			config.Pipeline.Concurrency = 10
		}
		if !cmd.Flags().Changed("batch-size") {
			config.Pipeline.BatchSize = 50
		}
		return runImport(cmd, args[0])
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Run the Spotify authorization flow and cache the token",
	RunE:  runAuth,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the import pipeline over HTTP",
	RunE:  runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitConfig)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (JSON)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("spotify-token-path", "", "Spotify token cache path")

	for _, cmd := range []*cobra.Command{importCmd, batchImportCmd} {
		cmd.Flags().String("playlist-name", "", "create a playlist with this name from the matches")
		cmd.Flags().Bool("public", false, "make the created playlist public")
		cmd.Flags().String("description", "", "description for the created playlist")
		cmd.Flags().String("output-report", "", "write the match report to this file")
		cmd.Flags().Int("concurrency", 0, "worker count (default from config)")
		cmd.Flags().Int("batch-size", 0, "parser batch size (default from config)")
	}

	serveCmd.Flags().String("host", "", "listen host")
	serveCmd.Flags().Int("port", 0, "listen port")
	serveCmd.Flags().Int("throttle-per-minute", 0, "API requests allowed per client per minute")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(exitConfig)
	}

	rootCmd.AddCommand(importCmd, batchImportCmd, authCmd, serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("songlift")
		viper.SetConfigType("json")
	}

	viper.SetEnvPrefix("SONGLIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(exitConfig)
		}
	}

	config = buildConfig()
	logger = buildLogger(&config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = firstNonEmpty(
		viper.GetString("spotify-client-id"),
		os.Getenv("SPOTIPY_CLIENT_ID"))
	cfg.Spotify.ClientSecret = firstNonEmpty(
		viper.GetString("spotify-client-secret"),
		os.Getenv("SPOTIPY_CLIENT_SECRET"))
	if v := firstNonEmpty(viper.GetString("spotify-redirect-url"), os.Getenv("SPOTIPY_REDIRECT_URI")); v != "" {
		cfg.Spotify.RedirectURL = v
	}
	if v := viper.GetString("spotify-token-path"); v != "" {
		cfg.Spotify.TokenPath = v
	}

	if v := viper.GetInt("search.limit"); v > 0 {
		cfg.Search.Limit = v
	}
	if v := viper.GetInt("search.max-retries"); v > 0 {
		cfg.Search.MaxRetries = v
	}
	if v := viper.GetDuration("search.retry-base-delay"); v > 0 {
		cfg.Search.RetryBaseDelay = v
	}
	if v := viper.GetDuration("search.retry-max-delay"); v > 0 {
		cfg.Search.RetryMaxDelay = v
	}
	if v := viper.GetDuration("search.call-budget"); v > 0 {
		cfg.Search.CallBudget = v
	}

	if v := viper.GetFloat64("match.title-weight"); v > 0 {
		cfg.Match.TitleWeight = v
		cfg.Match.ArtistWeight = 1 - v
	}
	if v := viper.GetFloat64("match.threshold"); v > 0 {
		cfg.Match.MatchThreshold = v
	}
	if v := viper.GetFloat64("match.low-confidence-threshold"); v > 0 {
		cfg.Match.LowConfidenceThreshold = v
	}
	if viper.IsSet("match.cache-enabled") {
		cfg.Match.CacheEnabled = viper.GetBool("match.cache-enabled")
	}
	if v := viper.GetInt("match.cache-size"); v > 0 {
		cfg.Match.CacheSize = v
	}

	if v := viper.GetInt("pipeline.concurrency"); v > 0 {
		cfg.Pipeline.Concurrency = v
	}
	if v := viper.GetInt("pipeline.batch-size"); v > 0 {
		cfg.Pipeline.BatchSize = v
	}

	if v := viper.GetString("server.host"); v != "" {
		cfg.Server.Host = v
	}
	if v := viper.GetInt("server.port"); v > 0 {
		cfg.Server.Port = v
	}
	if v := viper.GetInt("server.throttle-per-minute"); v > 0 {
		cfg.Server.ThrottlePerMinute = v
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func buildLogger(cfg *core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
	}

	builtLogger, err := zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func validateCredentials() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required (set SPOTIPY_CLIENT_ID)")
	}
	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required (set SPOTIPY_CLIENT_SECRET)")
	}
	return nil
}

// buildService wires the normalizer, matcher, parser and catalog client into
// the shared application service. userAuth selects the authorization-code
// flow; without it the session is search-only.
func buildService(ctx context.Context, userAuth bool) (*core.Service, error) {
	if err := config.Validate(); err != nil {
		return nil, &exitError{code: exitConfig, err: fmt.Errorf("invalid configuration: %w", err)}
	}
	if err := validateCredentials(); err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}

	cacheSize := 0
	if config.Match.CacheEnabled {
		cacheSize = config.Match.CacheSize
	}
	norm, err := fuzzy.NewNormalizer(fuzzy.DefaultOptions(cacheSize))
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}

	client := spotify.NewClient(&config.Spotify, &config.Search, config.Pipeline.Concurrency, norm, logger.Named("spotify"))
	if userAuth {
		if err := client.Authenticate(ctx); err != nil {
			return nil, &exitError{code: exitConfig, err: fmt.Errorf("spotify authentication failed: %w", err)}
		}
	} else {
		if err := client.AuthenticateClientCredentials(ctx); err != nil {
			return nil, &exitError{code: exitConfig, err: fmt.Errorf("spotify authentication failed: %w", err)}
		}
	}

	matcher := match.New(&config.Match, norm)
	seen := store.NewSeenStore(seenStoreCapacity, 0.001)

	return core.NewService(
		config,
		client,
		matcher,
		text.NewParser(),
		client,
		seen,
		logger.Named("service"),
	), nil
}

func runImport(cmd *cobra.Command, path string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	playlistName, _ := cmd.Flags().GetString("playlist-name")
	public, _ := cmd.Flags().GetBool("public")
	description, _ := cmd.Flags().GetString("description")
	reportPath, _ := cmd.Flags().GetString("output-report")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	input, err := os.Open(path)
	if err != nil {
		return &exitError{code: exitInput, err: fmt.Errorf("opening input: %w", err)}
	}
	defer input.Close()

	// Playlist creation needs a user session; plain matching does not.
	service, err := buildService(ctx, playlistName != "")
	if err != nil {
		return err
	}

	report, err := service.ProcessSongs(ctx, input, concurrency, batchSize)
	if err != nil {
		return &exitError{code: exitRuntime, err: fmt.Errorf("processing input: %w", err)}
	}

	if err := report.Render(os.Stdout); err != nil {
		return &exitError{code: exitRuntime, err: err}
	}
	if reportPath != "" {
		if err := writeReport(report, reportPath); err != nil {
			return &exitError{code: exitRuntime, err: err}
		}
		logger.Info("Report written", zap.String("path", reportPath))
	}

	if playlistName != "" {
		if err := createPlaylistFromReport(ctx, service, report, playlistName, public, description); err != nil {
			return err
		}
	}

	if !report.AllMatched() {
		return &exitError{code: exitPartial, err: fmt.Errorf(
			"%d of %d lines fully matched",
			report.Summary.Matched, report.Summary.TotalInputLines)}
	}
	return nil
}

func createPlaylistFromReport(ctx context.Context, service *core.Service, report *core.Report, name string, public bool, description string) error {
	uris := report.MatchedURIs()
	if len(uris) == 0 {
		fmt.Println("No matched tracks; playlist not created.")
		return nil
	}

	result, err := service.CreatePlaylist(ctx, name, public, description, uris)

	var addErr *core.PlaylistAddError
	switch {
	case err == nil:
		fmt.Printf("Playlist %q created: %s (%d tracks)\n", result.Name, result.PlaylistURL, result.AddedTracks)
		return nil
	case errors.As(err, &addErr):
		// The playlist exists with a partial fill; the match report above
		// still stands.
		fmt.Printf("Playlist %q created: %s (%d tracks added, %d failed)\n",
			result.Name, result.PlaylistURL, result.AddedTracks, result.FailedTracks)
		return &exitError{code: exitRuntime, err: err}
	default:
		return &exitError{code: exitRuntime, err: err}
	}
}

func writeReport(report *core.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()

	if err := report.Render(f); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

func runAuth(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	if err := validateCredentials(); err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	norm, err := fuzzy.NewNormalizer(fuzzy.DefaultOptions(0))
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	client := spotify.NewClient(&config.Spotify, &config.Search, 1, norm, logger.Named("spotify"))
	if err := client.Authenticate(ctx); err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("spotify authentication failed: %w", err)}
	}

	fmt.Println("Authentication successful; token cached at", config.Spotify.TokenPath)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	if v, _ := cmd.Flags().GetString("host"); v != "" {
		config.Server.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v > 0 {
		config.Server.Port = v
	}
	if v, _ := cmd.Flags().GetInt("throttle-per-minute"); v > 0 {
		config.Server.ThrottlePerMinute = v
	}

	// Prefer a cached user token so create-playlist works; fall back to a
	// search-only session.
	service, err := buildService(ctx, hasCachedToken())
	if err != nil {
		return err
	}

	server := httpserver.NewServer(&config.Server, service, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})

	logger.Info("songlift serving",
		zap.String("addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return &exitError{code: exitRuntime, err: err}
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func hasCachedToken() bool {
	_, err := os.Stat(config.Spotify.TokenPath)
	return err == nil
}
