package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/handlers"
	"eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/services"

	"github.com/ternarybob/arbor"
)

const serviceName = "eye-of-horus"

func main() {
	// Parse command line flags
	var (
		configPath     = flag.String("config", "", "Path to configuration file")
		mode           = flag.String("mode", "", "Environment mode: 'dev', 'development', 'prod', or 'production'")
		quiet          = flag.Bool("quiet", false, "Suppress banner output")
		version        = flag.Bool("version", false, "Show version information")
		help           = flag.Bool("help", false, "Show help message")
		validateConfig = flag.Bool("validate", false, "Validate configuration file and exit")
		authorizeDrive = flag.Bool("authorize-drive", false, "Authorise Google Drive access and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s (build: %s, commit: %s)\n", serviceName, common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		os.Exit(0)
	}

	if *help {
		showHelp()
		os.Exit(0)
	}

	// Load configuration with priority: defaults -> TOML -> .env -> environment
	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Server.Environment = parseMode(*mode)
	}

	if *validateConfig {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	if err := common.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := common.GetLogger()

	logger.Info().
		Str("version", common.GetVersion()).
		Str("build", common.GetBuild()).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Eye of Horus")

	storage, err := services.NewStorage(&cfg.Storage)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer storage.Close()

	if *authorizeDrive {
		if err := runDriveAuthorization(cfg, storage, logger); err != nil {
			logger.Error().Err(err).Msg("Drive authorisation failed")
			os.Exit(1)
		}
		return
	}

	if !*quiet {
		common.PrintBanner(cfg, *configPath, common.GetLogFilePath())
	}

	pruneRuns(cfg, storage, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	webServer, err := buildServer(ctx, cfg, storage, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize services")
		os.Exit(1)
	}

	if err := webServer.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start web server")
		os.Exit(1)
	}

	logger.Info().Int("port", cfg.Server.Port).Msg("Server running - press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	if !*quiet {
		common.PrintShutdownBanner(serviceName)
	}
	if err := webServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping web server")
	}

	logger.Info().Msg("Eye of Horus shutdown complete")
}

// buildServer wires every collaborator. Integrations that are not configured
// stay nil and their endpoints answer NOT_CONFIGURED.
func buildServer(ctx context.Context, cfg *common.Config, storage interfaces.Storage, logger arbor.ILogger) (interfaces.WebService, error) {
	if !cfg.HasAPIKeys() {
		logger.Warn().Msg("No API keys configured (VALID_API_KEYS); every protected request will be rejected")
	}

	prompts, err := services.NewPromptBuilder(&cfg.Prompts)
	if err != nil {
		return nil, err
	}

	var store interfaces.ObjectStore
	if cfg.S3.Bucket != "" {
		s3Store, err := services.NewS3Store(ctx, &cfg.S3, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Object storage unavailable")
		} else {
			store = s3Store
		}
	} else {
		logger.Warn().Msg("S3_BUCKET_NAME not set; audio processing and s3:// transcripts are disabled")
	}

	fetcher := services.NewHTTPFetcher(&cfg.Download, store, logger)

	var backend interfaces.ReasoningBackend
	var transcriber interfaces.Transcriber
	if cfg.Gemini.APIKey != "" {
		gemini, err := services.NewGeminiBackend(ctx, &cfg.Gemini, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Reasoning backend unavailable")
		} else {
			backend = gemini
			transcriber = gemini
		}
	} else {
		logger.Warn().Msg("GOOGLE_GEMINI_API_KEY not set; analysis and transcription are disabled")
	}

	var recordings interfaces.RecordingSource
	if cfg.Drive.CredentialsFile != "" {
		drive, err := services.NewDriveSource(&cfg.Drive, storage, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Drive recordings unavailable")
		} else {
			recordings = drive
		}
	}

	var converter interfaces.AudioConverter
	if cfg.Audio.FFmpegPath != "" {
		converter = services.NewFFmpegConverter(&cfg.Audio, logger)
	}

	wsHub := handlers.NewWebSocketHub(logger, cfg.Server.AllowedOrigins)

	deps := handlers.Dependencies{
		Config:     cfg,
		Storage:    storage,
		Fetcher:    fetcher,
		Recordings: recordings,
		Events:     wsHub,
		Logger:     logger,
	}
	if backend != nil {
		deps.Analyzer = services.NewAnalyzer(backend, prompts, logger)
	}
	if transcriber != nil && store != nil {
		deps.Audio = services.NewAudioPipeline(cfg, services.AudioPipelineDeps{
			Fetcher:     fetcher,
			Recordings:  recordings,
			Converter:   converter,
			Transcriber: transcriber,
			Store:       store,
		}, logger)
	}

	return services.NewWebServer(cfg, handlers.NewAPIHandlers(deps), wsHub, logger), nil
}

func pruneRuns(cfg *common.Config, storage interfaces.Storage, logger arbor.ILogger) {
	if cfg.Storage.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Storage.RetentionDays)
	deleted, err := storage.PruneRuns(cutoff)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune run history")
		return
	}
	if deleted > 0 {
		logger.Info().Int("deleted", deleted).Int("retention_days", cfg.Storage.RetentionDays).Msg("Pruned run history")
	}
}

// runDriveAuthorization walks the operator through the OAuth consent flow and
// stores the resulting token.
func runDriveAuthorization(cfg *common.Config, storage interfaces.Storage, logger arbor.ILogger) error {
	drive, err := services.NewDriveSource(&cfg.Drive, storage, logger)
	if err != nil {
		return err
	}

	fmt.Println("Open the following URL, grant access and paste the authorisation code:")
	fmt.Println()
	fmt.Println("  " + drive.AuthCodeURL(serviceName))
	fmt.Println()
	fmt.Print("Code: ")

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read authorisation code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorisation code entered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := drive.Exchange(ctx, code); err != nil {
		return err
	}

	fmt.Println("Drive access authorised")
	return nil
}

func parseMode(mode string) string {
	mode = strings.ToLower(mode)
	switch mode {
	case "prod", "production":
		return "production"
	default:
		return "development"
	}
}

func showHelp() {
	fmt.Printf("%s v%s - Meeting Transcript Triage Service\n\n", serviceName, common.GetVersion())
	fmt.Println("Usage:")
	fmt.Printf("  %s [flags]\n\n", os.Args[0])
	fmt.Println("Flags:")
	fmt.Println("  -mode string        Environment mode: 'dev', 'development', 'prod', or 'production'")
	fmt.Println("  -config string      Configuration file path")
	fmt.Println("  -quiet              Suppress banner output")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help               Show help message")
	fmt.Println("  -validate           Validate configuration file and exit")
	fmt.Println("  -authorize-drive    Authorise Google Drive access and exit")
	fmt.Println("\nExamples:")
	fmt.Printf("  %s                                  # Run the API server\n", os.Args[0])
	fmt.Printf("  %s -mode prod                       # Run in production mode\n", os.Args[0])
	fmt.Printf("  %s -config /path/to/config.toml     # Use custom config file\n", os.Args[0])
	fmt.Printf("  %s -authorize-drive                 # Store a Google Drive token\n", os.Args[0])
}
