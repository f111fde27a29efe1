package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/handlers"
	"eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/middleware"

	"github.com/ternarybob/arbor"
)

// webServer exposes the triage API.
type webServer struct {
	config      *common.Config
	server      *http.Server
	logger      arbor.ILogger
	apiHandlers *handlers.APIHandlers
	wsHub       *handlers.WebSocketHub
	mu          sync.RWMutex
	running     bool
	startTime   time.Time
}

// NewRouter builds the route table. Every route except /health sits behind
// the API key gate.
func NewRouter(cfg *common.Config, apiHandlers *handlers.APIHandlers, wsHub *handlers.WebSocketHub, logger arbor.ILogger) http.Handler {
	mux := http.NewServeMux()

	// Create middleware chain
	logMiddleware := middleware.Logging(logger)
	corsMiddleware := middleware.CORS(cfg.Server.AllowedOrigins, cfg.Auth.HeaderName)
	authMiddleware := middleware.APIKey(cfg.Auth.HeaderName, cfg.Auth.APIKeys, logger)

	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return logMiddleware(corsMiddleware(authMiddleware(h)))
	}

	mux.HandleFunc("/{$}", protected(apiHandlers.RootHandler))
	mux.HandleFunc("/health", logMiddleware(corsMiddleware(apiHandlers.HealthHandler)))
	mux.HandleFunc("/api/v1/analyze-transcription", protected(apiHandlers.AnalyzeTranscriptHandler))
	mux.HandleFunc("/api/v1/process-audio/{$}", protected(apiHandlers.ProcessAudioHandler))
	mux.HandleFunc("/api/v1/process-audio", protected(apiHandlers.ProcessAudioHandler))
	mux.HandleFunc("/api/v1/recordings", protected(apiHandlers.RecordingsHandler))
	mux.HandleFunc("/api/v1/runs", protected(apiHandlers.RunsHandler))

	// The websocket upgrade needs the raw ResponseWriter, so no request logging.
	if wsHub != nil {
		mux.HandleFunc("/ws", corsMiddleware(authMiddleware(wsHub.WebSocketHandler)))
	}

	mux.HandleFunc("/", protected(apiHandlers.NotFoundHandler))

	return mux
}

func NewWebServer(cfg *common.Config, apiHandlers *handlers.APIHandlers, wsHub *handlers.WebSocketHub, logger arbor.ILogger) interfaces.WebService {
	return &webServer{
		config:      cfg,
		logger:      logger,
		apiHandlers: apiHandlers,
		wsHub:       wsHub,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
			Handler:           NewRouter(cfg, apiHandlers, wsHub, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		},
	}
}

// Start starts the web server
func (ws *webServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", ws.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.server.Addr, err)
	}

	ws.mu.Lock()
	ws.running = true
	ws.startTime = time.Now()
	ws.mu.Unlock()

	go func() {
		ws.logger.Info().Str("address", listener.Addr().String()).Msg("Starting web server")
		if err := ws.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			ws.logger.Error().Err(err).Msg("Web server error")
		}
		ws.mu.Lock()
		ws.running = false
		ws.mu.Unlock()
	}()
	return nil
}

// Stop stops the web server
func (ws *webServer) Stop() error {
	ws.mu.Lock()
	ws.running = false
	ws.mu.Unlock()

	if ws.wsHub != nil {
		ws.wsHub.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws.logger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// IsRunning returns true if the web server is running
func (ws *webServer) IsRunning() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.running
}
