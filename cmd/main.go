package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voicebot/handler"
	"voicebot/internal/integrations/openai"
	"voicebot/internal/integrations/paramstore"
	"voicebot/internal/metrics"
	"voicebot/internal/repository"
	"voicebot/internal/session"
	"voicebot/internal/usecase"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	stateTable := os.Getenv("STATE_TABLE")
	chatBaseURL := envString("CHAT_BASE_URL", openai.DefaultBaseURL)
	chatModel := envString("CHAT_MODEL", openai.DefaultChatModel)
	chatTemperature := envFloat("CHAT_TEMPERATURE", openai.DefaultTemperature)
	transcriptionModel := envString("TRANSCRIPTION_MODEL", openai.DefaultTranscriptionModel)
	maxTextLen := envInt("MAX_TEXT_LENGTH", 2000)
	idleTimeout := envDuration("SESSION_IDLE_TIMEOUT", time.Hour)
	listenAddr := envString("LISTEN_ADDR", ":8080")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient, paramPrefix,
		openai.WithBaseURL(chatBaseURL),
		openai.WithChatModel(chatModel),
		openai.WithTemperature(float32(chatTemperature)),
		openai.WithTranscriptionModel(transcriptionModel),
	)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithMetrics(m),
		usecase.WithMaxTextLength(maxTextLen),
	}
	if stateTable != "" {
		journal, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
		if err != nil {
			slog.Error("failed to create journal client", "err", err)
			os.Exit(1)
		}
		opts = append(opts, usecase.WithJournal(journal))
	}

	// ---- Handler ----
	sessions := session.NewManager(idleTimeout)
	svc, err := usecase.NewService(openaiClient, openaiClient, sessions, opts...)
	if err != nil {
		slog.Error("failed to create service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc, logger)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if inLambda(os.Getenv) {
		warnSessionScope(logger, os.Getenv)
		lambda.Start(h.Handle)
		return
	}

	if err := serveHTTP(listenAddr, h, m, reg, sessions, idleTimeout); err != nil {
		slog.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func serveHTTP(addr string, h *handler.Handler, m *metrics.Metrics, reg *prometheus.Registry, sessions *session.Manager, idleTimeout time.Duration) error {
	adapter, err := handler.NewHTTPAdapter(h, m)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", adapter)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go evictIdleSessions(ctx, sessions, m, idleTimeout)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func evictIdleSessions(ctx context.Context, sessions *session.Manager, m *metrics.Metrics, idleTimeout time.Duration) {
	ticker := time.NewTicker(max(idleTimeout/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.EvictIdle(); n > 0 {
				slog.Info("evicted idle sessions", "count", n)
			}
			m.SetActiveSessions(sessions.Len())
		}
	}
}

func inLambda(getenv func(string) string) bool {
	return getenv("AWS_LAMBDA_RUNTIME_API") != ""
}

// warnSessionScope reports that sessions live in this container's memory.
// Conversations stay whole only when the function runs with reserved
// concurrency 1, so every request for a session reaches the same store.
func warnSessionScope(logger *slog.Logger, getenv func(string) string) {
	logger.Warn("sessions are held in container memory; deploy with reserved concurrency 1",
		"function", getenv("AWS_LAMBDA_FUNCTION_NAME"),
		"journal_table", getenv("STATE_TABLE"),
	)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func logLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
