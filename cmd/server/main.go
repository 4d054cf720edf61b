package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Skufu/rxcompass/internal/artifact"
	"github.com/Skufu/rxcompass/internal/logging"
	"github.com/Skufu/rxcompass/internal/model"
	"github.com/Skufu/rxcompass/internal/predict"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string
	EnableDB    bool

	ModelPath            string
	EncoderPath          string
	Explainer            model.ExplainerMode
	AttributionTimeout   time.Duration
	SamplingPermutations int
	SamplingSeed         uint64

	MaxUploadBytes int64
	CORSOrigins    []string
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.Init(logging.Options{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}

	ctx := context.Background()
	var (
		db  HealthChecker
		src artifact.Source = artifact.FileSource{}
	)
	if cfg.EnableDB {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := artifact.Connect(connectCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer pool.Close()
		db = pool
		src = artifact.PostgresSource{Pool: pool}
	}

	svc := predict.Load(ctx, src, predict.LoadConfig{
		ModelPath:    cfg.ModelPath,
		EncoderPath:  cfg.EncoderPath,
		Explainer:    cfg.Explainer,
		Permutations: cfg.SamplingPermutations,
		Seed:         cfg.SamplingSeed,
		Timeout:      cfg.AttributionTimeout,
	}, logger)

	router := setupRouter(svc, db, routerOptions{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         logger,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.AttributionTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	logger.Info("server listening", slog.String("addr", server.Addr))
	waitForShutdown(server, logger)
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		EnableDB:    strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		ModelPath:   getEnv("MODEL_PATH", "models/model.json"),
		EncoderPath: getEnv("ENCODER_PATH", "models/label_encoder.yaml"),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.Explainer, err = model.ParseExplainerMode(getEnv("ATTRIBUTION_EXPLAINER", "auto")); err != nil {
		return nil, fmt.Errorf("ATTRIBUTION_EXPLAINER: %w", err)
	}
	if cfg.AttributionTimeout, err = time.ParseDuration(getEnv("ATTRIBUTION_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("ATTRIBUTION_TIMEOUT: %w", err)
	}
	if cfg.AttributionTimeout <= 0 {
		return nil, fmt.Errorf("ATTRIBUTION_TIMEOUT must be positive, got %s", cfg.AttributionTimeout)
	}
	if cfg.SamplingPermutations, err = positiveInt("SAMPLING_PERMUTATIONS", "16"); err != nil {
		return nil, err
	}
	if cfg.SamplingSeed, err = strconv.ParseUint(getEnv("SAMPLING_SEED", "42"), 10, 64); err != nil {
		return nil, fmt.Errorf("SAMPLING_SEED: %w", err)
	}
	maxUpload, err := positiveInt("MAX_UPLOAD_BYTES", strconv.Itoa(16<<20))
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	for _, origin := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	return cfg, nil
}

func positiveInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
