package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "settlement-platform/internal/api/http"
	"settlement-platform/internal/audit"
	"settlement-platform/internal/auth"
	brandrepo "settlement-platform/internal/brands/infrastructure/postgres"
	"settlement-platform/internal/fees"
	feesrepo "settlement-platform/internal/fees/infrastructure/postgres"
	"settlement-platform/internal/notify"
	"settlement-platform/internal/observability/metrics"
	paymentsrepo "settlement-platform/internal/payments/infrastructure/postgres"
	"settlement-platform/internal/settlement/application"
	settlementrepo "settlement-platform/internal/settlement/infrastructure/postgres"
	settlementinterfaces "settlement-platform/internal/settlement/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type config struct {
	DatabaseURL    string
	HTTPAddr       string
	JWTSecret      string
	Timezone       string
	WebhookURL     string
	GridSize       int
	ChunkSize      int
	ClaimSize      int
	TierWriter     string
	ConfirmAt      string
	DefaultFeeRate float64
}

// fileConfig mirrors the optional SETTLEMENT_CONFIG yaml overlay.
// Environment variables fill whatever the file leaves empty.
type fileConfig struct {
	HTTPAddr       string  `yaml:"http_addr"`
	Timezone       string  `yaml:"timezone"`
	WebhookURL     string  `yaml:"webhook_url"`
	GridSize       int     `yaml:"grid_size"`
	ChunkSize      int     `yaml:"chunk_size"`
	ClaimSize      int     `yaml:"claim_size"`
	TierWriter     string  `yaml:"tier_writer"`
	ConfirmAt      string  `yaml:"confirm_at"`
	DefaultFeeRate float64 `yaml:"default_fee_rate"`
}

func loadConfig() config {
	var overlay fileConfig
	if path := os.Getenv("SETTLEMENT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			log.Fatalf("parse %s: %v", path, err)
		}
	}

	cfg := config{
		DatabaseURL:    getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")),
		HTTPAddr:       firstNonEmpty(overlay.HTTPAddr, getenvDefault("HTTP_ADDR", ":8080")),
		JWTSecret:      os.Getenv("AUTH_JWT_SECRET"),
		Timezone:       firstNonEmpty(overlay.Timezone, getenvDefault("SETTLEMENT_TIMEZONE", "Asia/Seoul")),
		WebhookURL:     firstNonEmpty(overlay.WebhookURL, os.Getenv("ALERT_WEBHOOK_URL")),
		GridSize:       overlay.GridSize,
		ChunkSize:      overlay.ChunkSize,
		ClaimSize:      overlay.ClaimSize,
		TierWriter:     firstNonEmpty(overlay.TierWriter, getenvDefault("TIER_WRITER", "upsert")),
		ConfirmAt:      firstNonEmpty(overlay.ConfirmAt, getenvDefault("CONFIRM_AT", "02:00")),
		DefaultFeeRate: overlay.DefaultFeeRate,
	}
	if cfg.GridSize == 0 {
		cfg.GridSize = getenvIntDefault("INGEST_GRID_SIZE", 4)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = getenvIntDefault("INGEST_CHUNK_SIZE", 2000)
	}
	if cfg.ClaimSize == 0 {
		cfg.ClaimSize = getenvIntDefault("AGGREGATION_CLAIM_SIZE", 10000)
	}
	if cfg.DefaultFeeRate == 0 {
		cfg.DefaultFeeRate = getenvFloatDefault("DEFAULT_FEE_RATE", 3)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL (or PG_DSN) is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func main() {
	logger := log.New(os.Stdout, "settlement-platform ", log.LstdFlags|log.LUTC)
	cfg := loadConfig()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("load timezone %q: %v", cfg.Timezone, err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		logger.Fatalf("ping database: %v", err)
	}

	metrics.Init(db, logger)

	auditLog := audit.NewRepository(db)
	brandChecker := auth.NewBrandChecker(db)
	brandRepository := brandrepo.NewBrandRepository(db)

	tierWriter := settlementrepo.WriterByName(cfg.TierWriter)
	if tierWriter == nil {
		logger.Fatalf("unknown tier writer %q (want upsert, batch, prepared or raw)", cfg.TierWriter)
	}
	store, err := settlementrepo.NewStore(db,
		settlementrepo.WithTierWriter(tierWriter),
	)
	if err != nil {
		logger.Fatalf("settlement store: %v", err)
	}

	paymentRepository := paymentsrepo.NewPaymentRepository(db)
	feeCalculator, err := fees.NewCalculator(
		feesrepo.NewPolicyRepository(db),
		decimal.NewFromFloat(cfg.DefaultFeeRate),
	)
	if err != nil {
		logger.Fatalf("fee calculator: %v", err)
	}

	recorder := metrics.Recorder{}

	var ingestionOpts []application.IngestionOption
	if cfg.WebhookURL != "" {
		ingestionOpts = append(ingestionOpts,
			application.WithIngestionNotifier(notify.NewWebhookNotifier(cfg.WebhookURL)),
		)
	}
	ingestion, err := application.NewIngestionJob(
		paymentRepository, store, feeCalculator, loc,
		cfg.GridSize, cfg.ChunkSize, recorder, logger,
		ingestionOpts...,
	)
	if err != nil {
		logger.Fatalf("ingestion job: %v", err)
	}

	engine, err := application.NewAggregationEngine(store, cfg.ClaimSize, cfg.Timezone, recorder, logger)
	if err != nil {
		logger.Fatalf("aggregation engine: %v", err)
	}
	if reset, err := engine.RecoverStuck(context.Background()); err != nil {
		logger.Printf("recover stuck settlements: %v", err)
	} else if reset > 0 {
		logger.Printf("recovered %d stuck settlement rows", reset)
	}

	confirmations, err := application.NewConfirmationJob(store, cfg.Timezone, recorder, logger, nil)
	if err != nil {
		logger.Fatalf("confirmation job: %v", err)
	}

	scheduler := application.NewScheduler(ingestion, engine, confirmations, loc, cfg.ConfirmAt, logger, nil)
	go scheduler.Start(context.Background())

	adminHandler, err := settlementinterfaces.NewAdminHandler(ingestion, engine, confirmations, loc, auditLog, logger)
	if err != nil {
		logger.Fatalf("admin handler: %v", err)
	}
	reportsHandler, err := settlementinterfaces.NewReportsHandler(store)
	if err != nil {
		logger.Fatalf("reports handler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/settlements", apihttp.NewSettlementsHandler(store).WithTenantChecker(brandChecker))
	mux.Handle("/api/v1/stats", apihttp.NewStatsHandler(store, loc))
	mux.Handle("/api/v1/exports/settlements.csv", apihttp.NewExportSettlementsCSVHandler(store))
	mux.Handle("/api/v1/brands", apihttp.NewBrandsHandler(brandRepository))
	mux.Handle("/api/v1/admin/", adminHandler)
	mux.Handle("/api/v1/reports/monthly/", reportsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger),
	}

	logger.Printf("listening on %s (timezone %s, tier writer %s)", cfg.HTTPAddr, cfg.Timezone, cfg.TierWriter)
	logger.Fatal(server.ListenAndServe())
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
