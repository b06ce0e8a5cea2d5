package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metacodeltd/mookh-tickets/internal/app"
	"github.com/metacodeltd/mookh-tickets/internal/clock"
	"github.com/metacodeltd/mookh-tickets/internal/gateway"
	"github.com/metacodeltd/mookh-tickets/internal/storage/memory"
	"github.com/metacodeltd/mookh-tickets/internal/storage/postgres"
	transporthttp "github.com/metacodeltd/mookh-tickets/internal/transport/http"
	"github.com/metacodeltd/mookh-tickets/migrations"
)

const defaultPort = "8080"
const defaultCORSOrigins = "http://localhost:5173,http://127.0.0.1:5173"
const defaultGatewayBaseURL = "https://backend.payhero.co.ke"
const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()
	loadEnvFile(logger)

	port := os.Getenv("PORT")
	if port == "" {
		logger.Printf("WARN: PORT not set, using default %s", defaultPort)
		port = defaultPort
	}

	corsEnv := os.Getenv("CORS_ORIGINS")
	if corsEnv == "" {
		logger.Printf("WARN: CORS_ORIGINS not set, using default local origins")
		corsEnv = defaultCORSOrigins
	}

	gwCfg := gatewayConfigFromEnv(logger)
	webhookSecret := os.Getenv("PAYHERO_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Printf("WARN: PAYHERO_WEBHOOK_SECRET not set, callback signatures will not be verified")
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		paymentRepo app.PaymentRepository
		ticketRepo  app.TicketRepository
	)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(startupCtx, dbURL)
		if err != nil {
			log.Fatalf("connect to db: %v", err)
		}
		defer pool.Close()

		if err := pool.Ping(startupCtx); err != nil {
			log.Fatalf("db ping: %v", err)
		}
		if err := migrations.Apply(startupCtx, pool); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
		paymentRepo = postgres.NewPaymentRepository(pool)
		ticketRepo = postgres.NewTicketRepository(pool)
	} else {
		logger.Printf("WARN: DATABASE_URL not set, payments will not survive a restart")
		paymentRepo = memory.NewPaymentRepository()
		ticketRepo = memory.NewTicketRepository()
	}

	clk := clock.NewSystem()
	gw := gateway.NewClient(gwCfg, clk, logger)
	ticketSvc := app.NewTicketService(ticketRepo, clk)
	paymentSvc := app.NewPaymentService(paymentRepo, gw, ticketSvc, clk, app.WithLogger(logger))
	defer paymentSvc.Close()

	mux := http.NewServeMux()
	mux.Handle("/health", transporthttp.HealthHandler(transporthttp.GatewayInfo{
		AccountID:        gwCfg.AccountID,
		ChannelID:        gwCfg.ChannelID,
		HasAuthToken:     gwCfg.AuthToken != "",
		HasWebhookSecret: webhookSecret != "",
		CallbackURL:      gwCfg.CallbackURL,
	}))
	mux.Handle("/payments", transporthttp.HandleInitiatePayment(paymentSvc))
	mux.Handle("/payments/callback", transporthttp.HandleGatewayCallback(paymentSvc, webhookSecret, logger))
	mux.Handle("/payments/", transporthttp.HandlePayment(paymentSvc, paymentSvc, paymentSvc, ticketSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	corsOrigins := parseCSV(corsEnv)
	handler := transporthttp.RequestLogger(transporthttp.CORS(corsOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	log.Printf("api listening on :%s", port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}

func gatewayConfigFromEnv(logger *log.Logger) gateway.Config {
	cfg := gateway.Config{
		BaseURL:     os.Getenv("PAYHERO_BASE_URL"),
		AccountID:   os.Getenv("PAYHERO_ACCOUNT_ID"),
		AuthToken:   os.Getenv("PAYHERO_AUTH_TOKEN"),
		CallbackURL: os.Getenv("PAYHERO_CALLBACK_URL"),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGatewayBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AuthToken == "" {
		logger.Printf("WARN: PAYHERO_AUTH_TOKEN not set, gateway calls will be rejected")
	}

	if raw := os.Getenv("PAYHERO_CHANNEL_ID"); raw != "" {
		channel, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("PAYHERO_CHANNEL_ID must be numeric, got %q", raw)
		}
		cfg.ChannelID = channel
	} else {
		logger.Printf("WARN: PAYHERO_CHANNEL_ID not set")
	}
	return cfg
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func loadEnvFile(logger *log.Logger) {
	path, err := findEnvFile()
	if err != nil {
		logger.Printf("WARN: failed to locate .env: %v", err)
		return
	}
	if path == "" {
		logger.Printf("WARN: .env not found in current or parent directories")
		return
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Printf("WARN: failed to open %s: %v", path, err)
		return
	}
	if err := parseEnvFile(logger, file); err != nil {
		logger.Printf("WARN: failed to load %s: %v", path, err)
	} else {
		logger.Printf("loaded env from %s", path)
	}
	_ = file.Close()
}

func findEnvFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

func parseEnvFile(logger *log.Logger, file *os.File) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		value = trimQuotes(value)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			logger.Printf("WARN: failed to set %s from env file", key)
		}
	}
	return scanner.Err()
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if (value[0] == '"' && value[len(value)-1] == '"') ||
		(value[0] == '\'' && value[len(value)-1] == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
