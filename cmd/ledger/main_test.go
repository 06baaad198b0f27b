package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmanzanog/share-ledger/internal/application"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/config"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/bootstrap"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/memory"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestSetupLogger(t *testing.T) {
	// Capture the original logger to restore it later
	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	logger := setupLogger("debug")

	if logger == nil {
		t.Fatal("setupLogger returned nil logger")
	}

	if slog.Default() != logger {
		t.Error("setupLogger did not set the logger as default")
	}

	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func newTestLedger(t *testing.T) *application.LedgerService {
	t.Helper()
	store := memory.NewStore()
	seeder := application.NewSeeder(store, application.DefaultRetryPolicy())
	if _, err := seeder.SeedShares(context.Background(), application.DefaultSeedShares); err != nil {
		t.Fatalf("failed to seed shares: %v", err)
	}
	return application.NewLedgerService(store, application.DefaultRetryPolicy())
}

func TestBuildServer(t *testing.T) {
	// Suppress Gin debug output during test
	t.Setenv("GIN_MODE", "release")

	cfg := &config.Config{
		ServerHost: "localhost",
		ServerPort: "8080",
	}

	server := buildServer(cfg, newTestLedger(t))

	if server == nil {
		t.Fatal("buildServer returned nil server")
	}

	expectedAddr := "localhost:8080"
	if server.Addr != expectedAddr {
		t.Errorf("expected server address %q, got %q", expectedAddr, server.Addr)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status code 200, got %d", w.Code)
	}
}

func TestBuildServer_DifferentPorts(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	testCases := []struct {
		name string
		host string
		port string
		want string
	}{
		{name: "default localhost", host: "localhost", port: "8080", want: "localhost:8080"},
		{name: "all interfaces", host: "0.0.0.0", port: "3000", want: "0.0.0.0:3000"},
		{name: "custom port", host: "127.0.0.1", port: "9090", want: "127.0.0.1:9090"},
	}

	ledger := newTestLedger(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := buildServer(&config.Config{ServerHost: tc.host, ServerPort: tc.port}, ledger)
			if server.Addr != tc.want {
				t.Errorf("expected server address %q, got %q", tc.want, server.Addr)
			}
		})
	}
}

func TestBuildServer_TradeFlow(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	server := buildServer(&config.Config{ServerHost: "localhost", ServerPort: "0"}, newTestLedger(t))

	call := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Owner-ID", "carol")
		w := httptest.NewRecorder()
		server.Handler.ServeHTTP(w, req)
		return w
	}

	if w := call(http.MethodPost, "/api/v1/shares/APL/buy", `{"unit": 5}`); w.Code != http.StatusNotFound {
		t.Errorf("buy without portfolio: expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if w := call(http.MethodPost, "/api/v1/portfolios/default", ""); w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := call(http.MethodPost, "/api/v1/shares/APL/buy", `{"unit": 5}`); w.Code != http.StatusCreated {
		t.Fatalf("buy: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	for _, body := range []string{`{"unit": null}`, `{"unit": 1e99999}`, `{"unit": "0.000000001"}`} {
		w := call(http.MethodPost, "/api/v1/shares/APL/buy", body)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"invalid_quantity"`) {
			t.Errorf("buy %s: expected 400 invalid_quantity, got %d: %s", body, w.Code, w.Body.String())
		}
	}

	w := call(http.MethodPost, "/api/v1/shares/APL/sell", `{"unit": 7}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversell: expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"insufficient_assets"`) || !strings.Contains(w.Body.String(), `"slack":2`) {
		t.Errorf("unexpected oversell body: %s", w.Body.String())
	}

	if w := call(http.MethodPost, "/api/v1/shares/APL/sell", `{"unit": 5}`); w.Code != http.StatusOK {
		t.Errorf("sell: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBuildPriceUpdater(t *testing.T) {
	store := memory.NewStore()

	if u := buildPriceUpdater(&config.Config{MarketDataProvider: config.MarketDataProviderNone}, store); u != nil {
		t.Error("expected no price updater without a provider")
	}

	cfg := &config.Config{
		MarketDataProvider:   config.MarketDataProviderFinnhub,
		FinnhubAPIKey:        "test-api-key",
		FinnhubRateLimit:     1,
		PriceRefreshInterval: time.Minute,
		TxMaxRetries:         3,
		TxRetryBaseDelay:     time.Millisecond,
	}
	if u := buildPriceUpdater(cfg, store); u == nil {
		t.Error("expected a price updater for finnhub")
	}
}

func TestApp_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	updater := application.NewPriceUpdater(noopRefresher{}, time.Hour)
	go updater.Start(ctx)

	closed := false
	app := &App{
		Server:        &http.Server{ReadHeaderTimeout: time.Second},
		PriceUpdater:  updater,
		CancelContext: cancel,
		CloseStore: func() error {
			closed = true
			return nil
		},
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !closed {
		t.Error("expected store to be closed")
	}

	select {
	case <-updater.Done():
	case <-time.After(time.Second):
		t.Error("price updater did not stop")
	}
}

func TestApp_Shutdown_ReportsCloseError(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")
	app := &App{
		Server:        &http.Server{ReadHeaderTimeout: time.Second},
		CancelContext: cancel,
		CloseStore:    func() error { return boom },
	}

	if err := app.Shutdown(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected close error, got %v", err)
	}
}

type noopRefresher struct{}

func (noopRefresher) RefreshPrices(context.Context) error { return nil }

// TestMain is a special test function that runs before all tests
// We use it to setup global test configuration
func TestMain(m *testing.M) {
	// Suppress all logging during tests to reduce noise
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	os.Exit(m.Run())
}

// TestFullInitializationFlow boots a postgres store and serves requests from it.
func TestFullInitializationFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	cfg := &config.Config{
		DBDriver:         config.DBDriverPostgres,
		DBDSN:            connStr,
		ServerHost:       "localhost",
		ServerPort:       "0",
		TxMaxRetries:     3,
		TxRetryBaseDelay: time.Millisecond,
	}

	store, closeStore, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = closeStore() }()

	seeder := application.NewSeeder(store, retryPolicy(cfg))
	if _, err := seeder.SeedShares(ctx, application.DefaultSeedShares); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	server := buildServer(cfg, application.NewLedgerService(store, retryPolicy(cfg)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shares", nil)
	req.Header.Set("X-Owner-ID", "carol")
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("list shares failed: expected 200, got %d", w.Code)
	}
	for _, seed := range application.DefaultSeedShares {
		if !strings.Contains(w.Body.String(), `"`+domain.NormalizeSymbol(seed.Symbol)+`"`) {
			t.Errorf("expected %s in catalog: %s", seed.Symbol, w.Body.String())
		}
	}
}
