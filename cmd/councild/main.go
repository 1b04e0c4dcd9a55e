// Command councild runs the council execution engine: an HTTP+WebSocket
// server driving the Stage Orchestrator over a configured model client
// stack and persistence layer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemulinna/council/internal/cache"
	"github.com/teemulinna/council/internal/config"
	"github.com/teemulinna/council/internal/cost"
	"github.com/teemulinna/council/internal/db"
	"github.com/teemulinna/council/internal/modelclient"
	"github.com/teemulinna/council/internal/orchestrator"
	"github.com/teemulinna/council/internal/ratelimit"
	"github.com/teemulinna/council/internal/resilience"
	"github.com/teemulinna/council/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "councild",
		Short: "Council execution engine",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP+WebSocket server",
		RunE:  runServe,
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}

	bindConfigFlags(serveCmd.Flags())
	bindConfigFlags(migrateCmd.Flags())

	viper.SetEnvPrefix("COUNCIL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bindConfigFlags(f *pflag.FlagSet) {
	f.String("host", "0.0.0.0", "HTTP listen host")
	f.Int("port", 8080, "HTTP listen port")
	f.String("database-path", "./council.db", "path to the sqlite database file")
	f.String("openrouter-api-key", "", "OpenRouter API key")
	f.String("anthropic-api-key", "", "Anthropic API key")
	f.String("openai-api-key", "", "OpenAI API key")
	f.String("cors-origins", "", "comma-separated allowed CORS/WS origins (empty allows any)")
	f.String("cache-backend", "memory", "response cache backend: memory or redis")
	f.String("redis-addr", "localhost:6379", "redis address, used when cache-backend=redis")
	f.Int("cache-ttl-seconds", 3600, "response cache entry TTL")
	f.Float64("budget-ceiling-usd", 50.0, "hard spend ceiling before execution is refused")
	f.Float64("budget-floor-standard", 10.0, "remaining-budget floor below which premium tier is downgraded")
	f.Float64("budget-floor-tight", 2.0, "remaining-budget floor below which only budget tier is allowed")
	f.Int("quorum", 1, "resilience layer quorum")
	f.Int("retry-base-seconds", 1, "resilience layer retry backoff base")
	f.Int("retry-count", 2, "resilience layer retry attempts")
	f.Int("max-conn-per-client", 3, "max concurrent WebSocket connections per client")
	f.Int("max-requests-per-window", 10, "max execute requests per client per window")
	f.Int("rate-window-seconds", 60, "rate limiter window length")
	f.Float64("hourly-cost-ceiling", 5.0, "max spend per client per rolling hour")
	f.Int("safety-max-input-chars", 10000, "max sanitized query length")

	bind := func(key, flag string) { _ = viper.BindPFlag(key, f.Lookup(flag)) }
	bind("host", "host")
	bind("port", "port")
	bind("database_path", "database-path")
	bind("openrouter_api_key", "openrouter-api-key")
	bind("anthropic_api_key", "anthropic-api-key")
	bind("openai_api_key", "openai-api-key")
	bind("cors_origins", "cors-origins")
	bind("cache_backend", "cache-backend")
	bind("redis_addr", "redis-addr")
	bind("cache_ttl_seconds", "cache-ttl-seconds")
	bind("budget_ceiling_usd", "budget-ceiling-usd")
	bind("budget_floor_standard", "budget-floor-standard")
	bind("budget_floor_tight", "budget-floor-tight")
	bind("quorum", "quorum")
	bind("retry_base_seconds", "retry-base-seconds")
	bind("retry_count", "retry-count")
	bind("max_conn_per_client", "max-conn-per-client")
	bind("max_requests_per_window", "max-requests-per-window")
	bind("rate_window_seconds", "rate-window-seconds")
	bind("hourly_cost_ceiling", "hourly-cost-ceiling")
	bind("safety_max_input_chars", "safety-max-input-chars")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close() //nolint:errcheck
	fmt.Println("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.OpenRouterAPIKey != "" {
		if err := config.ValidateOpenRouterKey(cfg.OpenRouterAPIKey); err != nil {
			return fmt.Errorf("invalid OPENROUTER_API_KEY: %w", err)
		}
	}

	fmt.Printf("council engine starting\n")
	fmt.Printf("  listen: %s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("  database: %s\n", cfg.DatabasePath)
	fmt.Printf("  cache backend: %s\n", cfg.CacheBackend)

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	byProvider := map[string]modelclient.Client{}
	if cfg.AnthropicAPIKey != "" {
		byProvider["anthropic"] = modelclient.NewAnthropicClient(cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		byProvider["openai"] = modelclient.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	router := modelclient.NewRouter(byProvider)

	respCache, err := buildCache(cfg)
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}

	acct := cost.New(cfg.BudgetCeilingUSD)

	resilient := resilience.New(router,
		resilience.WithQuorum(cfg.Quorum),
		resilience.WithRetry(time.Duration(cfg.RetryBaseSeconds)*time.Second, uint64(cfg.RetryCount)),
	)

	logger := db.NewStoreLogger(database)

	orch := orchestrator.New(router, respCache, acct,
		orchestrator.WithResilience(resilient),
		orchestrator.WithLogger(logger),
		orchestrator.WithCacheTTL(time.Duration(cfg.CacheTTLSecs)*time.Second),
		orchestrator.WithMaxInputChars(cfg.SafetyMaxInputChars),
	)

	limiter := ratelimit.New(
		ratelimit.WithMaxConnections(cfg.MaxConnPerClient),
		ratelimit.WithMaxRequests(cfg.MaxRequestsPerWin),
		ratelimit.WithWindow(time.Duration(cfg.RateWindowSeconds)*time.Second),
		ratelimit.WithHourlyCostCap(cfg.HourlyCostCeiling),
	)

	server := web.New(cfg, database, respCache, acct, limiter, orch)

	go func() {
		if err := server.Start(); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down...", sig)
		cancel()
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("web server shutdown: %v", err)
	}

	return nil
}

func buildCache(cfg config.Config) (cache.Cache, error) {
	if cfg.CacheBackend != "redis" {
		return cache.NewMemoryCache(), nil
	}
	rdb, err := cache.NewRedisClient(context.Background(), cfg.RedisAddr, "")
	if err != nil {
		return nil, err
	}
	return cache.NewRedisCache(rdb, "council:"), nil
}
