package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/sbilibin2017/gw-gold-wallet/internal/facades"
	"github.com/sbilibin2017/gw-gold-wallet/internal/handlers"
	"github.com/sbilibin2017/gw-gold-wallet/internal/jwt"
	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/middlewares"
	"github.com/sbilibin2017/gw-gold-wallet/internal/repositories"
	"github.com/sbilibin2017/gw-gold-wallet/internal/services"

	_ "github.com/jackc/pgx/v5/stdlib"
	pb "github.com/sbilibin2017/proto-exchange/exchange"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// @title gw-gold-wallet API
// @version 1.0.0
// @description Microservice for multi-currency wallets and gold trading
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting service version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// appConfig holds all application, database, Redis, Kafka, gRPC, oracle,
// logging, and JWT configuration.
type appConfig struct {
	appHost  string
	appPort  string
	logLevel string

	pgHost         string
	pgPort         int
	pgUser         string
	pgPassword     string
	pgDB           string
	pgMaxOpenConns int
	pgMaxIdleConns int

	redisHost         string
	redisPort         int
	redisDB           int
	redisPassword     string
	redisPoolSize     int
	redisMinIdleConns int
	cacheTTLSecond    int

	kafkaBrokers []string
	kafkaTopic   string

	exchangerHost string
	exchangerPort string

	oracleBaseURL string
	kycBaseURL    string

	migrationsDir string

	adminUserIDs []string

	jwtSecretKey string
	jwtExpSecond int
}

// parseConfig loads environment variables from a file and returns the
// application configuration.
func parseConfig(path string) (cfg appConfig, err error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}

	// Application config
	cfg.appHost = getEnv("APP_HOST", "localhost")
	cfg.appPort = getEnv("APP_PORT", "8080")
	cfg.logLevel = getEnv("APP_LOG_LEVEL", "info")

	// PostgreSQL config
	cfg.pgHost = getEnv("POSTGRES_HOST", "localhost")
	cfg.pgUser = getEnv("POSTGRES_USER", "user")
	cfg.pgPassword = getEnv("POSTGRES_PASSWORD", "password")
	cfg.pgDB = getEnv("POSTGRES_DB", "database")
	if cfg.pgPort, err = strconv.Atoi(getEnv("POSTGRES_PORT", "5432")); err != nil {
		return
	}
	if cfg.pgMaxOpenConns, err = strconv.Atoi(getEnv("POSTGRES_MAX_OPEN_CONNS", "16")); err != nil {
		return
	}
	if cfg.pgMaxIdleConns, err = strconv.Atoi(getEnv("POSTGRES_MAX_IDLE_CONNS", "8")); err != nil {
		return
	}

	// Redis config
	cfg.redisHost = getEnv("REDIS_HOST", "localhost")
	if cfg.redisPort, err = strconv.Atoi(getEnv("REDIS_PORT", "6379")); err != nil {
		return
	}
	if cfg.redisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return
	}
	cfg.redisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.redisPoolSize, err = strconv.Atoi(getEnv("REDIS_POOL_SIZE", "10")); err != nil {
		return
	}
	if cfg.redisMinIdleConns, err = strconv.Atoi(getEnv("REDIS_MIN_IDLE_CONNS", "2")); err != nil {
		return
	}
	if cfg.cacheTTLSecond, err = strconv.Atoi(getEnv("CACHE_TTL_SECOND", "60")); err != nil {
		return
	}

	// Kafka config
	cfg.kafkaBrokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	cfg.kafkaTopic = getEnv("KAFKA_TOPIC", "wallet-events")

	// gRPC exchanger config
	cfg.exchangerHost = getEnv("GW_EXCHANGER_HOST", "localhost")
	cfg.exchangerPort = getEnv("GW_EXCHANGER_PORT", "50051")

	// External HTTP services
	cfg.oracleBaseURL = getEnv("GOLD_ORACLE_URL", "http://localhost:8090")
	cfg.kycBaseURL = getEnv("KYC_SERVICE_URL", "http://localhost:8091")

	// Database migrations
	cfg.migrationsDir = getEnv("MIGRATIONS_DIR", "migrations")

	// Operators allowed to settle transactions
	if v := getEnv("ADMIN_USER_IDS", ""); v != "" {
		cfg.adminUserIDs = strings.Split(v, ",")
	}

	// JWT config
	cfg.jwtSecretKey = getEnv("JWT_SECRET_KEY", "my_super_secret_key")
	if cfg.jwtExpSecond, err = strconv.Atoi(getEnv("JWT_EXP_SECOND", "3600")); err != nil {
		return
	}

	return
}

// run initializes the logger, database, Redis, Kafka, gRPC client, and HTTP
// server. It sets up routes, applies middleware, and handles graceful shutdown.
func run(ctx context.Context, cfg appConfig) error {
	// Initialize logger
	if err := logger.Initialize(cfg.logLevel); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.logLevel)

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.pgUser, cfg.pgPassword, cfg.pgHost, cfg.pgPort, cfg.pgDB)
	logger.Log.Infof("Connecting to PostgreSQL at %s:%d", cfg.pgHost, cfg.pgPort)

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		logger.Log.Fatal("PostgreSQL connection error:", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.pgMaxOpenConns)
	db.SetMaxIdleConns(cfg.pgMaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		logger.Log.Fatal("PostgreSQL ping failed:", err)
	}
	if err := repositories.Migrate(cfg.migrationsDir, dsn); err != nil {
		logger.Log.Fatal("Database migration failed:", err)
	}

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.redisHost, cfg.redisPort),
		Password:     cfg.redisPassword,
		DB:           cfg.redisDB,
		PoolSize:     cfg.redisPoolSize,
		MinIdleConns: cfg.redisMinIdleConns,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Redis connection error:", err)
	}
	defer rdb.Close()

	// Kafka writer for wallet events
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.kafkaBrokers...),
		Topic:    cfg.kafkaTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Connect to the exchange-rate gRPC service
	grpcAddr := fmt.Sprintf("%s:%s", cfg.exchangerHost, cfg.exchangerPort)
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Log.Fatal("Failed to connect to gRPC service at ", grpcAddr, ": ", err)
	}
	defer conn.Close()
	exchangeClient := pb.NewExchangeServiceClient(conn)

	// Initialize JWT service
	jwtService := jwt.New(
		jwt.WithSecretKey(cfg.jwtSecretKey),
		jwt.WithExpiration(time.Duration(cfg.jwtExpSecond)*time.Second),
	)

	// Initialize repositories
	cacheTTL := time.Duration(cfg.cacheTTLSecond) * time.Second
	quoteCache := repositories.NewQuoteCacheRepository(rdb, cacheTTL)
	priceHistory := repositories.NewPriceHistoryRepository(db)
	configRepo := repositories.NewConfigRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db, middlewares.GetTxFromContext)

	// Initialize facades
	rates := facades.NewExchangeRatesGRPCFacade(exchangeClient, quoteCache)
	oracle := facades.NewPriceOracleHTTPFacade(cfg.oracleBaseURL, quoteCache, priceHistory)
	kyc := facades.NewKYCHTTPFacade(cfg.kycBaseURL)
	permissions := facades.NewRolePermissionChecker(
		adminRoles(cfg.adminUserIDs),
		map[string][]string{
			"settlement_operator": {
				services.ActionApproveDeposit,
				services.ActionCompleteWithdrawal,
				services.ActionReject,
			},
		},
	)

	// Initialize services
	tradingService := services.NewTradingService(ledgerRepo, oracle, rates, configRepo, kyc, kafkaWriter)
	settlementService := services.NewSettlementService(ledgerRepo, permissions, kafkaWriter)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares.LoggingMiddleware)

	authMiddleware := middlewares.AuthMiddleware(jwtService)
	txMiddleware := middlewares.TxMiddleware(db)

	r.Route("/api/v1", func(r chi.Router) {
		// Read-only routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/balance", handlers.NewGetBalanceHandler(tradingService, jwtService))
			r.Get("/gold/holdings", handlers.NewGetHoldingsHandler(tradingService, jwtService))
			r.Get("/usage", handlers.NewGetUsageHandler(tradingService, jwtService))
			r.Get("/transactions", handlers.NewListTransactionsHandler(tradingService, jwtService))
		})

		// Mutating routes run inside a database transaction
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(txMiddleware)
			r.Post("/wallet/deposit", handlers.NewDepositHandler(tradingService, jwtService))
			r.Post("/wallet/withdraw", handlers.NewWithdrawHandler(tradingService, jwtService))
			r.Post("/gold/buy", handlers.NewBuyGoldHandler(tradingService, jwtService))
			r.Post("/gold/sell", handlers.NewSellGoldHandler(tradingService, jwtService))
			r.Post("/exchange", handlers.NewExchangeHandler(tradingService, jwtService))
			r.Post("/gold/delivery", handlers.NewDeliveryHandler(tradingService, jwtService))
			r.Post("/transactions/{id}/cancel", handlers.NewCancelTransactionHandler(tradingService, jwtService))

			r.Post("/admin/transactions/{id}/approve", handlers.NewApproveDepositHandler(settlementService, jwtService))
			r.Post("/admin/transactions/{id}/complete", handlers.NewCompleteWithdrawalHandler(settlementService, jwtService))
			r.Post("/admin/transactions/{id}/reject", handlers.NewRejectHandler(settlementService, jwtService))
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://%s:%s/swagger/doc.json", cfg.appHost, cfg.appPort)),
	))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.appHost, cfg.appPort),
		Handler: r,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s:%s", cfg.appHost, cfg.appPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctxShutdown.Done():
		logger.Log.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}

	logger.Log.Info("HTTP server stopped gracefully")
	return nil
}

// adminRoles grants the settlement_operator role to every configured admin.
func adminRoles(adminUserIDs []string) map[string][]string {
	roles := make(map[string][]string, len(adminUserIDs))
	for _, id := range adminUserIDs {
		roles[strings.TrimSpace(id)] = []string{"settlement_operator"}
	}
	return roles
}
