package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/relaylabs/chatrelay/internal/auth"
	"github.com/relaylabs/chatrelay/internal/config"
	"github.com/relaylabs/chatrelay/internal/directory"
	"github.com/relaylabs/chatrelay/internal/gateway"
	"github.com/relaylabs/chatrelay/internal/server"
	"github.com/relaylabs/chatrelay/internal/stats"
	"github.com/relaylabs/chatrelay/internal/storage"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	redisAddr      string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis address")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatrelay] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, redisAddr, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := storage.NewPgMessageRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Println("redis close:", err)
		}
	}()

	dir := directory.NewRedisDirectory(redisClient, cfg.PresenceTTL)
	verifier := auth.NewJWTVerifier(cfg.SigningKey)

	mux := http.NewServeMux()

	statsUpdater := stats.NewUpdater(mux)
	table := gateway.NewClientTable(logger)

	mgr := server.NewManager(
		logger,
		server.ManagerConfig{
			TypingTTL:        cfg.TypingTTL,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
			SweepInterval:    cfg.SweepInterval,
			RateLimits:       cfg.RateLimits,
		},
		verifier,
		repo,
		dir,
		dir,
		table,
		statsUpdater,
	)

	app := gateway.NewApp(mux, logger, mgr, table, verifier, repo, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go mgr.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down connection manager...")
	if err := mgr.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("connection manager shutdown:", err)
	}

	logger.Println("shutdown complete")
}
