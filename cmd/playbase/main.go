// Package main runs the playbase server: in-memory collections over HTTP
// with query, auth, and rule support.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/playbase/playbase/internal/config"
	"github.com/playbase/playbase/internal/logging"
	"github.com/playbase/playbase/internal/metrics"
	"github.com/playbase/playbase/internal/middleware"
	"github.com/playbase/playbase/internal/rules"
	"github.com/playbase/playbase/internal/server"
	"github.com/playbase/playbase/internal/session"
	"github.com/playbase/playbase/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to settings file")
	dataPath := flag.String("data", "data.yaml", "Public seed data file")
	protectedPath := flag.String("protected", "protected.yaml", "Protected seed data file")
	rulesPath := flag.String("rules", "rules.yaml", "Access rule tree file")
	jsonstorePath := flag.String("jsonstore", "jsonstore.yaml", "Jsonstore seed file")
	flag.Parse()

	// .env is optional; real env vars win either way
	_ = godotenv.Load()
	if v := os.Getenv("PLAYBASE_CONFIG"); v != "" {
		*configPath = v
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if v := os.Getenv("PLAYBASE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PLAYBASE_SECRET"); v != "" {
		cfg.Server.Secret = v
	}

	logger := logging.New("playbase", cfg.Log.Level, cfg.Log.Format)

	publicSeed, err := config.LoadSeed(*dataPath)
	if err != nil {
		log.Fatalf("Failed to load seed data: %v", err)
	}
	protectedSeed, err := config.LoadSeed(*protectedPath)
	if err != nil {
		log.Fatalf("Failed to load protected seed data: %v", err)
	}
	ruleTree, err := config.LoadRules(*rulesPath)
	if err != nil {
		log.Fatalf("Failed to load rule tree: %v", err)
	}
	storeSeed, err := config.LoadTree(*jsonstorePath)
	if err != nil {
		log.Fatalf("Failed to load jsonstore data: %v", err)
	}

	public := storage.NewEngine(publicSeed)
	protected := storage.NewEngine(protectedSeed)

	sessions, err := session.NewManager(protected, cfg.Server.IdentityField, cfg.Server.Secret)
	if err != nil {
		log.Fatalf("Failed to initialize sessions: %v", err)
	}

	ruleEngine := rules.NewEngine(rules.FromConfig(ruleTree))
	flags := server.NewFlags()

	srv := server.New(logger,
		server.StorageDecorator(public, protected),
		server.AuthDecorator(sessions),
		server.UtilDecorator(flags),
		server.RulesDecorator(ruleEngine),
	)
	srv.Register(server.DataService())
	srv.Register(server.UserService())
	srv.Register(server.UtilService())
	srv.Register(server.HealthService())
	srv.Register(server.NewJSONStore(storeSeed).Service())

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)
	router := srv.Router()
	router.Use(middleware.Metrics(metrics.New("playbase")))

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", limiter.Cleanup); err != nil {
		log.Fatalf("Failed to schedule limiter cleanup: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: limiter.Handler(router),
	}

	go func() {
		logger.WithFields(map[string]interface{}{"addr": cfg.Server.Addr}).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}
