// Command server runs the settlement and gamification engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stakepact/stakepact/internal/api"
	"github.com/stakepact/stakepact/internal/cache"
	"github.com/stakepact/stakepact/internal/config"
	"github.com/stakepact/stakepact/internal/notify"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/badges"
	"github.com/stakepact/stakepact/internal/service/leaderboard"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/internal/service/prizepool"
	"github.com/stakepact/stakepact/internal/service/settlement"
	"github.com/stakepact/stakepact/internal/service/streak"
	"github.com/stakepact/stakepact/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer redisCache.Close()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	checkInRepo := repository.NewCheckInRepository(db)

	// Notification emitter
	var emitter notify.Emitter = notify.NoopEmitter{}
	if cfg.Notifications.Enabled {
		emitter = notify.NewWebhookEmitter(&cfg.Notifications, log)
	}

	loc, err := cfg.Scheduler.GetLocation()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Scheduler.Timezone).Msg("Invalid timezone")
	}

	// Services
	ledgerSvc := ledger.NewService(db, log)
	badgeSvc := badges.NewService(badgeRepo, userRepo, checkInRepo, ledgerSvc, emitter, loc, log)
	userLocker := cache.NewKeyedLocker(redisCache, "lock:", time.Duration(cfg.Streak.UserLockTTL)*time.Second)
	streakSvc := streak.NewService(userRepo, ledgerSvc, badgeSvc, userLocker, &cfg.Streak, log)
	prizePoolSvc := prizepool.NewService(db, challengeRepo, ledgerSvc, emitter, log)
	runLocker := cache.NewKeyedLocker(redisCache, "lock:", time.Duration(cfg.Settlement.RunLockTTL)*time.Second)
	settlementSvc := settlement.NewService(cfg, db, challengeRepo, checkInRepo, ledgerSvc, prizePoolSvc, runLocker, emitter, log)
	leaderboardSvc := leaderboard.NewService(userRepo, badgeRepo, log)

	if cfg.Badges.SeedFile != "" {
		if err := badges.SeedCatalog(cfg.Badges.SeedFile, badgeRepo, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed badge catalog")
		}
	}

	if err := settlementSvc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start settlement scheduler")
	}
	defer settlementSvc.Stop()

	// HTTP server
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := api.NewHandler(streakSvc, settlementSvc, prizePoolSvc, badgeSvc, leaderboardSvc, db, log)
	handler.RegisterRoutes(router)

	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
