package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lab-booking-backend/config"
	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/api"
	"lab-booking-backend/internal/db"
	"lab-booking-backend/internal/labfiles"
	"lab-booking-backend/internal/logger"
	"lab-booking-backend/internal/mailer"
	"lab-booking-backend/internal/metrics"
	"lab-booking-backend/internal/notification"
	"lab-booking-backend/internal/otp"
	"lab-booking-backend/internal/store"
	"lab-booking-backend/internal/workflow"
)

func setup() (*config.Config, *zap.Logger, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("path", path))
	return cfg, log, nil
}

func migrate() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if _, err := db.Init(&cfg.Database, log); err != nil {
		log.Error("failed to migrate database", zap.Error(err))
		return err
	}
	return nil
}

func serve() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("starting labbookd", zap.String("version", version))
	gin.SetMode(gin.ReleaseMode)

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		log.Error("failed to initialize database", zap.Error(err))
		return err
	}
	appStore := store.NewGormStore(gormDB)

	var (
		m                *metrics.Metrics
		opRecorder       workflow.Recorder
		notifierRecorder notification.Recorder
	)
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
		opRecorder, notifierRecorder = m, m
	}

	mail := mailer.New(cfg.Mail, log)

	otpStore, closeOTP, err := newOTPStore(cfg)
	if err != nil {
		log.Error("failed to initialize otp store", zap.Error(err))
		return err
	}
	defer closeOTP()
	otpSvc := otp.NewService(otpStore, mailer.OTPSender{Mailer: mail}, cfg.OTP, log)

	tokens, err := account.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("session tokens: %w", err)
	}
	accounts := account.NewService(appStore, tokens, otpSvc, cfg.Auth, log)
	if err := accounts.EnsureAdmin(context.Background(), cfg.Auth.BootstrapAdmin); err != nil {
		log.Error("failed to create bootstrap admin", zap.Error(err))
		return err
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		log.Warn("VAPID keys are not configured, push notifications are disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, mail, webpushOptions, notifierRecorder, log)
	pool.Start(ctx)

	engine := workflow.NewEngine(appStore, pool, opRecorder, log)
	router := api.NewRouter(cfg, api.Deps{
		Engine:        engine,
		Accounts:      accounts,
		OTP:           otpSvc,
		Labs:          labfiles.NewService(appStore, cfg.Files.BaseDir, cfg.Files.MaxUploadBytes, log),
		Subscriptions: appStore,
		WebPush:       webpushOptions,
		Logger:        log,
	}, m)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutdown signal received, stopping services", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	cancel()
	closeDB(gormDB, log)

	log.Info("server gracefully stopped")
	return nil
}

// newOTPStore builds the configured OTP store and a function releasing it.
func newOTPStore(cfg *config.Config) (otp.Store, func(), error) {
	if cfg.OTP.Store != "redis" {
		return otp.NewMemoryStore(time.Minute), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return otp.NewRedisStore(client, cfg.Redis.Prefix), func() { client.Close() }, nil
}

func closeDB(gormDB *gorm.DB, log *zap.Logger) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
