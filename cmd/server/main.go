package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/app"
	"github.com/Freeeeeet/attendance_service/internal/broadcast"
	"github.com/Freeeeeet/attendance_service/internal/config"
	"github.com/Freeeeeet/attendance_service/internal/controller/httpapi"
	"github.com/Freeeeeet/attendance_service/internal/repository"
	"github.com/Freeeeeet/attendance_service/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	// repositories
	sessionRepo := repository.NewSessionRepository(pool)
	attendanceRepo := repository.NewAttendanceRepository(pool)
	identityRepo := repository.NewIdentityRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)

	// services
	broadcaster := broadcast.NewBroadcaster(logger)
	sessionService := service.NewSessionService(sessionRepo, courseRepo, broadcaster, logger)
	attendanceService := service.NewAttendanceService(attendanceRepo, broadcaster, logger)
	verificationService := service.NewVerificationService(
		sessionService,
		identityRepo,
		attendanceService,
		service.NewHaversineChecker(),
		service.NewEuclideanMatcher(cfg.MatchConfidenceThreshold),
		cfg.VerifyTimeout,
		logger,
	)

	// Восстанавливаем ротацию для сессий, переживших рестарт
	if err := sessionService.Resume(ctx); err != nil {
		logger.Fatal("Failed to resume active sessions", zap.Error(err))
	}

	rotator := app.NewRotator(sessionService, cfg.TokenRotationInterval, logger)
	rotator.Start(ctx)
	defer rotator.Stop()

	teacherHandler := httpapi.NewTeacherHandler(sessionService, attendanceService, broadcaster, logger)
	studentHandler := httpapi.NewStudentHandler(verificationService, logger)
	router := httpapi.NewRouter(teacherHandler, studentHandler, logger)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // вебсокет-лента живёт дольше любого таймаута
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting attendance service",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
