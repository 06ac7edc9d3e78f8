package app

import (
	"context"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/service"
	"go.uber.org/zap"
)

// Rotator перевыпускает токены активных сессий с фиксированным интервалом
type Rotator struct {
	sessions *service.SessionService
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewRotator создаёт новый ротатор токенов
func NewRotator(sessions *service.SessionService, interval time.Duration, logger *zap.Logger) *Rotator {
	return &Rotator{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновую ротацию
func (r *Rotator) Start(ctx context.Context) {
	r.logger.Info("Starting token rotator", zap.Duration("interval", r.interval))

	go r.run(ctx)
}

// Stop останавливает фоновую ротацию
func (r *Rotator) Stop() {
	r.logger.Info("Stopping token rotator")
	close(r.stopChan)
}

// run тикает каждые interval и ротирует все активные сессии. Ошибка ротации
// не роняет цикл: сессия останется со старым токеном до следующего тика.
func (r *Rotator) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sessions.RotateAll(ctx)
		case <-r.stopChan:
			r.logger.Info("Token rotation stopped")
			return
		case <-ctx.Done():
			r.logger.Info("Token rotation cancelled")
			return
		}
	}
}
