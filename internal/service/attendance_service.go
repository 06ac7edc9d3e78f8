package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttendanceStore персистентный журнал отметок
type AttendanceStore interface {
	InsertIfAbsent(ctx context.Context, record *model.AttendanceRecord) (*model.AttendanceRecord, bool, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error)
}

// AttendanceService журнал подтверждённых отметок: append-only, одна запись
// на пару (сессия, студент). Записи создаёт только пайплайн верификации.
type AttendanceService struct {
	records  AttendanceStore
	notifier Notifier
	logger   *zap.Logger
}

func NewAttendanceService(records AttendanceStore, notifier Notifier, logger *zap.Logger) *AttendanceService {
	return &AttendanceService{
		records:  records,
		notifier: notifier,
		logger:   logger,
	}
}

// Append идемпотентно добавляет отметку. Повторная отметка того же студента
// в той же сессии возвращает уже существующую запись и не порождает события.
// При одновременных отметках проигравший гонку тоже получает успех.
func (s *AttendanceService) Append(ctx context.Context, sessionID uuid.UUID, identityID string, method model.VerificationMethod, confidence float64) (*model.AttendanceRecord, bool, error) {
	record := &model.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  sessionID,
		IdentityID: identityID,
		Method:     method,
		Confidence: confidence,
	}

	stored, wasNew, err := s.records.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("append attendance: %w", err)
	}

	if wasNew {
		s.notifier.AttendanceRecorded(stored)
		s.logger.Info("Attendance recorded",
			zap.String("session_id", sessionID.String()),
			zap.String("identity_id", identityID),
			zap.Float64("confidence", confidence))
	}

	return stored, wasNew, nil
}

// ListForSession возвращает отметки сессии в порядке их записи
func (s *AttendanceService) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error) {
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}
