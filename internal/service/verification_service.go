package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/apperr"
	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenValidator часть реестра сессий, нужная пайплайну
type TokenValidator interface {
	ValidateToken(ctx context.Context, sessionID uuid.UUID, token string) error
	CourseForSession(ctx context.Context, sessionID uuid.UUID) (*model.Course, error)
}

// IdentityStore читающее хранилище зачисленных студентов
type IdentityStore interface {
	GetEnrolledByCourse(ctx context.Context, courseID string) ([]*model.EnrolledIdentity, error)
}

// Ledger журнал отметок, куда пайплайн пишет успешные проверки
type Ledger interface {
	Append(ctx context.Context, sessionID uuid.UUID, identityID string, method model.VerificationMethod, confidence float64) (*model.AttendanceRecord, bool, error)
}

// verifyState накапливает данные одной попытки по мере прохождения проверок
type verifyState struct {
	attempt *model.CheckInAttempt
	course  *model.Course
	match   *MatchResult
}

// check одна проверка фактора: nil — фактор пройден, иначе доменная ошибка.
// Проверки идут строго по порядку, первая ошибка завершает попытку: ответ
// не раскрывает, прошли бы оставшиеся факторы или нет.
type check func(ctx context.Context, state *verifyState) error

// VerificationService прогоняет попытку отметиться через упорядоченную
// цепочку факторов: геозона, токен, лицо. Самая дорогая проверка (матчинг
// лица) идёт последней и не выполняется для заведомо невалидных попыток.
type VerificationService struct {
	registry   TokenValidator
	identities IdentityStore
	ledger     Ledger
	geofence   GeofenceChecker
	matcher    IdentityMatcher
	timeout    time.Duration
	checks     []check
	logger     *zap.Logger
}

func NewVerificationService(
	registry TokenValidator,
	identities IdentityStore,
	ledger Ledger,
	geofence GeofenceChecker,
	matcher IdentityMatcher,
	timeout time.Duration,
	logger *zap.Logger,
) *VerificationService {
	s := &VerificationService{
		registry:   registry,
		identities: identities,
		ledger:     ledger,
		geofence:   geofence,
		matcher:    matcher,
		timeout:    timeout,
		logger:     logger,
	}
	s.checks = []check{s.checkGeofence, s.checkToken, s.checkIdentity}
	return s
}

// Verify проверяет одну попытку отметиться. При успехе идемпотентно пишет
// отметку в журнал; повторная отметка для вызывающего неотличима от первой.
func (s *VerificationService) Verify(ctx context.Context, attempt *model.CheckInAttempt) (*model.AttendanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := &verifyState{attempt: attempt}

	for _, c := range s.checks {
		if err := c(ctx, state); err != nil {
			return nil, s.mapTimeout(ctx, err)
		}
	}

	// Запись в журнал только после успеха всех трёх факторов
	if err := ctx.Err(); err != nil {
		return nil, apperr.ErrTimeout
	}

	record, _, err := s.ledger.Append(ctx, attempt.SessionID, state.match.IdentityID, model.MethodFace, state.match.Confidence)
	if err != nil {
		return nil, s.mapTimeout(ctx, err)
	}

	return record, nil
}

// FrameResult исход проверки одного лица из кадра
type FrameResult struct {
	Matched    bool                    `json:"matched"`
	IdentityID string                  `json:"identity_id,omitempty"`
	Confidence float64                 `json:"confidence,omitempty"`
	Record     *model.AttendanceRecord `json:"record,omitempty"`
}

// VerifyFrame проверяет кадр с несколькими лицами против одной сессии:
// геозона и токен проверяются один раз, затем каждое лицо матчится отдельно.
// Заявленных студентов нет, источником истины служит матчер.
func (s *VerificationService) VerifyFrame(ctx context.Context, sessionID uuid.UUID, token string, pos model.Position, samples []model.FaceSample) ([]FrameResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := &verifyState{attempt: &model.CheckInAttempt{
		SessionID: sessionID,
		Token:     token,
		Position:  pos,
	}}

	if err := s.checkGeofence(ctx, state); err != nil {
		return nil, s.mapTimeout(ctx, err)
	}
	if err := s.checkToken(ctx, state); err != nil {
		return nil, s.mapTimeout(ctx, err)
	}

	identities, err := s.identities.GetEnrolledByCourse(ctx, state.course.ID)
	if err != nil {
		return nil, s.mapTimeout(ctx, fmt.Errorf("get enrolled identities: %w", err))
	}

	results := make([]FrameResult, 0, len(samples))
	for _, sample := range samples {
		match, err := s.matcher.Match(ctx, sample, identities)
		if err != nil {
			return nil, s.mapTimeout(ctx, fmt.Errorf("match face: %w", err))
		}
		if match == nil {
			results = append(results, FrameResult{})
			continue
		}

		record, _, err := s.ledger.Append(ctx, sessionID, match.IdentityID, model.MethodFace, match.Confidence)
		if err != nil {
			return nil, s.mapTimeout(ctx, err)
		}

		results = append(results, FrameResult{
			Matched:    true,
			IdentityID: match.IdentityID,
			Confidence: match.Confidence,
			Record:     record,
		})
	}

	return results, nil
}

// checkGeofence фактор 1: позиция устройства внутри зоны курса
func (s *VerificationService) checkGeofence(ctx context.Context, state *verifyState) error {
	course, err := s.registry.CourseForSession(ctx, state.attempt.SessionID)
	if err != nil {
		return err
	}
	state.course = course

	inside, err := s.geofence.Inside(ctx, state.attempt.Position, course.Zone())
	if err != nil {
		return fmt.Errorf("geofence check: %w", err)
	}
	if !inside {
		return apperr.ErrOutOfBounds
	}
	return nil
}

// checkToken фактор 2: предъявленный токен совпадает с текущим
func (s *VerificationService) checkToken(ctx context.Context, state *verifyState) error {
	return s.registry.ValidateToken(ctx, state.attempt.SessionID, state.attempt.Token)
}

// checkIdentity фактор 3: лицо совпадает с шаблоном зачисленного студента.
// Заявленный студент носит справочный характер: если матчер узнал другого,
// побеждает результат матчера.
func (s *VerificationService) checkIdentity(ctx context.Context, state *verifyState) error {
	identities, err := s.identities.GetEnrolledByCourse(ctx, state.course.ID)
	if err != nil {
		return fmt.Errorf("get enrolled identities: %w", err)
	}

	match, err := s.matcher.Match(ctx, state.attempt.FaceSample, identities)
	if err != nil {
		return fmt.Errorf("match face: %w", err)
	}
	if match == nil {
		return apperr.ErrIdentityNotRecognized
	}

	if claimed := state.attempt.ClaimedIdentityID; claimed != "" && claimed != match.IdentityID {
		s.logger.Warn("Claimed identity does not match face",
			zap.String("session_id", state.attempt.SessionID.String()),
			zap.String("claimed", claimed),
			zap.String("matched", match.IdentityID))
	}

	state.match = match
	return nil
}

// mapTimeout переводит истечение дедлайна в доменную ошибку таймаута
func (s *VerificationService) mapTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.ErrTimeout
	}
	return err
}
