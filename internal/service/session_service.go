package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/apperr"
	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore персистентное хранилище сессий
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetActiveByCourse(ctx context.Context, courseID string) (*model.Session, error)
	GetAllActive(ctx context.Context) ([]*model.Session, error)
	UpdateToken(ctx context.Context, id uuid.UUID, token string, generation int64, issuedAt time.Time) (bool, error)
	Close(ctx context.Context, id uuid.UUID, closedAt time.Time) (bool, error)
}

// CourseStore читающее хранилище курсов
type CourseStore interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
}

// Notifier получает события жизненного цикла для подписчиков сессии
type Notifier interface {
	AttendanceRecorded(record *model.AttendanceRecord)
	TokenRotated(sessionID uuid.UUID, token string, generation int64, issuedAt time.Time)
	SessionClosed(sessionID uuid.UUID)
}

// activeSession токен и поколение активной сессии, хранится в памяти.
// Проверка токена не должна ходить в БД.
type activeSession struct {
	courseID   string
	teacherID  string
	token      string
	generation int64
}

// SessionService владеет жизненным циклом сессий посещаемости и является
// единственным источником истины для текущего токена. Токен и статус меняются
// только здесь.
type SessionService struct {
	mu       sync.RWMutex
	active   map[uuid.UUID]*activeSession
	sessions SessionStore
	courses  CourseStore
	notifier Notifier
	logger   *zap.Logger
}

func NewSessionService(sessions SessionStore, courses CourseStore, notifier Notifier, logger *zap.Logger) *SessionService {
	return &SessionService{
		active:   make(map[uuid.UUID]*activeSession),
		sessions: sessions,
		courses:  courses,
		notifier: notifier,
		logger:   logger,
	}
}

// Open открывает новую сессию для курса. Для одного курса может быть
// открыта только одна сессия одновременно.
func (s *SessionService) Open(ctx context.Context, courseID, teacherID string) (*model.Session, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, apperr.ErrNotFound
	}

	existing, err := s.sessions.GetActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("check active session: %w", err)
	}
	if existing != nil {
		return nil, apperr.ErrConflict
	}

	id := uuid.New()
	token, err := generateToken(id, 1)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	session := &model.Session{
		ID:            id,
		CourseID:      courseID,
		TeacherID:     teacherID,
		Status:        model.SessionStatusActive,
		Token:         token,
		TokenGen:      1,
		TokenIssuedAt: time.Now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	s.active[id] = &activeSession{
		courseID:   courseID,
		teacherID:  teacherID,
		token:      token,
		generation: 1,
	}
	s.mu.Unlock()

	s.logger.Info("Session opened",
		zap.String("session_id", id.String()),
		zap.String("course_id", courseID),
		zap.String("teacher_id", teacherID))

	return session, nil
}

// CurrentToken возвращает текущий токен активной сессии
func (s *SessionService) CurrentToken(ctx context.Context, sessionID uuid.UUID) (string, error) {
	s.mu.RLock()
	state, exists := s.active[sessionID]
	var token string
	if exists {
		token = state.token
	}
	s.mu.RUnlock()

	if exists {
		return token, nil
	}

	return "", s.classifyMissing(ctx, sessionID)
}

// ValidateToken сверяет предъявленный токен с текущим. Валиден токен ровно
// одного поколения: после выпуска поколения N+1 токен поколения N отклоняется.
// Для активной сессии сравнение идёт в памяти и не блокируется.
func (s *SessionService) ValidateToken(ctx context.Context, sessionID uuid.UUID, token string) error {
	// Текущий токен копируем под RLock: ротация пишет в state под write-lock
	s.mu.RLock()
	state, exists := s.active[sessionID]
	var current string
	if exists {
		current = state.token
	}
	s.mu.RUnlock()

	if !exists {
		return s.classifyMissing(ctx, sessionID)
	}

	if current != token {
		return apperr.ErrStaleToken
	}
	return nil
}

// classifyMissing различает "сессии никогда не было" и "сессия закрыта"
func (s *SessionService) classifyMissing(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return apperr.ErrNotFound
	}
	return apperr.ErrClosed
}

// Get получает сессию по ID вместе с её курсом
func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, apperr.ErrNotFound
	}

	session.Course, err = s.courses.GetByID(ctx, session.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}

	return session, nil
}

// CourseForSession возвращает курс, к которому привязана сессия
func (s *SessionService) CourseForSession(ctx context.Context, sessionID uuid.UUID) (*model.Course, error) {
	s.mu.RLock()
	state, exists := s.active[sessionID]
	var courseID string
	if exists {
		courseID = state.courseID
	}
	s.mu.RUnlock()

	if !exists {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Course == nil {
			return nil, apperr.ErrNotFound
		}
		return session.Course, nil
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, apperr.ErrNotFound
	}
	return course, nil
}

// Close закрывает сессию. Повторное закрытие не ошибка. Закрыть сессию может
// только открывший её преподаватель. Токен перестаёт действовать сразу же,
// ещё до записи в БД.
func (s *SessionService) Close(ctx context.Context, sessionID uuid.UUID, closedBy string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return apperr.ErrNotFound
	}
	if session.TeacherID != closedBy {
		return apperr.ErrForbidden
	}
	if !session.IsActive() {
		return nil
	}

	// Сначала убираем из памяти: ротация и проверка токена прекращаются
	// немедленно, даже если запись в БД ещё идёт
	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()

	closed, err := s.sessions.Close(ctx, sessionID, time.Now())
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	if closed {
		s.notifier.SessionClosed(sessionID)
		s.logger.Info("Session closed",
			zap.String("session_id", sessionID.String()),
			zap.String("closed_by", closedBy))
	}

	return nil
}

// RotateAll выпускает новое поколение токена для каждой активной сессии.
// Ошибка ротации одной сессии не трогает остальные: старый токен остаётся
// действительным до следующего удачного тика.
func (s *SessionService) RotateAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.rotate(ctx, id); err != nil {
			s.logger.Error("Failed to rotate session token",
				zap.String("session_id", id.String()),
				zap.Error(err))
		}
	}
}

func (s *SessionService) rotate(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.RLock()
	state, exists := s.active[sessionID]
	var generation int64
	if exists {
		generation = state.generation + 1
	}
	s.mu.RUnlock()
	if !exists {
		return nil
	}
	token, err := generateToken(sessionID, generation)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	issuedAt := time.Now()
	updated, err := s.sessions.UpdateToken(ctx, sessionID, token, generation, issuedAt)
	if err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if !updated {
		// Сессию закрыли между тиками
		return nil
	}

	// Смена токена атомарна: нет окна, где действуют два токена сразу
	s.mu.Lock()
	if state, exists = s.active[sessionID]; exists {
		state.token = token
		state.generation = generation
	}
	s.mu.Unlock()

	if exists {
		s.notifier.TokenRotated(sessionID, token, generation, issuedAt)
	}

	return nil
}

// Resume восстанавливает активные сессии из БД после рестарта сервиса
func (s *SessionService) Resume(ctx context.Context) error {
	sessions, err := s.sessions.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("load active sessions: %w", err)
	}

	s.mu.Lock()
	for _, session := range sessions {
		s.active[session.ID] = &activeSession{
			courseID:   session.CourseID,
			teacherID:  session.TeacherID,
			token:      session.Token,
			generation: session.TokenGen,
		}
	}
	s.mu.Unlock()

	if len(sessions) > 0 {
		s.logger.Info("Resumed active sessions", zap.Int("count", len(sessions)))
	}

	return nil
}

// generateToken выводит токен из свежих случайных байт, ID сессии и номера
// поколения. Знание предыдущего токена не помогает угадать следующий.
func generateToken(sessionID uuid.UUID, generation int64) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}

	h := sha256.New()
	h.Write(sessionID[:])
	fmt.Fprintf(h, "%d", generation)
	h.Write(nonce)

	token := base32.StdEncoding.EncodeToString(h.Sum(nil))
	token = strings.TrimRight(token, "=")
	if len(token) > 16 {
		token = token[:16]
	}

	return token, nil
}
