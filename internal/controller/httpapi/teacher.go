package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/apperr"
	"github.com/Freeeeeet/attendance_service/internal/broadcast"
	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionRegistry операции жизненного цикла сессий, нужные обработчикам
type SessionRegistry interface {
	Open(ctx context.Context, courseID, teacherID string) (*model.Session, error)
	Close(ctx context.Context, sessionID uuid.UUID, closedBy string) error
	Get(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)
	CurrentToken(ctx context.Context, sessionID uuid.UUID) (string, error)
}

// AttendanceLister чтение журнала отметок
type AttendanceLister interface {
	ListForSession(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error)
}

// FeedBroker подписки живой ленты
type FeedBroker interface {
	Subscribe(sessionID uuid.UUID) *broadcast.Subscription
	Unsubscribe(sub *broadcast.Subscription)
}

type TeacherHandler struct {
	sessions   SessionRegistry
	attendance AttendanceLister
	feed       FeedBroker
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewTeacherHandler(sessions SessionRegistry, attendance AttendanceLister, feed FeedBroker, logger *zap.Logger) *TeacherHandler {
	return &TeacherHandler{
		sessions:   sessions,
		attendance: attendance,
		feed:       feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type openSessionRequest struct {
	CourseID  string `json:"course_id"`
	TeacherID string `json:"teacher_id"`
}

// OpenSession открывает сессию посещаемости для курса
func (h *TeacherHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourseID == "" || req.TeacherID == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "course_id and teacher_id are required"})
		return
	}

	session, err := h.sessions.Open(r.Context(), req.CourseID, req.TeacherID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, session)
}

type closeSessionRequest struct {
	TeacherID string `json:"teacher_id"`
}

// CloseSession закрывает сессию. Повторное закрытие отвечает 204 как и первое.
func (h *TeacherHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeacherID == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "teacher_id is required"})
		return
	}

	if err := h.sessions.Close(r.Context(), sessionID, req.TeacherID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSession отдаёт состояние сессии
func (h *TeacherHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, session)
}

// ListAttendance отдаёт отметки сессии в порядке записи
func (h *TeacherHandler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	records, err := h.attendance.ListForSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if records == nil {
		records = []*model.AttendanceRecord{}
	}

	writeJSON(w, h.logger, http.StatusOK, records)
}

// Feed живая лента сессии по вебсокету: новые отметки, ротация токена,
// терминальное событие закрытия
func (h *TeacherHandler) Feed(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	// Текущий токен проверяем до апгрейда, чтобы закрытая или несуществующая
	// сессия получила обычный HTTP-ответ
	token, err := h.sessions.CurrentToken(r.Context(), sessionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub := h.feed.Subscribe(sessionID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.feed.Unsubscribe(sub)
		h.logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()
	defer h.feed.Unsubscribe(sub)

	// Сначала отдаём действующий токен, чтобы дашборд сразу показал QR
	first := broadcast.Event{Type: broadcast.EventTokenRotated, SessionID: sessionID, Token: token, At: time.Now()}
	if err := conn.WriteJSON(first); err != nil {
		h.logger.Warn("Feed client disconnected", zap.Error(err))
		return
	}

	// Читатель нужен только чтобы заметить обрыв соединения
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, open := <-sub.C:
			if !open {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("Feed client disconnected", zap.Error(err))
				return
			}
			if event.Type == broadcast.EventSessionClosed {
				return
			}
		case <-done:
			return
		}
	}
}

// sessionIDFromRequest извлекает UUID сессии из пути
func sessionIDFromRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	raw := mux.Vars(r)["session_id"]
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, logger, apperr.ErrNotFound)
		return uuid.Nil, false
	}
	return sessionID, true
}
