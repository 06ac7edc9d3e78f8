package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active" // Сессия принимает отметки
	SessionStatusClosed SessionStatus = "closed" // Сессия закрыта, терминальное состояние
)

type Session struct {
	ID            uuid.UUID     `json:"id"`
	CourseID      string        `json:"course_id"`
	TeacherID     string        `json:"teacher_id"`
	Status        SessionStatus `json:"status"`
	// Токен не сериализуется: наружу он уходит только через живую ленту
	Token         string        `json:"-"`
	TokenGen      int64         `json:"token_generation"`
	TokenIssuedAt time.Time     `json:"token_issued_at"`
	CreatedAt     time.Time     `json:"created_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`

	// Курс подгружается отдельным запросом, не из таблицы сессий
	Course *Course `json:"course,omitempty"`
}

// IsActive проверяет что сессия всё ещё принимает отметки
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}
