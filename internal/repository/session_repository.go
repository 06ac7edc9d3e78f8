package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/apperr"
	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create создаёт новую сессию посещаемости
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, course_id, teacher_id, status, token, token_generation, token_issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		session.ID,
		session.CourseID,
		session.TeacherID,
		session.Status,
		session.Token,
		session.TokenGen,
		session.TokenIssuedAt,
	).Scan(&session.CreatedAt)

	if err != nil {
		// Частичный уникальный индекс по course_id ловит гонку двух Open
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.ErrConflict
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает сессию по ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	query := `
		SELECT id, course_id, teacher_id, status, token, token_generation, token_issued_at, created_at, closed_at
		FROM sessions
		WHERE id = $1
	`

	var session model.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.CourseID,
		&session.TeacherID,
		&session.Status,
		&session.Token,
		&session.TokenGen,
		&session.TokenIssuedAt,
		&session.CreatedAt,
		&session.ClosedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return &session, nil
}

// GetActiveByCourse получает активную сессию курса, если такая есть
func (r *SessionRepository) GetActiveByCourse(ctx context.Context, courseID string) (*model.Session, error) {
	query := `
		SELECT id, course_id, teacher_id, status, token, token_generation, token_issued_at, created_at, closed_at
		FROM sessions
		WHERE course_id = $1 AND status = 'active'
		LIMIT 1
	`

	var session model.Session
	err := r.pool.QueryRow(ctx, query, courseID).Scan(
		&session.ID,
		&session.CourseID,
		&session.TeacherID,
		&session.Status,
		&session.Token,
		&session.TokenGen,
		&session.TokenIssuedAt,
		&session.CreatedAt,
		&session.ClosedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active session by course: %w", err)
	}

	return &session, nil
}

// GetAllActive получает все активные сессии (для восстановления ротации после рестарта)
func (r *SessionRepository) GetAllActive(ctx context.Context) ([]*model.Session, error) {
	query := `
		SELECT id, course_id, teacher_id, status, token, token_generation, token_issued_at, created_at, closed_at
		FROM sessions
		WHERE status = 'active'
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var session model.Session
		err := rows.Scan(
			&session.ID,
			&session.CourseID,
			&session.TeacherID,
			&session.Status,
			&session.Token,
			&session.TokenGen,
			&session.TokenIssuedAt,
			&session.CreatedAt,
			&session.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, nil
}

// UpdateToken записывает новый токен, только если сессия всё ещё активна
// и поколение не ушло вперёд (compare-and-set)
func (r *SessionRepository) UpdateToken(ctx context.Context, id uuid.UUID, token string, generation int64, issuedAt time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET token = $1, token_generation = $2, token_issued_at = $3
		WHERE id = $4 AND status = 'active' AND token_generation < $2
	`

	result, err := r.pool.Exec(ctx, query, token, generation, issuedAt, id)
	if err != nil {
		return false, fmt.Errorf("update session token: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Close переводит сессию в закрытое состояние. Возвращает false если
// сессия уже была закрыта.
func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID, closedAt time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET status = 'closed', closed_at = $1
		WHERE id = $2 AND status = 'active'
	`

	result, err := r.pool.Exec(ctx, query, closedAt, id)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
