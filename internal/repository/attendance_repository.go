package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttendanceRepository struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// InsertIfAbsent атомарно добавляет запись о присутствии. Уникальность пары
// (session_id, identity_id) обеспечивает констрейнт в БД; при гонке выигрывает
// одна вставка, остальные получают уже существующую запись и wasNew=false.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, record *model.AttendanceRecord) (*model.AttendanceRecord, bool, error) {
	query := `
		INSERT INTO attendance (id, session_id, identity_id, method, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, identity_id) DO NOTHING
		RETURNING id, session_id, identity_id, method, confidence, recorded_at
	`

	var stored model.AttendanceRecord
	err := r.pool.QueryRow(
		ctx, query,
		record.ID,
		record.SessionID,
		record.IdentityID,
		record.Method,
		record.Confidence,
	).Scan(
		&stored.ID,
		&stored.SessionID,
		&stored.IdentityID,
		&stored.Method,
		&stored.Confidence,
		&stored.RecordedAt,
	)

	if err == nil {
		return &stored, true, nil
	}

	// ON CONFLICT DO NOTHING без вставки не возвращает строк
	if err != pgx.ErrNoRows {
		return nil, false, fmt.Errorf("insert attendance: %w", err)
	}

	existing, err := r.Get(ctx, record.SessionID, record.IdentityID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("attendance record missing after conflict")
	}

	return existing, false, nil
}

// Get получает запись по паре (сессия, студент)
func (r *AttendanceRepository) Get(ctx context.Context, sessionID uuid.UUID, identityID string) (*model.AttendanceRecord, error) {
	query := `
		SELECT id, session_id, identity_id, method, confidence, recorded_at
		FROM attendance
		WHERE session_id = $1 AND identity_id = $2
	`

	var record model.AttendanceRecord
	err := r.pool.QueryRow(ctx, query, sessionID, identityID).Scan(
		&record.ID,
		&record.SessionID,
		&record.IdentityID,
		&record.Method,
		&record.Confidence,
		&record.RecordedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance record: %w", err)
	}

	return &record, nil
}

// ListBySession получает все записи сессии в порядке отметки
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error) {
	query := `
		SELECT id, session_id, identity_id, method, confidence, recorded_at
		FROM attendance
		WHERE session_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance by session: %w", err)
	}
	defer rows.Close()

	var records []*model.AttendanceRecord
	for rows.Next() {
		var record model.AttendanceRecord
		err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.IdentityID,
			&record.Method,
			&record.Confidence,
			&record.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}
