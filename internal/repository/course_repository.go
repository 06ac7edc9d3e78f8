package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/Freeeeeet/attendance_service/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CourseRepository struct {
	*base.Repository
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{Repository: base.NewRepository(pool)}
}

// GetByID получает курс по ID
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*model.Course, error) {
	query := `
		SELECT id, code, name, teacher_id, zone_lat, zone_lng, zone_radius_m, created_at
		FROM courses
		WHERE id = $1
	`

	var course model.Course
	err := r.QueryRow(ctx, query, id).Scan(
		&course.ID,
		&course.Code,
		&course.Name,
		&course.TeacherID,
		&course.ZoneLat,
		&course.ZoneLng,
		&course.ZoneRadiusM,
		&course.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get course by id: %w", err)
	}

	return &course, nil
}
