package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/Freeeeeet/attendance_service/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityRepository читает зачисленных студентов и их шаблоны лиц.
// Запись шаблонов делает внешний процесс зачисления.
type IdentityRepository struct {
	*base.Repository
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{Repository: base.NewRepository(pool)}
}

// GetEnrolledByCourse получает всех студентов курса вместе с шаблонами
func (r *IdentityRepository) GetEnrolledByCourse(ctx context.Context, courseID string) ([]*model.EnrolledIdentity, error) {
	query := `
		SELECT e.identity_id, e.name, t.descriptor
		FROM enrolled_identities e
		JOIN course_enrollments ce ON ce.identity_id = e.identity_id
		LEFT JOIN face_templates t ON t.identity_id = e.identity_id
		WHERE ce.course_id = $1
		ORDER BY e.identity_id
	`

	rows, err := r.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("get enrolled identities: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*model.EnrolledIdentity)
	var order []string

	for rows.Next() {
		var (
			identityID string
			name       string
			descriptor []float64
		)
		if err := rows.Scan(&identityID, &name, &descriptor); err != nil {
			return nil, fmt.Errorf("scan enrolled identity: %w", err)
		}

		identity, exists := byID[identityID]
		if !exists {
			identity = &model.EnrolledIdentity{IdentityID: identityID, Name: name}
			byID[identityID] = identity
			order = append(order, identityID)
		}
		if descriptor != nil {
			identity.Templates = append(identity.Templates, model.FaceTemplate(descriptor))
		}
	}

	identities := make([]*model.EnrolledIdentity, 0, len(order))
	for _, id := range order {
		identities = append(identities, byID[id])
	}

	return identities, nil
}
