package service

import (
	"context"
	"math"

	"github.com/Freeeeeet/attendance_service/internal/model"
)

// MatchResult лучший найденный студент и уверенность матчера
type MatchResult struct {
	IdentityID string
	Confidence float64
}

// IdentityMatcher сравнивает дескриптор лица с шаблонами зачисленных студентов.
// Возвращает nil, если никто не подошёл с достаточной уверенностью.
type IdentityMatcher interface {
	Match(ctx context.Context, sample model.FaceSample, identities []*model.EnrolledIdentity) (*MatchResult, error)
}

// EuclideanMatcher сравнивает 128-мерные дескрипторы по евклидову расстоянию.
// Уверенность считается как 1 - расстояние; совпадение ниже порога
// считается отсутствием совпадения.
type EuclideanMatcher struct {
	threshold float64
}

func NewEuclideanMatcher(threshold float64) *EuclideanMatcher {
	return &EuclideanMatcher{threshold: threshold}
}

func (m *EuclideanMatcher) Match(_ context.Context, sample model.FaceSample, identities []*model.EnrolledIdentity) (*MatchResult, error) {
	best := &MatchResult{Confidence: -1}

	for _, identity := range identities {
		for _, template := range identity.Templates {
			distance, ok := euclideanDistance(sample, template)
			if !ok {
				continue
			}

			confidence := 1 - distance
			if confidence > best.Confidence {
				best.IdentityID = identity.IdentityID
				best.Confidence = confidence
			}
		}
	}

	if best.Confidence < m.threshold {
		return nil, nil
	}

	return best, nil
}

// euclideanDistance расстояние между дескрипторами одинаковой размерности
func euclideanDistance(a model.FaceSample, b model.FaceTemplate) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return math.Sqrt(sum), true
}
