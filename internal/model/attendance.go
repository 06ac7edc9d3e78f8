package model

import (
	"time"

	"github.com/google/uuid"
)

type VerificationMethod string

const (
	MethodFace VerificationMethod = "face" // Распознавание лица
)

// Position географическая позиция устройства студента
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CheckInAttempt одна попытка отметиться. Живёт только на время одного вызова
// пайплайна верификации, никуда не сохраняется.
type CheckInAttempt struct {
	SessionID         uuid.UUID  `json:"session_id"`
	ClaimedIdentityID string     `json:"claimed_identity_id,omitempty"` // Необязательно, носит справочный характер
	Token             string     `json:"token"`
	Position          Position   `json:"position"`
	FaceSample        FaceSample `json:"face_sample"`
	SubmittedAt       time.Time  `json:"submitted_at"`
}

type AttendanceRecord struct {
	ID         uuid.UUID          `json:"id"`
	SessionID  uuid.UUID          `json:"session_id"`
	IdentityID string             `json:"identity_id"`
	Method     VerificationMethod `json:"method"`
	Confidence float64            `json:"confidence"`
	RecordedAt time.Time          `json:"recorded_at"`
}
