package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/Freeeeeet/attendance_service/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Verifier пайплайн верификации попыток отметиться
type Verifier interface {
	Verify(ctx context.Context, attempt *model.CheckInAttempt) (*model.AttendanceRecord, error)
	VerifyFrame(ctx context.Context, sessionID uuid.UUID, token string, pos model.Position, samples []model.FaceSample) ([]service.FrameResult, error)
}

type StudentHandler struct {
	verifier Verifier
	logger   *zap.Logger
}

func NewStudentHandler(verifier Verifier, logger *zap.Logger) *StudentHandler {
	return &StudentHandler{verifier: verifier, logger: logger}
}

type checkInRequest struct {
	ClaimedIdentityID string           `json:"claimed_identity_id,omitempty"`
	Token             string           `json:"token"`
	Position          model.Position   `json:"position"`
	FaceSample        model.FaceSample `json:"face_sample"`
}

type checkInResponse struct {
	Accepted bool                    `json:"accepted"`
	Record   *model.AttendanceRecord `json:"record"`
}

// CheckIn проверяет попытку студента отметиться: геозона, токен, лицо
func (h *StudentHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || len(req.FaceSample) == 0 {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "token and face_sample are required"})
		return
	}

	attempt := &model.CheckInAttempt{
		SessionID:         sessionID,
		ClaimedIdentityID: req.ClaimedIdentityID,
		Token:             req.Token,
		Position:          req.Position,
		FaceSample:        req.FaceSample,
		SubmittedAt:       time.Now(),
	}

	record, err := h.verifier.Verify(r.Context(), attempt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, checkInResponse{Accepted: true, Record: record})
}

type frameCheckInRequest struct {
	Token       string             `json:"token"`
	Position    model.Position     `json:"position"`
	FaceSamples []model.FaceSample `json:"face_samples"`
}

// CheckInFrame проверяет кадр с несколькими лицами (сценарий камеры в
// аудитории): студенты ничего не заявляют, матчер решает кто есть кто
func (h *StudentHandler) CheckInFrame(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	var req frameCheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || len(req.FaceSamples) == 0 {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "token and face_samples are required"})
		return
	}

	results, err := h.verifier.VerifyFrame(r.Context(), sessionID, req.Token, req.Position, req.FaceSamples)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, results)
}
