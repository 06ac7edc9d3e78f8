package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/attendance_service/internal/apperr"
	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/Freeeeeet/attendance_service/internal/service"
)

var (
	insidePosition  = model.Position{Lat: 28.6139, Lng: 77.2090}
	outsidePosition = model.Position{Lat: 28.6239, Lng: 77.2090} // ~1.1km north of the zone
)

// descriptors are unit-ish vectors; identical vectors match with confidence 1
func descriptorFor(seed float64) model.FaceSample {
	return model.FaceSample{seed, 1 - seed, 0.25, 0.5}
}

type fakeAttendanceStore struct {
	mu      sync.Mutex
	records map[string]*model.AttendanceRecord
	order   []*model.AttendanceRecord
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{records: make(map[string]*model.AttendanceRecord)}
}

func (f *fakeAttendanceStore) key(sessionID uuid.UUID, identityID string) string {
	return fmt.Sprintf("%s/%s", sessionID, identityID)
}

func (f *fakeAttendanceStore) InsertIfAbsent(_ context.Context, record *model.AttendanceRecord) (*model.AttendanceRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := f.key(record.SessionID, record.IdentityID)
	if existing, exists := f.records[key]; exists {
		return existing, false, nil
	}

	copied := *record
	copied.RecordedAt = time.Now()
	f.records[key] = &copied
	f.order = append(f.order, &copied)
	return &copied, true, nil
}

func (f *fakeAttendanceStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var records []*model.AttendanceRecord
	for _, record := range f.order {
		if record.SessionID == sessionID {
			records = append(records, record)
		}
	}
	return records, nil
}

type fakeIdentityStore struct {
	identities []*model.EnrolledIdentity
}

func (f *fakeIdentityStore) GetEnrolledByCourse(_ context.Context, _ string) ([]*model.EnrolledIdentity, error) {
	return f.identities, nil
}

// spyMatcher counts invocations and optionally stalls to trigger the pipeline timeout
type spyMatcher struct {
	inner service.IdentityMatcher
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (m *spyMatcher) Match(ctx context.Context, sample model.FaceSample, identities []*model.EnrolledIdentity) (*service.MatchResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return m.inner.Match(ctx, sample, identities)
}

func (m *spyMatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type pipelineFixture struct {
	registry   *service.SessionService
	ledger     *service.AttendanceService
	pipeline   *service.VerificationService
	matcher    *spyMatcher
	notifier   *recordingNotifier
	session    *model.Session
	validToken func(t *testing.T) string
}

func newPipelineFixture(t *testing.T, timeout time.Duration, matcherDelay time.Duration) *pipelineFixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	sessionStore := newFakeSessionStore()
	courses := &fakeCourseStore{courses: map[string]*model.Course{"cs-301": testCourse()}}
	notifier := &recordingNotifier{}
	registry := service.NewSessionService(sessionStore, courses, notifier, logger)

	ledger := service.NewAttendanceService(newFakeAttendanceStore(), notifier, logger)

	identities := &fakeIdentityStore{identities: []*model.EnrolledIdentity{
		{IdentityID: "S-101", Name: "Asha", Templates: []model.FaceTemplate{model.FaceTemplate(descriptorFor(0.1))}},
		{IdentityID: "S-102", Name: "Boris", Templates: []model.FaceTemplate{model.FaceTemplate(descriptorFor(0.9))}},
	}}

	matcher := &spyMatcher{inner: service.NewEuclideanMatcher(0.70), delay: matcherDelay}

	pipeline := service.NewVerificationService(
		registry,
		identities,
		ledger,
		service.NewHaversineChecker(),
		matcher,
		timeout,
		logger,
	)

	session, err := registry.Open(ctx, "cs-301", "teacher-1")
	require.NoError(t, err)

	return &pipelineFixture{
		registry: registry,
		ledger:   ledger,
		pipeline: pipeline,
		matcher:  matcher,
		notifier: notifier,
		session:  session,
		validToken: func(t *testing.T) string {
			token, err := registry.CurrentToken(ctx, session.ID)
			require.NoError(t, err)
			return token
		},
	}
}

func (f *pipelineFixture) attempt(t *testing.T, sample model.FaceSample) *model.CheckInAttempt {
	return &model.CheckInAttempt{
		SessionID:   f.session.ID,
		Token:       f.validToken(t),
		Position:    insidePosition,
		FaceSample:  sample,
		SubmittedAt: time.Now(),
	}
}

func TestVerify_Accepted(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)
	ctx := context.Background()

	// scenario A: valid token, inside the zone, face matches S-101
	record, err := f.pipeline.Verify(ctx, f.attempt(t, descriptorFor(0.1)))
	require.NoError(t, err)
	assert.Equal(t, "S-101", record.IdentityID)
	assert.Equal(t, model.MethodFace, record.Method)
	assert.InDelta(t, 1.0, record.Confidence, 0.01)
	assert.Len(t, f.notifier.recorded, 1)

	records, err := f.ledger.ListForSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestVerify_DuplicateIsAcceptedWithoutNewRecord(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)
	ctx := context.Background()

	first, err := f.pipeline.Verify(ctx, f.attempt(t, descriptorFor(0.1)))
	require.NoError(t, err)

	// scenario B: a later valid attempt by the same student after a rotation
	f.registry.RotateAll(ctx)
	second, err := f.pipeline.Verify(ctx, f.attempt(t, descriptorFor(0.1)))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.notifier.recorded, 1, "duplicate must not broadcast again")

	records, err := f.ledger.ListForSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestVerify_OutOfBounds(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)
	ctx := context.Background()

	attempt := f.attempt(t, descriptorFor(0.1))
	attempt.Position = outsidePosition

	_, err := f.pipeline.Verify(ctx, attempt)
	assert.ErrorIs(t, err, apperr.ErrOutOfBounds)

	// scenario C: pipeline short-circuits, the expensive matcher never runs
	assert.Equal(t, 0, f.matcher.callCount())
	assert.Empty(t, f.notifier.recorded)
}

func TestVerify_StaleToken(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)
	ctx := context.Background()

	staleToken := f.validToken(t)
	f.registry.RotateAll(ctx)

	attempt := f.attempt(t, descriptorFor(0.1))
	attempt.Token = staleToken

	_, err := f.pipeline.Verify(ctx, attempt)
	assert.ErrorIs(t, err, apperr.ErrStaleToken)
	assert.Equal(t, 0, f.matcher.callCount())
}

func TestVerify_ClosedSession(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)
	ctx := context.Background()

	// scenario E boundary: the token was current right before close,
	// but the attempt is processed after close
	attempt := f.attempt(t, descriptorFor(0.1))
	require.NoError(t, f.registry.Close(ctx, f.session.ID, "teacher-1"))

	_, err := f.pipeline.Verify(ctx, attempt)
	assert.ErrorIs(t, err, apperr.ErrClosed)
	assert.Empty(t, f.notifier.recorded)
}

func TestVerify_UnknownSession(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)

	attempt := f.attempt(t, descriptorFor(0.1))
	attempt.SessionID = uuid.New()

	_, err := f.pipeline.Verify(context.Background(), attempt)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestVerify_IdentityNotRecognized(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)

	// a face nobody enrolled
	_, err := f.pipeline.Verify(context.Background(), f.attempt(t, model.FaceSample{9, 9, 9, 9}))
	assert.ErrorIs(t, err, apperr.ErrIdentityNotRecognized)
	assert.Empty(t, f.notifier.recorded)
}

func TestVerify_MatcherBeatsClaim(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)

	// the claim says S-102 but the face belongs to S-101
	attempt := f.attempt(t, descriptorFor(0.1))
	attempt.ClaimedIdentityID = "S-102"

	record, err := f.pipeline.Verify(context.Background(), attempt)
	require.NoError(t, err)
	assert.Equal(t, "S-101", record.IdentityID)
}

func TestVerify_Timeout(t *testing.T) {
	f := newPipelineFixture(t, 50*time.Millisecond, 200*time.Millisecond)

	_, err := f.pipeline.Verify(context.Background(), f.attempt(t, descriptorFor(0.1)))
	assert.ErrorIs(t, err, apperr.ErrTimeout)

	// no partial ledger entry on timeout
	records, listErr := f.ledger.ListForSession(context.Background(), f.session.ID)
	require.NoError(t, listErr)
	assert.Empty(t, records)
}

func TestVerifyFrame(t *testing.T) {
	f := newPipelineFixture(t, 10*time.Second, 0)
	ctx := context.Background()

	samples := []model.FaceSample{
		descriptorFor(0.1),          // S-101
		descriptorFor(0.9),          // S-102
		{9, 9, 9, 9},                // nobody
		descriptorFor(0.1),          // S-101 again, duplicate
	}

	results, err := f.pipeline.VerifyFrame(ctx, f.session.ID, f.validToken(t), insidePosition, samples)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "S-101", results[0].IdentityID)
	assert.Equal(t, "S-102", results[1].IdentityID)
	assert.False(t, results[2].Matched)
	assert.Equal(t, results[0].Record.ID, results[3].Record.ID)

	records, err := f.ledger.ListForSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
