package broadcast_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/attendance_service/internal/broadcast"
	"github.com/Freeeeeet/attendance_service/internal/model"
)

func record(sessionID uuid.UUID, identityID string) *model.AttendanceRecord {
	return &model.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  sessionID,
		IdentityID: identityID,
		Method:     model.MethodFace,
		Confidence: 0.9,
		RecordedAt: time.Now(),
	}
}

func receive(t *testing.T, sub *broadcast.Subscription) broadcast.Event {
	t.Helper()
	select {
	case event, open := <-sub.C:
		require.True(t, open, "subscription channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return broadcast.Event{}
	}
}

func TestBroadcaster_DeliversInOrder(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionID := uuid.New()

	sub := b.Subscribe(sessionID)
	defer b.Unsubscribe(sub)

	var want []string
	for _, identity := range []string{"S-101", "S-102", "S-103"} {
		b.AttendanceRecorded(record(sessionID, identity))
		want = append(want, identity)
	}

	for _, identity := range want {
		event := receive(t, sub)
		assert.Equal(t, broadcast.EventAttendance, event.Type)
		assert.Equal(t, identity, event.Record.IdentityID)
	}
}

func TestBroadcaster_SessionIsolation(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionA := uuid.New()
	sessionB := uuid.New()

	subA := b.Subscribe(sessionA)
	defer b.Unsubscribe(subA)
	subB := b.Subscribe(sessionB)
	defer b.Unsubscribe(subB)

	b.AttendanceRecorded(record(sessionA, "S-101"))

	event := receive(t, subA)
	assert.Equal(t, sessionA, event.SessionID)

	select {
	case <-subB.C:
		t.Fatal("subscriber of another session received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_TokenRotated(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionID := uuid.New()

	sub := b.Subscribe(sessionID)
	defer b.Unsubscribe(sub)

	issuedAt := time.Now()
	b.TokenRotated(sessionID, "FRESHTOKEN", 7, issuedAt)

	event := receive(t, sub)
	assert.Equal(t, broadcast.EventTokenRotated, event.Type)
	assert.Equal(t, "FRESHTOKEN", event.Token)
	assert.Equal(t, int64(7), event.Generation)
	assert.Equal(t, issuedAt, event.At)
}

func TestBroadcaster_SessionClosed(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionID := uuid.New()

	sub := b.Subscribe(sessionID)

	b.SessionClosed(sessionID)

	// terminal event arrives, then the subscription is invalidated
	event := receive(t, sub)
	assert.Equal(t, broadcast.EventSessionClosed, event.Type)

	_, open := <-sub.C
	assert.False(t, open, "channel must be closed after the terminal event")

	// events after close go nowhere
	b.AttendanceRecorded(record(sessionID, "S-101"))
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionID := uuid.New()

	sub := b.Subscribe(sessionID)
	defer b.Unsubscribe(sub)

	// nobody reads sub.C yet; publishing far past any buffer must not hang
	const total = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			b.AttendanceRecorded(record(sessionID, "S-101"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// a slow subscriber is still subscribed: on catch-up it gets every event
	for i := 0; i < total; i++ {
		event := receive(t, sub)
		assert.Equal(t, broadcast.EventAttendance, event.Type)
	}
}

func TestBroadcaster_SlowSubscriberCatchesUpInOrder(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionID := uuid.New()

	sub := b.Subscribe(sessionID)
	defer b.Unsubscribe(sub)

	const total = 100
	for i := 0; i < total; i++ {
		r := record(sessionID, "S-101")
		r.Confidence = float64(i)
		b.AttendanceRecorded(r)
	}

	for i := 0; i < total; i++ {
		event := receive(t, sub)
		require.NotNil(t, event.Record)
		assert.Equal(t, float64(i), event.Record.Confidence)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := broadcast.NewBroadcaster(zap.NewNop())
	sessionID := uuid.New()

	sub := b.Subscribe(sessionID)
	b.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)

	// double unsubscribe is harmless
	b.Unsubscribe(sub)
}
