package broadcast

import (
	"sync"
	"time"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	EventAttendance    EventType = "attendance"     // Новая отметка в журнале
	EventTokenRotated  EventType = "token_rotated"  // Выпущено новое поколение токена
	EventSessionClosed EventType = "session_closed" // Терминальное событие, подписка закрывается
)

// Event одно событие живой ленты сессии
type Event struct {
	Type       EventType               `json:"type"`
	SessionID  uuid.UUID               `json:"session_id"`
	Record     *model.AttendanceRecord `json:"record,omitempty"`
	Token      string                  `json:"token,omitempty"`
	Generation int64                   `json:"generation,omitempty"`
	At         time.Time               `json:"at"`
}

// warnQueueDepth глубина очереди подписчика, с которой пишем предупреждение:
// подписчик жив, но читает заметно медленнее, чем идут события
const warnQueueDepth = 256

// Subscription подписка одного наблюдателя на события сессии. Пока подписка
// жива, события копятся в очереди без ограничения и уходят в C в порядке
// публикации: медленный подписчик ничего не теряет и никого не тормозит.
type Subscription struct {
	C chan Event

	sessionID uuid.UUID

	mu      sync.Mutex
	queue   []Event
	closing bool // новых событий не будет, дослать очередь и закрыть C

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription(sessionID uuid.UUID) *Subscription {
	sub := &Subscription{
		C:         make(chan Event, 16),
		sessionID: sessionID,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go sub.drain()
	return sub
}

// enqueue ставит событие в очередь подписчика и возвращает её глубину
func (s *Subscription) enqueue(event Event) int {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return 0
	}
	s.queue = append(s.queue, event)
	depth := len(s.queue)
	s.mu.Unlock()

	s.signal()
	return depth
}

// finish помечает подписку завершённой: drain дошлёт очередь и закроет C
func (s *Subscription) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.signal()
}

// stop обрывает подписку немедленно, недоставленные события отбрасываются.
// Зовётся со стороны читателя, который больше не будет читать из C.
func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain перекладывает события из очереди в C. Блокируется только на своём
// читателе, путь записи отметок этого не видит.
func (s *Subscription) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				close(s.C)
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				close(s.C)
				return
			}
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.C <- event:
		case <-s.done:
			close(s.C)
			return
		}
	}
}

// Broadcaster раздаёт события журнала подписчикам сессий. Публикация
// fire-and-forget: отправитель никогда не блокируется на подписчике,
// но подписанный наблюдатель получает каждое событие и в том же порядке.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	logger *zap.Logger
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe подписывает наблюдателя на события сессии
func (b *Broadcaster) Subscribe(sessionID uuid.UUID) *Subscription {
	sub := newSubscription(sessionID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}

	return sub
}

// Unsubscribe снимает подписку и закрывает её канал
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if set, exists := b.subs[sub.sessionID]; exists {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.sessionID)
		}
	}
	b.mu.Unlock()

	sub.stop()
}

// AttendanceRecorded рассылает новую отметку подписчикам её сессии
func (b *Broadcaster) AttendanceRecorded(record *model.AttendanceRecord) {
	b.publish(record.SessionID, Event{
		Type:      EventAttendance,
		SessionID: record.SessionID,
		Record:    record,
		At:        time.Now(),
	})
}

// TokenRotated рассылает свежий токен, чтобы дашборд перерисовал QR-код
func (b *Broadcaster) TokenRotated(sessionID uuid.UUID, token string, generation int64, issuedAt time.Time) {
	b.publish(sessionID, Event{
		Type:       EventTokenRotated,
		SessionID:  sessionID,
		Token:      token,
		Generation: generation,
		At:         issuedAt,
	})
}

// SessionClosed шлёт терминальное событие и аннулирует все подписки сессии
func (b *Broadcaster) SessionClosed(sessionID uuid.UUID) {
	event := Event{
		Type:      EventSessionClosed,
		SessionID: sessionID,
		At:        time.Now(),
	}

	b.mu.Lock()
	set := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	for sub := range set {
		sub.enqueue(event)
		sub.finish()
	}
}

// publish рассылает событие под мьютексом: события одной сессии попадают
// в очередь каждого подписчика в порядке записи в журнал
func (b *Broadcaster) publish(sessionID uuid.UUID, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[sessionID] {
		if depth := sub.enqueue(event); depth == warnQueueDepth {
			b.logger.Warn("Subscriber is falling behind",
				zap.String("session_id", event.SessionID.String()),
				zap.Int("queued", depth))
		}
	}
}
