package apperr

import "errors"

// Общие ошибки доменного ядра. Каждая проверка пайплайна сообщает только
// собственную причину отказа и ничего не говорит об остальных факторах.
var (
	ErrConflict              = errors.New("active session already exists for course")
	ErrNotFound              = errors.New("session not found")
	ErrClosed                = errors.New("session is closed")
	ErrOutOfBounds           = errors.New("position is outside the course zone")
	ErrStaleToken            = errors.New("token is stale")
	ErrIdentityNotRecognized = errors.New("identity not recognized")
	ErrForbidden             = errors.New("not the session owner")
	ErrTimeout               = errors.New("verification timed out")
)

// Message возвращает короткое пользовательское сообщение для ошибки
func Message(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "An attendance session is already running for this course"
	case errors.Is(err, ErrNotFound):
		return "Session not found"
	case errors.Is(err, ErrClosed):
		return "Session is no longer accepting check-ins"
	case errors.Is(err, ErrOutOfBounds):
		return "You are outside the classroom zone"
	case errors.Is(err, ErrStaleToken):
		return "Code expired, scan the current one"
	case errors.Is(err, ErrIdentityNotRecognized):
		return "Face not recognized"
	case errors.Is(err, ErrForbidden):
		return "Only the session owner can do this"
	case errors.Is(err, ErrTimeout):
		return "Verification took too long, try again"
	default:
		return "Something went wrong"
	}
}
