package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter собирает все маршруты API
func NewRouter(teacher *TeacherHandler, student *StudentHandler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(loggingMiddleware(logger))

	sessions := api.PathPrefix("/sessions").Subrouter()

	/* teacher routes */
	sessions.HandleFunc("", teacher.OpenSession).Methods("POST")
	sessions.HandleFunc("/{session_id}", teacher.GetSession).Methods("GET")
	sessions.HandleFunc("/{session_id}/close", teacher.CloseSession).Methods("POST")
	sessions.HandleFunc("/{session_id}/attendance", teacher.ListAttendance).Methods("GET")
	sessions.HandleFunc("/{session_id}/feed", teacher.Feed).Methods("GET")

	/* student routes */
	sessions.HandleFunc("/{session_id}/check-in", student.CheckIn).Methods("POST")
	sessions.HandleFunc("/{session_id}/frame-check-in", student.CheckInFrame).Methods("POST")

	return router
}

// loggingMiddleware пишет строку лога на каждый запрос
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
