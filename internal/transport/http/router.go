package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/domain"
)

// NewRouter mounts the health check, the topic catalog and the websocket
// endpoint. gate, when non-nil, guards everything except /healthz.
func NewRouter(engine *app.Engine, gate func(http.Handler) http.Handler) http.Handler {
	ws := NewWSHandler(engine)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		if gate != nil {
			r.Use(gate)
		}
		r.Get("/topics", handleTopics)
		r.Get("/ws", ws.ServeWS)
	})
	return r
}

func handleTopics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(domain.Topics())
}
