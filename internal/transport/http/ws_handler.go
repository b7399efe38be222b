package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/domain"
)

type WSHandler struct {
	engine   *app.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Answer string `json:"answer"`
}

type sessionPayload struct {
	ID    string        `json:"id"`
	Key   domain.SetKey `json:"key"`
	Total int           `json:"total"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request, starts a session for the requested topic and
// difficulty and drives it from client messages until the connection closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	difficulty := r.URL.Query().Get("difficulty")
	if topic == "" || difficulty == "" {
		http.Error(w, "missing topic or difficulty", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, startErr := h.engine.StartSession(ctx, topic, difficulty)
	id := session.ID()
	defer h.engine.End(id)

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("ws write error", "session", id, "error", err)
				return
			}
		}
	}()

	push(outboundMessage[any]{Type: "session", Payload: sessionPayload{ID: id, Key: session.Key(), Total: questionCount(session)}})
	if startErr != nil {
		push(errorMessage(startErr))
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
				if snap.Phase != domain.PhaseFinished {
					continue
				}
				summary, err := session.Summary()
				if err != nil {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "summary", Payload: summary}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.engine.Touch(ctx, id); err != nil {
			slog.Warn("session liveness refresh failed", "session", id, "error", err)
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}})
				continue
			}
			if err := session.SelectAnswer(payload.Answer); err != nil {
				push(errorMessage(err))
			}
		case "submit":
			if _, err := session.SubmitAnswer(); err != nil {
				push(errorMessage(err))
			}
		case "next":
			if err := session.Advance(); err != nil {
				push(errorMessage(err))
			}
		case "retry":
			if _, err := h.engine.Restart(ctx, id); err != nil {
				push(errorMessage(err))
			}
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// questionCount is the size of the loaded set, or 0 when loading failed.
func questionCount(session *app.Session) int {
	view, err := session.CurrentQuestion()
	if err != nil {
		return 0
	}
	return view.Total
}

// errorMessage keeps session-control errors verbatim and renders load
// failures the way the player should see them.
func errorMessage(err error) outboundMessage[any] {
	msg := err.Error()
	if !errors.Is(err, domain.ErrInvalidTransition) &&
		!errors.Is(err, domain.ErrNoSelection) &&
		!errors.Is(err, domain.ErrUnknownAnswer) {
		msg = domain.UserMessage(err)
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
