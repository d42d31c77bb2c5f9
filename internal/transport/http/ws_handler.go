package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-scoring-service/internal/app"
	"trivia-scoring-service/internal/domain"
	"trivia-scoring-service/internal/identity"
)

// WSHandler streams live leaderboard snapshots and accepts submit/finalize
// messages for the connected player.
type WSHandler struct {
	service  *app.GameService
	identity identity.Provider
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, provider identity.Provider, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service:  service,
		identity: provider,
		logger:   logger,
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

type submitPayload struct {
	SessionID string                    `json:"sessionId"`
	Answers   []domain.AnswerSubmission `json:"answers"`
}

type finalizePayload struct {
	SessionID string `json:"sessionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type helloPayload struct {
	PlayerID string `json:"playerId"`
}

func wsError(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the session use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	playerID, err := h.identity.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	feed := h.service.Feed()
	if feed == nil {
		http.Error(w, "leaderboard feed disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := feed.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "player", playerID, "error", err)
				// Unblock the reader so the handler can unwind.
				_ = conn.Close()
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "hello", Payload: helloPayload{PlayerID: playerID}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
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

read:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		select {
		case send <- h.dispatch(r, playerID, inbound):
		case <-writerDone:
			break read
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, playerID string, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "submit":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return wsError("invalid_body", "invalid submit payload")
		}
		res, err := h.service.SubmitAnswers(r.Context(), playerID, payload.SessionID, payload.Answers)
		if err != nil {
			return wsError(domain.Code(err), err.Error())
		}
		return outboundMessage[any]{Type: "submitted", Payload: res}
	case "finalize":
		var payload finalizePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return wsError("invalid_body", "invalid finalize payload")
		}
		res, err := h.service.FinalizeSession(r.Context(), playerID, payload.SessionID)
		if err != nil {
			return wsError(domain.Code(err), err.Error())
		}
		return outboundMessage[any]{Type: "finalized", Payload: res}
	default:
		return wsError("unsupported", "unsupported message type")
	}
}
