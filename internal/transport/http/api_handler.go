package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"trivia-scoring-service/internal/app"
	"trivia-scoring-service/internal/domain"
	"trivia-scoring-service/internal/identity"
)

const maxBodyBytes = 1 << 20

// APIHandler exposes the session lifecycle over JSON/HTTP.
type APIHandler struct {
	service  *app.GameService
	identity identity.Provider
	logger   *slog.Logger
}

func NewAPIHandler(service *app.GameService, provider identity.Provider, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{service: service, identity: provider, logger: logger}
}

type playerKey struct{}

// openSessionRequest names the questions explicitly or asks the server to
// pick QuestionCount of them by mode and difficulty.
type openSessionRequest struct {
	Mode          string   `json:"mode"`
	Difficulty    string   `json:"difficulty"`
	QuestionIDs   []string `json:"questionIds"`
	QuestionCount int      `json:"questionCount"`
}

type openSessionResponse struct {
	domain.Session
	Questions []publicQuestion `json:"questions,omitempty"`
}

type questionListResponse struct {
	Data  []publicQuestion `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type submitRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

type syncRequest struct {
	Sessions []domain.Session `json:"sessions"`
}

type syncResponse struct {
	Results []domain.SyncResult `json:"results"`
}

// publicQuestion omits the canonical answer.
type publicQuestion struct {
	ID          string              `json:"id"`
	Prompt      string              `json:"prompt"`
	Type        domain.QuestionType `json:"type"`
	Weight      float64             `json:"weight"`
	ContentHash string              `json:"contentHash"`
	Mode        string              `json:"mode,omitempty"`
	Difficulty  string              `json:"difficulty,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Routes registers every endpoint on a fresh mux wrapped with CORS and request logging.
func (h *APIHandler) Routes(ws *WSHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /sessions", h.authenticated(h.openSession))
	mux.HandleFunc("GET /sessions/{id}", h.authenticated(h.getSession))
	mux.HandleFunc("POST /sessions/{id}/answers", h.authenticated(h.submitAnswers))
	mux.HandleFunc("POST /sessions/{id}/finalize", h.authenticated(h.finalizeSession))
	mux.HandleFunc("POST /sync/queue", h.authenticated(h.syncQueue))
	mux.HandleFunc("GET /players/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /players/me", h.authenticated(h.me))
	mux.HandleFunc("GET /questions", h.listQuestions)
	mux.HandleFunc("GET /questions/{id}", h.question)
	if ws != nil {
		mux.HandleFunc("GET /ws", ws.ServeWS)
	}
	return cors(h.withLogging(mux))
}

func (h *APIHandler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	player := playerFrom(r.Context())

	var (
		resp openSessionResponse
		err  error
	)
	if len(req.QuestionIDs) == 0 && req.QuestionCount > 0 {
		var questions []domain.Question
		resp.Session, questions, err = h.service.StartSession(r.Context(), player, req.Mode, req.Difficulty, req.QuestionCount)
		for _, q := range questions {
			resp.Questions = append(resp.Questions, toPublicQuestion(q))
		}
	} else {
		resp.Session, err = h.service.OpenSession(r.Context(), player, req.Mode, req.Difficulty, req.QuestionIDs)
	}
	if errors.Is(err, domain.ErrUnknownQuestion) {
		// Here the caller picked the questions, so a vault miss is their error.
		h.errorResponse(w, http.StatusBadRequest, domain.Code(err), err.Error())
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, resp)
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Session(r.Context(), playerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, session)
}

func (h *APIHandler) submitAnswers(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	res, err := h.service.SubmitAnswers(r.Context(), playerFrom(r.Context()), r.PathValue("id"), req.Answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, res)
}

func (h *APIHandler) finalizeSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.FinalizeSession(r.Context(), playerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, res)
}

func (h *APIHandler) syncQueue(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := validateSyncPayload(raw); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	var req syncRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	player := playerFrom(r.Context())
	results, err := h.service.SyncBatch(r.Context(), player, req.Sessions)
	if err != nil && results == nil {
		h.writeError(w, r, err)
		return
	}
	synced := 0
	for _, res := range results {
		if res.Status == domain.SyncSynced {
			synced++
		}
	}
	h.logger.Info("sync batch reconciled", "player", player, "sessions", len(results), "synced", synced)
	h.jsonResponse(w, http.StatusOK, syncResponse{Results: results})
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, lb)
}

func (h *APIHandler) me(w http.ResponseWriter, r *http.Request) {
	player := playerFrom(r.Context())
	entry, ok, err := h.service.PlayerStats(r.Context(), player)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		entry = domain.LeaderboardEntry{PlayerID: player}
	}
	h.jsonResponse(w, http.StatusOK, entry)
}

func (h *APIHandler) question(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Question(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, toPublicQuestion(q))
}

// listQuestions serves a page of the catalog filtered by mode and difficulty.
func (h *APIHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := queryInt(query.Get("page"), 1, 1, 1<<20)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
		return
	}
	limit, err := queryInt(query.Get("limit"), 10, 1, 100)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
		return
	}
	res, err := h.service.ListQuestions(r.Context(), domain.QuestionFilter{
		Mode:       query.Get("mode"),
		Difficulty: query.Get("difficulty"),
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := questionListResponse{Data: make([]publicQuestion, 0, len(res.Questions)), Total: res.Total, Page: page, Limit: limit}
	for _, q := range res.Questions {
		out.Data = append(out.Data, toPublicQuestion(q))
	}
	h.jsonResponse(w, http.StatusOK, out)
}

func toPublicQuestion(q domain.Question) publicQuestion {
	return publicQuestion{
		ID:          q.ID,
		Prompt:      q.Prompt,
		Type:        q.Type,
		Weight:      q.Weight,
		ContentHash: q.ContentHash,
		Mode:        q.Mode,
		Difficulty:  q.Difficulty,
	}
}

func queryInt(raw string, fallback, lo, hi int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d outside %d..%d", n, lo, hi)
	}
	return n, nil
}

// authenticated resolves the bearer token to a player before calling next.
func (h *APIHandler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, err := h.verify(r)
		if err != nil {
			h.errorResponse(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, player)))
	}
}

func (h *APIHandler) verify(r *http.Request) (string, error) {
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", identity.ErrInvalidToken
	}
	return h.identity.Verify(token)
}

func playerFrom(ctx context.Context) string {
	player, _ := ctx.Value(playerKey{}).(string)
	return player
}

// writeError maps domain errors to HTTP statuses.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCatalogUnavailable):
		status = http.StatusNotImplemented
	case errors.Is(err, domain.ErrSessionForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSessionExists),
		errors.Is(err, domain.ErrConcurrentUpdate):
		status = http.StatusConflict
	case domain.IsValidationFault(err), errors.Is(err, domain.ErrNotYetEvaluated):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.errorResponse(w, status, domain.Code(err), err.Error())
}

func (h *APIHandler) errorResponse(w http.ResponseWriter, status int, code, message string) {
	h.jsonResponse(w, status, errorResponse{Error: code, Message: message})
}

func (h *APIHandler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// withLogging wraps a handler with request logging.
func (h *APIHandler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors allows cross-origin requests and answers preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
