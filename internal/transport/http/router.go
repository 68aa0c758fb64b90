package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/hub"
)

const qrSize = 320

// RouterConfig carries the collaborators of the HTTP surface.
type RouterConfig struct {
	Service *app.RoomService
	Tokens  *auth.JWTService // nil disables authentication
	Metrics *hub.Metrics
	Logger  *zap.Logger
	// JoinURL is the public base players open to join, e.g. https://quiz.example.com/join.
	// Empty derives it from the request host.
	JoinURL    string
	SendBuffer int
}

type api struct {
	cfg RouterConfig
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = hub.NewMetrics()
	}
	a := &api{cfg: cfg}
	ws := NewWSHandler(cfg.Service, cfg.Tokens, cfg.Metrics, cfg.Logger, cfg.SendBuffer)

	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		cfg.Logger.Error("panic in handler", zap.String("path", r.URL.Path), zap.Any("panic", v))
		writeError(w, http.StatusInternalServerError, "internal error")
	}

	mux.GET("/healthz", a.health)
	mux.GET("/metrics", a.metrics)
	mux.GET("/rooms", a.liveRooms)
	mux.POST("/rooms", a.createRoom)
	mux.GET("/rooms/:code", a.roomInfo)
	mux.GET("/rooms/:code/leaderboard", a.leaderboard)
	mux.GET("/rooms/:code/qr", a.qr)
	mux.GET("/ws/:code/:role", ws.ServeWS)
	mux.POST("/quizzes/:id/refresh", a.refreshQuiz)

	return logRequests(cfg.Logger, mux)
}

func (a *api) health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	_, _ = w.Write([]byte("ok"))
}

func (a *api) metrics(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, a.cfg.Metrics.Snapshot())
}

type createRoomRequest struct {
	QuizID int64 `json:"quiz_id"`
}

// owner resolves the caller when authentication is enabled. A nil owner with
// ok set means authentication is off.
func (a *api) owner(w http.ResponseWriter, r *http.Request) (ownerID *int64, ok bool) {
	if a.cfg.Tokens == nil {
		return nil, true
	}
	claims, err := a.cfg.Tokens.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	return &claims.UserID, true
}

func (a *api) liveRooms(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	codes, err := a.cfg.Service.LiveRooms(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": codes})
}

func (a *api) refreshQuiz(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ownerID, ok := a.owner(w, r)
	if !ok {
		return
	}
	quizID, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || quizID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return
	}
	if err := a.cfg.Service.RefreshQuiz(r.Context(), quizID, ownerID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ownerID, ok := a.owner(w, r)
	if !ok {
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID <= 0 {
		writeError(w, http.StatusBadRequest, "quiz_id required")
		return
	}

	created, err := a.cfg.Service.CreateRoom(r.Context(), req.QuizID, ownerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *api) roomInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	info, err := a.cfg.Service.RoomInfo(r.Context(), strings.ToUpper(ps.ByName("code")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entries, err := a.cfg.Service.Leaderboard(r.Context(), strings.ToUpper(ps.ByName("code")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// qr renders a PNG QR code of the player join URL.
func (a *api) qr(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := strings.ToUpper(ps.ByName("code"))
	if _, err := a.cfg.Service.RoomInfo(r.Context(), code); err != nil {
		writeServiceError(w, err)
		return
	}

	png, err := qrcode.Encode(a.joinURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *api) joinURL(r *http.Request, code string) string {
	if a.cfg.JoinURL != "" {
		return strings.TrimSuffix(a.cfg.JoinURL, "/") + "/" + code
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/join/" + code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
