package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/hub"
	"github.com/DoyleJ11/codearena/pkg/types"
)

type notifyRequest struct {
	Scope string `json:"scope"`
}

// NotifyLeaderboard is called by the submission service after a scored
// submission. It pushes leaderboard-update to everyone watching that scope.
func NotifyLeaderboard(h *hub.Hub, token string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req notifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		req.Scope = strings.TrimSpace(req.Scope)
		room := types.LeaderboardRoom(req.Scope)
		if !types.ValidRoom(room) {
			writeError(w, http.StatusBadRequest, "missing scope")
			return
		}

		payload, _ := json.Marshal(types.LeaderboardUpdate{Scope: req.Scope})
		env := types.Envelope{Event: types.EventLeaderboardUpdate, Room: room, Payload: payload}
		if !h.Send(hub.Broadcast{Env: env}) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		log.Info("leaderboard update pushed", zap.String("scope", req.Scope))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(struct {
			Room string `json:"room"`
		}{Room: room})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// requestLogger logs plain HTTP requests. The websocket route is mounted
// outside it since the upgrade needs the raw writer.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
