package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/hub"
	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/internal/ws"
)

type Options struct {
	OriginPatterns []string
	NotifyToken    string
	Log            *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	log := logging.OrNop(opts.Log)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", ws.Handler(h, ws.Options{OriginPatterns: opts.OriginPatterns, Log: log}))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(log))
		r.Get("/healthz", Healthz)
		r.Post("/leaderboard/notify", NotifyLeaderboard(h, opts.NotifyToken, log))
	})
	return r
}
