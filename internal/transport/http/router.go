package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sachinggsingh/synceditor-relay/internal/auth"
	httpmw "github.com/sachinggsingh/synceditor-relay/internal/transport/http/middleware"
	"github.com/sachinggsingh/synceditor-relay/internal/transport/ws"
)

type RouterOptions struct {
	FrontendURL   string
	Verifier      auth.Verifier
	JoinPerMinute int
	APIBurst      int
	APIWindow     time.Duration
}

func NewRouter(h *Handler, wsServer *ws.Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{opts.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// WS endpoint; лимитер на частоту подключений с одного IP
	r.Group(func(wr chi.Router) {
		wr.Use(httpmw.RateLimitPerIP(opts.JoinPerMinute, time.Minute))
		wr.Get("/ws", wsServer.HandleWS)
	})

	// Требует Bearer-токен
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.RequireAuth(opts.Verifier))
		pr.Use(httpmw.RateLimitPerIP(opts.APIBurst, opts.APIWindow))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Post("/execute", h.Execute)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
