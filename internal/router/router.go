package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"fancify-backend/internal/handlers"
	"fancify-backend/internal/middleware"
	"fancify-backend/internal/websocket"
)

func New(
	log *zap.Logger,
	jwtAuth *middleware.JWTAuth,
	transformLimiter *middleware.RateLimiter,
	sessionHandler *handlers.SessionHandler,
	wsHub *websocket.Hub,
	static http.Handler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(frontendURL).Handler)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.Create)

		// ──── Widget Session Routes ────
		r.Route("/session", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", sessionHandler.Get)
			r.Put("/rating", sessionHandler.SetRating)
			r.Post("/rating/step", sessionHandler.StepRating)
			r.With(transformLimiter.Middleware).Post("/transform", sessionHandler.Transform)
			r.Post("/clear", sessionHandler.Clear)
			r.Post("/edit", sessionHandler.Edit)
			r.Post("/copy", sessionHandler.Copy)
			r.Get("/history", sessionHandler.History)
			r.Get("/transforms", sessionHandler.Transforms)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	if static != nil {
		r.Handle("/*", static)
	}

	return r
}

// corsHandler allows the configured front-end origins (comma separated).
func corsHandler(frontendURL string) *cors.Cors {
	var origins []string
	for _, o := range strings.Split(frontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
