/*
Package handler provides the HTTP handlers and routing setup for the game server.

Router applies logging, CORS and IP-based rate limiting, then delegates to the session
endpoint, the room lookup and the websocket upgrade.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"masskribbl/internal/pkg/auth/jwt"
	"masskribbl/internal/pkg/limiter"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/pkg/resp"
)

const (
	SessionRate  = 0.1
	SessionBurst = 5
	SocketRate   = 0.2
	SocketBurst  = 10
)

// Router sets up the main HTTP routing table. The returned stop function ends the
// rate limiters' background cleanup.
func Router(deps *AppDeps) (http.Handler, func()) {
	sessionLimiter := limiter.NewIPRateLimiter(rate.Limit(SessionRate), SessionBurst)
	socketLimiter := limiter.NewIPRateLimiter(rate.Limit(SocketRate), SocketBurst)
	stop := func() {
		sessionLimiter.Stop()
		socketLimiter.Stop()
	}

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":  "ok",
			"service": "masskribbl",
			"rooms":   deps.Manager.RoomCount(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.With(sessionLimiter.Middleware).Post("/session", HandleCreateSession(deps))
		api.Get("/rooms/{code}", HandleGetRoom(deps))
	})

	r.With(socketLimiter.Middleware, jwt.RequireIdentity(deps.Config.JWTSecret)).
		Get("/ws", HandleWebSocket(deps.Manager, wsUpgrader))

	return r, stop
}
