// Package api wires the three external adapters spec §6 names —
// internal/api/snowflake, internal/api/ui, internal/api/auth — onto a
// single net/http.ServeMux, following the teacher's
// internal/api/v1/server.go Server/RegisterRoutes shape.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apiauth "github.com/embucket/embucket/internal/api/auth"
	"github.com/embucket/embucket/internal/api/common"
	"github.com/embucket/embucket/internal/api/snowflake"
	"github.com/embucket/embucket/internal/api/ui"
	"github.com/embucket/embucket/internal/config"
	"github.com/embucket/embucket/internal/query"
)

type routeSource interface {
	Routes() []common.Route
}

// Server aggregates every adapter's routes onto one mux.
type Server struct {
	config   *config.Config
	handlers []routeSource
}

// New builds the Server with the full adapter set wired against a
// shared query.Engine.
func New(cfg *config.Config, engine *query.Engine) (*Server, error) {
	authService, err := apiauth.NewService(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{config: cfg}
	s.handlers = []routeSource{
		apiauth.NewHandler(authService),
		snowflake.NewHandler(engine),
		ui.NewHandler(engine, authService, cfg),
	}
	return s, nil
}

// RegisterRoutes installs every adapter's routes onto mux, wrapping
// each with its declared middleware chain plus request logging.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	for _, h := range s.handlers {
		for _, route := range h.Routes() {
			handler := withRequestLog(route.Chain())
			mux.HandleFunc(route.Method+" "+route.Path, handler)
		}
	}
}

func withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		log.Trace().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	}
}
