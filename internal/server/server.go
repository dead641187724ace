package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stock-trading-sim-go/internal/auth"
	"stock-trading-sim-go/internal/portfolio"
	"stock-trading-sim-go/internal/quotes"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server is the HTTP front end over the auth service, the quote client and
// the accounting engine.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Auth   *auth.Service
	Engine *portfolio.Engine
	Quotes quotes.ClientInterface
	DB     *gorm.DB
}

// New creates the HTTP server with all routes mounted.
func New(port int, deps Deps, logger *zap.Logger) *Server {
	h := &handlers{
		logger: logger.Named("http"),
		auth:   deps.Auth,
		engine: deps.Engine,
		quotes: deps.Quotes,
		db:     deps.DB,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.logout)

			r.Get("/quote/{symbol}", h.getQuote)
			r.Get("/search", h.searchSymbols)

			r.Get("/watchlist", h.listWatchlist)
			r.Post("/watchlist", h.addWatchlistItem)
			r.Delete("/watchlist/{symbol}", h.removeWatchlistItem)

			r.Post("/trades", h.createTrade)
			r.Get("/trades", h.listTrades)
			r.Delete("/trades/{id}", h.deleteTrade)

			r.Get("/portfolio", h.getPortfolio)
			r.Get("/performance", h.getPerformance)
		})
	})

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		},
		logger: logger,
	}
}

// Start runs the server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping web server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
