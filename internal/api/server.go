// Package api serves read-only JSON views of the indexed aggregates.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/models"
)

// EntityReader is the slice of the aggregate store the API reads
type EntityReader interface {
	LoadGovernanceConfig(ctx context.Context, id string) (*models.GovernanceConfig, bool, error)
	LoadProposal(ctx context.Context, id string) (*models.Proposal, bool, error)
	LoadVoteResult(ctx context.Context, id string) (*models.VoteResult, bool, error)
	LoadVote(ctx context.Context, id string) (*models.Vote, bool, error)
	LoadStele(ctx context.Context, id string) (*models.Stele, bool, error)
	LoadChallenge(ctx context.Context, id string) (*models.Challenge, bool, error)
	LoadActiveChallenges(ctx context.Context, id string) (*models.ActiveChallenges, bool, error)
	LoadInvestor(ctx context.Context, id string) (*models.Investor, bool, error)
	LoadToken(ctx context.Context, id string) (*models.Token, bool, error)
	LoadSteleSnapshot(ctx context.Context, id string) (*models.SteleSnapshot, bool, error)
	LoadChallengeSnapshot(ctx context.Context, id string) (*models.ChallengeSnapshot, bool, error)
	LoadInvestorSnapshot(ctx context.Context, id string) (*models.InvestorSnapshot, bool, error)
	LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      EntityReader
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Governor and Stele key the singleton aggregates
	Governor common.Address
	Stele    common.Address
	// Checkpoint names the sync progress row reported by /health
	Checkpoint string

	RequestsPerSecond int // per client, 0 disables limiting
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, store EntityReader, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router: mux.NewRouter(),
		store:  store,
		config: config,
		logger: logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	if s.config.RequestsPerSecond > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)))
	}
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes. Every route also accepts OPTIONS so
// CORSMiddleware can answer preflight requests.
func (s *Server) setupRoutes() {
	read := []string{http.MethodGet, http.MethodOptions}

	s.router.HandleFunc("/health", s.handleHealth).Methods(read...)

	api := s.router.PathPrefix("/api").Subrouter()

	// Governance
	api.HandleFunc("/governance", s.handleGetGovernance).Methods(read...)
	api.HandleFunc("/proposals/{id}", s.handleGetProposal).Methods(read...)
	api.HandleFunc("/proposals/{id}/votes/{voter}", s.handleGetVote).Methods(read...)

	// Challenges
	api.HandleFunc("/stele", s.handleGetStele).Methods(read...)
	api.HandleFunc("/stele/snapshots/{day}", s.handleGetSteleSnapshot).Methods(read...)
	api.HandleFunc("/challenges/{id}", s.handleGetChallenge).Methods(read...)
	api.HandleFunc("/challenges/{id}/snapshots/{day}", s.handleGetChallengeSnapshot).Methods(read...)
	api.HandleFunc("/active-challenges", s.handleGetActiveChallenges).Methods(read...)
	api.HandleFunc("/investors/{challengeId}/{address}", s.handleGetInvestor).Methods(read...)
	api.HandleFunc("/investors/{challengeId}/{address}/snapshots/{day}", s.handleGetInvestorSnapshot).Methods(read...)
	api.HandleFunc("/tokens/{address}", s.handleGetToken).Methods(read...)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", map[string]interface{}{"path": r.URL.Path})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
		})
	})
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
