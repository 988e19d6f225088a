package gateway

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Alpha-ashu/Candidate-Experience/internal/aiproxy"
	"github.com/Alpha-ashu/Candidate-Experience/internal/anticheat"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/config"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/metrics"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

// Server wires every component behind the HTTP / Duplex Gateway (spec
// §4.7): it holds no business logic of its own beyond request parsing,
// auth, and response shaping — every decision is delegated to the
// component it fronts.
type Server struct {
	cfg       config.Config
	store     store.Store
	sm        *statemachine.Machine
	anticheat *anticheat.Engine
	ai        *aiproxy.Engine
	bus       *bus.Hub
	authority *token.Authority
	log       *logging.Logger
	limiter   *rateLimiter
	nextQ     *sessionLocks
}

// New builds a Server over its already-constructed dependencies (the
// composition root wires these from config; see cmd/server).
func New(cfg config.Config, st store.Store, sm *statemachine.Machine, ac *anticheat.Engine, ai *aiproxy.Engine, b *bus.Hub, authority *token.Authority, log *logging.Logger) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		sm:        sm,
		anticheat: ac,
		ai:        ai,
		bus:       b,
		authority: authority,
		log:       log,
		limiter:   newRateLimiter(cfg.RateLimitPerMinute),
		nextQ:     newSessionLocks(),
	}
}

// Router builds the full route table of spec §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(s.log))
	r.Use(loggingMiddleware(s.log))
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	r.Use(s.limiter.middleware())

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	r.HandleFunc("/auth/login", metrics.Instrument("/auth/login", s.handleLogin)).Methods("POST")

	r.HandleFunc("/interview/sessions", metrics.Instrument("/interview/sessions", s.handleCreateSession)).Methods("POST")
	r.HandleFunc("/interview/{id}/token/acet", metrics.Instrument("/interview/{id}/token/acet", s.handleIssueACET)).Methods("POST")
	r.HandleFunc("/interview/{id}/token/aipt", metrics.Instrument("/interview/{id}/token/aipt", s.handleIssueAIPT)).Methods("POST")
	r.HandleFunc("/interview/{id}/token/refresh", metrics.Instrument("/interview/{id}/token/refresh", s.handleRefreshTokens)).Methods("POST")
	r.HandleFunc("/interview/{id}/precheck", metrics.Instrument("/interview/{id}/precheck", s.handlePrecheck)).Methods("POST")
	r.HandleFunc("/interview/{id}/start", metrics.Instrument("/interview/{id}/start", s.handleStart)).Methods("POST")
	r.HandleFunc("/interview/{id}/next-question", metrics.Instrument("/interview/{id}/next-question", s.handleNextQuestion)).Methods("POST")
	r.HandleFunc("/interview/{id}/answer", metrics.Instrument("/interview/{id}/answer", s.handleAnswer)).Methods("POST")
	r.HandleFunc("/interview/{id}/code-eval", metrics.Instrument("/interview/{id}/code-eval", s.handleCodeEval)).Methods("POST")
	r.HandleFunc("/interview/{id}/anti-cheat", metrics.Instrument("/interview/{id}/anti-cheat", s.handleAntiCheatIngest)).Methods("POST")
	r.HandleFunc("/interview/{id}/anti-cheat/tail", metrics.Instrument("/interview/{id}/anti-cheat/tail", s.handleAntiCheatTail)).Methods("GET")
	r.HandleFunc("/interview/{id}/finalize", metrics.Instrument("/interview/{id}/finalize", s.handleFinalize)).Methods("POST")
	r.HandleFunc("/interview/{id}/summary", metrics.Instrument("/interview/{id}/summary", s.handleSummary)).Methods("GET")
	r.HandleFunc("/interview/{id}/review", metrics.Instrument("/interview/{id}/review", s.handleReview)).Methods("GET")
	r.HandleFunc("/interview/{id}/state", metrics.Instrument("/interview/{id}/state", s.handleState)).Methods("GET")
	r.HandleFunc("/interview/{id}/stream", s.handleStream).Methods("GET")

	r.HandleFunc("/media/upload", metrics.Instrument("/media/upload", s.handleMediaUpload)).Methods("POST")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
