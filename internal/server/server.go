package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"intentledger/internal/config"
	"intentledger/internal/hmacauth"
	"intentledger/internal/identity"
	"intentledger/internal/ledger"
	"intentledger/internal/logger"
	"intentledger/internal/registry"
)

type Server struct {
	cfg        *config.AppConfig
	store      ledger.Store
	log        logger.Logger
	auth       func(http.Handler) http.Handler
	httpServer *http.Server
	metrics    *metricsRegistry
	dbHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, store ledger.Store, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		log:     log,
		auth:    authMiddleware(cfg),
		metrics: newMetricsRegistry(),
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/initialize", s.auth(http.HandlerFunc(s.handleInitialize)))
	mux.Handle("POST /api/v1/intents", s.auth(http.HandlerFunc(s.handleCreateIntent)))
	mux.Handle("POST /api/v1/intents/{id}/fulfill", s.auth(http.HandlerFunc(s.handleMarkFulfilled)))
	mux.HandleFunc("GET /api/v1/intents", s.handleListIntents)
	mux.HandleFunc("GET /api/v1/intents/{id}", s.handleGetIntent)
	mux.Handle("GET /api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func authMiddleware(cfg *config.AppConfig) func(http.Handler) http.Handler {
	if strings.EqualFold(cfg.Auth.Mode, "jwt") {
		v := &identity.JWTVerifier{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Audience: cfg.Auth.JWTAudience,
		}
		return v.Middleware
	}
	keys := make(hmacauth.Keyring, len(cfg.Auth.Keyring))
	for caller, secret := range cfg.Auth.Keyring {
		keys[identity.Identity(caller)] = secret
	}
	v := &hmacauth.Verifier{
		Keys:    keys,
		MaxSkew: cfg.Service.HMACClockSkew,
	}
	return v.Middleware
}

// Handler exposes the routed handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Notice("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type initializeRequest struct {
	Owner string `json:"owner"`
}

type fulfillRequest struct {
	PayoutTxHash string `json:"payout_tx_hash"`
}

type mutationResponse struct {
	Status   string `json:"status"`
	IntentID string `json:"intent_id,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

type listResponse struct {
	Intents []registry.PaymentIntent `json:"intents"`
}

type getResponse struct {
	Intent *registry.PaymentIntent `json:"intent"`
}

// handleInitialize claims the registry. Only an authenticated caller may do
// it, but that caller need not be the owner it names.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller := identity.CallerFrom(r.Context())
	if caller == identity.Anonymous {
		http.Error(w, "initialize requires an authenticated caller", http.StatusUnauthorized)
		return
	}

	var payload initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	owner := identity.Identity(strings.TrimSpace(payload.Owner))
	if err := s.store.Initialize(r.Context(), owner); err != nil {
		s.log.Error("initialize failed: %v", err)
		s.writeError(w, err)
		return
	}
	s.log.Notice("registry initialized with owner %s by %s", owner, caller)
	s.metrics.setOpenIntents(0)
	writeJSON(w, http.StatusCreated, mutationResponse{Status: "initialized", Owner: string(owner)})
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var in registry.IntentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	caller := identity.CallerFrom(r.Context())
	var openCount int
	err := s.store.Update(r.Context(), func(c *registry.Contract) error {
		if err := c.CreateIntent(caller, in); err != nil {
			return err
		}
		openCount = len(c.ListOpenIntents())
		return nil
	})
	if err != nil {
		s.metrics.incCreated(outcome(err, "failed"))
		s.log.Error("create intent %s by %s: %v", in.ID, caller, err)
		s.writeError(w, err)
		return
	}

	s.metrics.incCreated("created")
	s.metrics.setOpenIntents(openCount)
	s.log.Info("intent created: %s payment=%s chain=%s amount=%s", in.ID, in.PaymentID, in.DestChain, registry.ParseAmountAtomic(in.AmountAtomic))
	writeJSON(w, http.StatusCreated, mutationResponse{Status: "created", IntentID: in.ID})
}

func (s *Server) handleMarkFulfilled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var payload fulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	caller := identity.CallerFrom(r.Context())
	var (
		changed   bool
		openCount int
	)
	err := s.store.Update(r.Context(), func(c *registry.Contract) error {
		var err error
		changed, err = c.MarkFulfilled(caller, id, payload.PayoutTxHash)
		if err != nil {
			return err
		}
		openCount = len(c.ListOpenIntents())
		return nil
	})
	if err != nil {
		s.metrics.incFulfillment(outcome(err, "failed"))
		s.log.Error("mark fulfilled %s by %s: %v", id, caller, err)
		s.writeError(w, err)
		return
	}

	status := "fulfilled"
	if changed {
		s.log.Info("intent fulfilled: %s payout_tx=%s", id, payload.PayoutTxHash)
	} else {
		status = "noop"
		s.log.Debug("mark fulfilled for unknown intent %s ignored", id)
	}
	s.metrics.incFulfillment(status)
	s.metrics.setOpenIntents(openCount)
	writeJSON(w, http.StatusOK, mutationResponse{Status: status, IntentID: id})
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" && status != string(registry.StateOpen) {
		http.Error(w, "only status=open is supported", http.StatusBadRequest)
		return
	}

	var intents []registry.PaymentIntent
	err := s.store.View(r.Context(), func(c *registry.Contract) error {
		intents = c.ListOpenIntents()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.incQuery("list_open")
	s.metrics.setOpenIntents(len(intents))
	writeJSON(w, http.StatusOK, listResponse{Intents: intents})
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var resp getResponse
	err := s.store.View(r.Context(), func(c *registry.Contract) error {
		if intent, ok := c.GetIntent(id); ok {
			resp.Intent = &intent
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.incQuery("get")
	writeJSON(w, http.StatusOK, resp)
}

func outcome(err error, fallback string) string {
	if errors.Is(err, registry.ErrUnauthorized) {
		return "unauthorized"
	}
	return fallback
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, registry.ErrEmptyOwner):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrAlreadyInitialized):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	dbInfo := struct {
		Backend   string  `json:"backend"`
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Backend: s.cfg.Storage.Backend, Connected: true}

	if s.dbHealthFn != nil {
		start := time.Now()
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		} else {
			dbInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	initialized := true
	if err := s.store.View(ctx, func(*registry.Contract) error { return nil }); err != nil {
		initialized = false
		if !errors.Is(err, ledger.ErrNotInitialized) {
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status      string      `json:"status"`
		Database    interface{} `json:"database"`
		Initialized bool        `json:"initialized"`
	}{
		Status:      status,
		Database:    dbInfo,
		Initialized: initialized,
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
