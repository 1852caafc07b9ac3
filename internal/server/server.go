package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/handler"
	"github.com/dukerupert/chorly/internal/middleware"
	"github.com/dukerupert/chorly/internal/store"
	ws "github.com/dukerupert/chorly/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	choreH      *handler.ChoreHandler
	occurrenceH *handler.OccurrenceHandler
	memberH     *handler.MemberHandler
	tenantH     *handler.TenantHandler
	tenants     *store.TenantStore
	members     *store.MemberStore
	rateLimiter *middleware.RateLimiter
	metrics     http.Handler
	logger      *slog.Logger
}

// New builds the HTTP surface over svc. metrics may be nil, in which case
// /metrics is not served.
func New(db *sql.DB, svc *chore.Service, hub *ws.Hub, metrics http.Handler, logger *slog.Logger) *Server {
	tenantStore := store.NewTenantStore(db)
	memberStore := store.NewMemberStore(db)
	ledgerStore := store.NewLedgerStore(db)

	return &Server{
		db:          db,
		hub:         hub,
		choreH:      handler.NewChoreHandler(svc, logger.With("component", "chore")),
		occurrenceH: handler.NewOccurrenceHandler(svc, logger.With("component", "occurrence")),
		memberH:     handler.NewMemberHandler(memberStore, ledgerStore, logger.With("component", "member")),
		tenantH:     handler.NewTenantHandler(tenantStore, memberStore, svc, logger.With("component", "tenant")),
		tenants:     tenantStore,
		members:     memberStore,
		rateLimiter: middleware.NewRateLimiter(10, time.Minute),
		metrics:     metrics,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.Handle("POST /api/tenants", s.limited(http.HandlerFunc(s.tenantH.Create)))
	mux.HandleFunc("GET /api/catalog", s.choreH.Catalog)
	mux.Handle("GET /ws/{tenant}", s.tenant(ws.HandleWebSocket(s.hub)))

	s.registerTenantRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

// tenant resolves {tenant} and the optional acting member.
func (s *Server) tenant(h http.Handler) http.Handler {
	return middleware.RequireTenant(s.tenants, s.members)(h)
}

func (s *Server) limited(h http.Handler) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.TenantKey)(h)
}

func (s *Server) registerTenantRoutes(mux *http.ServeMux) {
	const base = "/api/tenants/{tenant}"
	read := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.tenant(h))
	}
	member := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.tenant(middleware.RequireMember(h)))
	}
	admin := func(pattern string, h http.Handler) {
		mux.Handle(pattern, s.tenant(middleware.RequireAdmin(h)))
	}

	// Members
	read("GET "+base+"/members", s.memberH.List)
	admin("POST "+base+"/members", http.HandlerFunc(s.memberH.Create))
	admin("PUT "+base+"/members/{id}/availability", http.HandlerFunc(s.memberH.SetAvailability))
	read("GET "+base+"/members/{id}/ledger", s.memberH.Ledger)

	// Chore definitions
	read("GET "+base+"/chores", s.choreH.List)
	read("GET "+base+"/chores/{id}", s.choreH.Get)
	admin("POST "+base+"/chores", http.HandlerFunc(s.choreH.Create))
	admin("PUT "+base+"/chores/{id}", http.HandlerFunc(s.choreH.Update))
	admin("DELETE "+base+"/chores/{id}", http.HandlerFunc(s.choreH.Delete))
	admin("POST "+base+"/chores/{id}/clone", http.HandlerFunc(s.choreH.Clone))
	admin("POST "+base+"/chores/{id}/materialize", s.limited(http.HandlerFunc(s.choreH.Materialize)))
	admin("POST "+base+"/templates/seed", http.HandlerFunc(s.choreH.SeedTemplates))

	// Occurrences
	read("GET "+base+"/occurrences", s.occurrenceH.List)
	read("GET "+base+"/occurrences/{id}", s.occurrenceH.Get)
	member("POST "+base+"/occurrences/{id}/done", s.occurrenceH.Done)
	member("POST "+base+"/occurrences/{id}/undo", s.occurrenceH.Undo)
	member("POST "+base+"/occurrences/{id}/approve", s.occurrenceH.Approve)
	admin("PATCH "+base+"/occurrences/{id}", http.HandlerFunc(s.occurrenceH.Update))
	admin("DELETE "+base+"/occurrences/{id}", http.HandlerFunc(s.occurrenceH.Delete))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": s.hub.ClientCount()})
}
