package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raptor0929/torito/internal/observability"
	"github.com/raptor0929/torito/internal/persistence"
	"github.com/raptor0929/torito/internal/projection"
	"github.com/raptor0929/torito/internal/query"
)

// StateCache holds the most recent core snapshot for serving in-memory
// state reads (debts, collateral, currencies) without touching the
// single-threaded core. The orchestrator refreshes it on every snapshot.
type StateCache struct {
	mu   sync.RWMutex
	snap *persistence.SnapshotData
}

func (c *StateCache) Set(snap *persistence.SnapshotData) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func (c *StateCache) Get() *persistence.SnapshotData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// ServerDeps holds all dependencies needed by the HTTP handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	SnapshotMgr   *persistence.SnapshotManager
	StateCache    *StateCache
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// HTTPServer serves the read API, admin API, and operational endpoints.
type HTTPServer struct {
	server *http.Server
	addr   string
}

// NewHTTPServer builds the chi router and wires all routes.
func NewHTTPServer(addr string, deps *ServerDeps) *HTTPServer {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{deps: deps}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/balances/{userID}/{token}", h.getBalance)
		r.Get("/positions/{userID}", h.listCollateralPositions)
		r.Get("/debts/{debtID}", h.getDebt)
		r.Get("/debts", h.listDebts)
		r.Get("/loans/{debtID}/history", h.getLoanHistory)
		r.Get("/journals/{userID}", h.getJournalHistory)
		r.Get("/events", h.listEvents)
		r.Get("/currencies", h.listCurrencies)
		r.Get("/status", h.getStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", h.verifyIntegrity)
			r.Post("/rebuild-projections", h.rebuildProjections)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	if deps.HealthChecker != nil {
		r.Get("/healthz", deps.HealthChecker.LivenessHandler)
		r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: r,
		},
		addr: addr,
	}
}

// Start runs the server until the context is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type handlers struct {
	deps *ServerDeps
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	token := chi.URLParam(r, "token")

	bal, err := h.deps.QueryService.GetBalance(r.Context(), userID, token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get balance failed")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *handlers) listCollateralPositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := uuid.Parse(userID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	snap := h.deps.StateCache.Get()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "state not yet available")
		return
	}

	positions := make([]persistence.CollateralPositionSnap, 0)
	for _, p := range snap.Collateral {
		if p.UserID == userID {
			positions = append(positions, p)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions":      positions,
		"as_of_sequence": snap.Sequence,
	})
}

func (h *handlers) getDebt(w http.ResponseWriter, r *http.Request) {
	debtID := chi.URLParam(r, "debtID")
	if _, err := uuid.Parse(debtID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid debt id")
		return
	}

	snap := h.deps.StateCache.Get()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "state not yet available")
		return
	}

	for _, d := range snap.Debts {
		if d.ID == debtID {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"debt":           d,
				"as_of_sequence": snap.Sequence,
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "debt not found")
}

func (h *handlers) listDebts(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.StateCache.Get()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "state not yet available")
		return
	}

	userFilter := r.URL.Query().Get("user_id")
	debts := make([]persistence.DebtPositionSnap, 0)
	for _, d := range snap.Debts {
		if userFilter == "" || d.UserID == userFilter {
			debts = append(debts, d)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"debts":          debts,
		"as_of_sequence": snap.Sequence,
	})
}

func (h *handlers) getLoanHistory(w http.ResponseWriter, r *http.Request) {
	debtID, err := uuid.Parse(chi.URLParam(r, "debtID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid debt id")
		return
	}

	limit := queryLimit(r, 50, 100)
	afterSeq := queryAfterSequence(r)

	var currency *string
	if c := r.URL.Query().Get("currency"); c != "" {
		currency = &c
	}

	history, err := h.deps.QueryService.GetLoanHistory(r.Context(), debtID, currency, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get loan history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (h *handlers) getJournalHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit := queryLimit(r, 100, 500)
	afterSeq := queryAfterSequence(r)

	entries, err := h.deps.QueryService.GetJournalHistory(r.Context(), userID, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get journals failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	afterSeq := queryAfterSequence(r)

	events, err := h.deps.QueryService.GetEvents(r.Context(), limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *handlers) listCurrencies(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.StateCache.Get()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "state not yet available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"currencies":     snap.Currencies,
		"as_of_sequence": snap.Sequence,
	})
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	latestSeq, err := h.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get status failed")
		return
	}

	resp := map[string]interface{}{
		"last_sequence":  latestSeq,
		"uptime_seconds": int64(time.Since(h.deps.StartTime).Seconds()),
	}
	if snap := h.deps.StateCache.Get(); snap != nil {
		resp["paused"] = snap.Paused
		resp["snapshot_sequence"] = snap.Sequence
		resp["state_hash"] = hex.EncodeToString(snap.StateHash)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "verify integrity failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) rebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildProjections(r.Context(), h.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

// --- helpers ---

func queryLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func queryAfterSequence(r *http.Request) *int64 {
	v := r.URL.Query().Get("after")
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
