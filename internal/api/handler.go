// Package api is the read-only operator surface. Program and trigger
// writes belong to the main WorkPro application; this service only
// exposes what it generates.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/domain"
	"github.com/RCK777-BALL/workpro-pmscheduler/internal/scheduler"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	ListPrograms(ctx context.Context, limit, offset int) ([]domain.Program, error)
	ListTriggerRuns(ctx context.Context, triggerID uuid.UUID, limit, offset int) ([]domain.TriggerRun, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SchedulerStatus reports the scheduler handle state for verbose health.
type SchedulerStatus interface {
	State() scheduler.State
	Healthy() bool
}

type Handler struct {
	store Store
	db    HealthChecker
	sched SchedulerStatus
}

func NewHandler(st Store) *Handler {
	return &Handler{store: st}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithSchedulerStatus sets the scheduler handle for verbose /health responses.
func (h *Handler) WithSchedulerStatus(s SchedulerStatus) *Handler {
	h.sched = s
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/programs" && r.Method == http.MethodGet:
		h.listPrograms(w, r)

	case strings.HasSuffix(path, "/runs") && r.Method == http.MethodGet:
		h.listRuns(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		// Simple health check - just return ok
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	// Verbose health check - check all components
	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	// Check database connectivity with timeout
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	if h.sched != nil {
		resp.Components["scheduler"] = h.sched.State().String()
		if !h.sched.Healthy() {
			resp.Status = "degraded"
		}
	}

	// Return appropriate status code based on health
	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	programs, err := h.store.ListPrograms(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list programs error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list programs")
		return
	}

	resp := ListProgramsResponse{Programs: make([]ProgramResponse, len(programs))}
	for i, p := range programs {
		resp.Programs[i] = ProgramResponse{
			ID:              p.ID.String(),
			TenantID:        p.TenantID.String(),
			Name:            p.Name,
			Description:     p.Description,
			Timezone:        p.Timezone,
			IsActive:        p.IsActive,
			LastGeneratedAt: formatTimePtr(p.LastGeneratedAt),
			CreatedAt:       formatTime(p.CreatedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	// Extract trigger ID from path: /triggers/{id}/runs
	path := r.URL.Path
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "triggers" || parts[2] != "runs" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	triggerID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trigger id")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.store.ListTriggerRuns(r.Context(), triggerID, limit, offset)
	if err != nil {
		log.Printf("api: list runs error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	resp := ListRunsResponse{Runs: make([]RunResponse, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = RunResponse{
			ID:           run.ID.String(),
			TriggerID:    run.TriggerID.String(),
			RunAt:        formatTime(run.RunAt),
			ScheduledFor: formatTime(run.ScheduledFor),
			Status:       string(run.Status),
			WorkOrderID:  uuidPtrString(run.WorkOrderID),
			Error:        run.Error,
			CreatedAt:    formatTime(run.CreatedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
