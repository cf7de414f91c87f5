package api

import (
	"time"

	"github.com/google/uuid"
)

type ProgramResponse struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Timezone        string `json:"timezone"`
	IsActive        bool   `json:"is_active"`
	LastGeneratedAt string `json:"last_generated_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type RunResponse struct {
	ID           string `json:"id"`
	TriggerID    string `json:"trigger_id"`
	RunAt        string `json:"run_at"`
	ScheduledFor string `json:"scheduled_for"`
	Status       string `json:"status"`
	WorkOrderID  string `json:"work_order_id,omitempty"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type ListProgramsResponse struct {
	Programs []ProgramResponse `json:"programs"`
}

type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
