package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	WorkOrderStatusRequested = "requested"
	WorkOrderPriorityMedium  = "medium"
	WorkOrderCategoryPM      = "preventive_maintenance"
)

// WorkOrder is the artifact materialized from a trigger firing. The
// scheduler only ever writes this attribute set; everything else on a
// work order belongs to the API layer.
type WorkOrder struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	Title       string
	Description string

	Status   string
	Priority string
	Category string

	AssetID *uuid.UUID
	DueDate time.Time

	ProgramID uuid.UUID
	TriggerID uuid.UUID

	CreatedBy    uuid.UUID
	IsPreventive bool

	CreatedAt time.Time
}
