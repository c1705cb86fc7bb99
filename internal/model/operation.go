package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityWorker   EntityType = "worker"
	EntityBuilding EntityType = "building"
	EntityClockIn  EntityType = "clock_in"
	EntityPhoto    EntityType = "photo"
	EntityNote     EntityType = "note"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight orders priorities for drain selection; higher drains first.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Weight() > 0
}

type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusSyncing   OperationStatus = "syncing"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
	StatusConflict  OperationStatus = "conflict"
)

// SyncOperation is a single queued mutation targeting one backend entity.
// The sync_operations table is the only source of truth for the queue;
// nothing is mirrored in process memory between drain passes.
type SyncOperation struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Type       OperationType   `db:"type" json:"type"`
	Entity     EntityType      `db:"entity" json:"entity"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Data       json.RawMessage `db:"data" json:"data"`
	Timestamp  time.Time       `db:"timestamp" json:"timestamp"`
	UserID     string          `db:"user_id" json:"user_id"`
	UserRole   string          `db:"user_role" json:"user_role"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	MaxRetries int             `db:"max_retries" json:"max_retries"`
	Priority   Priority        `db:"priority" json:"priority"`
	Status     OperationStatus `db:"status" json:"status"`
	Error      *string         `db:"error" json:"error,omitempty"`
	RetryAt    *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

func ValidEntity(e EntityType) bool {
	switch e {
	case EntityTask, EntityWorker, EntityBuilding, EntityClockIn, EntityPhoto, EntityNote:
		return true
	}
	return false
}

func ValidOperationType(t OperationType) bool {
	switch t {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// QueueStats summarizes the queue for operator visibility.
type QueueStats struct {
	Pending   int `db:"pending" json:"pending"`
	Syncing   int `db:"syncing" json:"syncing"`
	Completed int `db:"completed" json:"completed"`
	Failed    int `db:"failed" json:"failed"`
	Conflict  int `db:"conflict" json:"conflict"`
}
