package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ConflictType string

const (
	ConflictDataMismatch   ConflictType = "data_mismatch"
	ConflictConcurrentEdit ConflictType = "concurrent_edit"
	ConflictDeletion       ConflictType = "deletion_conflict"
)

type ResolutionState string

const (
	ResolutionPending  ResolutionState = "pending"
	ResolutionResolved ResolutionState = "resolved"
)

// ResolutionStrategy names how a conflict's winning payload was chosen.
type ResolutionStrategy string

const (
	StrategyManual     ResolutionStrategy = "manual"
	StrategyServerWins ResolutionStrategy = "server_wins"
	StrategyClientWins ResolutionStrategy = "client_wins"
	StrategyMerge      ResolutionStrategy = "merge"
)

func ValidStrategy(s ResolutionStrategy) bool {
	switch s {
	case StrategyManual, StrategyServerWins, StrategyClientWins, StrategyMerge:
		return true
	}
	return false
}

// SyncConflict records divergence between a queued client mutation and the
// server state observed while applying it. An operation in conflict status
// has exactly one unresolved conflict; resolving it is the only way the
// operation returns to pending.
type SyncConflict struct {
	ID           uuid.UUID          `db:"id" json:"id"`
	OperationID  uuid.UUID          `db:"operation_id" json:"operation_id"`
	ServerData   json.RawMessage    `db:"server_data" json:"server_data"`
	ClientData   json.RawMessage    `db:"client_data" json:"client_data"`
	ConflictType ConflictType       `db:"conflict_type" json:"conflict_type"`
	Resolution   ResolutionState    `db:"resolution" json:"resolution"`
	Strategy     ResolutionStrategy `db:"strategy" json:"strategy,omitempty"`
	ResolvedData json.RawMessage    `db:"resolved_data" json:"resolved_data,omitempty"`
	ResolvedBy   *string            `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time         `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}
