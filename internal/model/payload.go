package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is implemented by every entity payload variant. The Data field of
// a SyncOperation always decodes into exactly one of these, keyed by the
// operation's Entity, so appliers can switch exhaustively instead of
// working with untyped maps.
type Payload interface {
	EntityType() EntityType
	Meta() PayloadMeta
}

// PayloadMeta is the envelope every payload carries; the conflict ledger
// classifies divergence from these two fields alone.
type PayloadMeta struct {
	Deleted   bool      `json:"deleted,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m PayloadMeta) Meta() PayloadMeta { return m }

type TaskPayload struct {
	PayloadMeta
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	BuildingID  string     `json:"building_id"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (TaskPayload) EntityType() EntityType { return EntityTask }

type WorkerPayload struct {
	PayloadMeta
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (WorkerPayload) EntityType() EntityType { return EntityWorker }

type BuildingPayload struct {
	PayloadMeta
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Status    string  `json:"status"`
}

func (BuildingPayload) EntityType() EntityType { return EntityBuilding }

type ClockInPayload struct {
	PayloadMeta
	WorkerID   string     `json:"worker_id"`
	BuildingID string     `json:"building_id"`
	ClockIn    time.Time  `json:"clock_in"`
	ClockOut   *time.Time `json:"clock_out,omitempty"`
}

func (ClockInPayload) EntityType() EntityType { return EntityClockIn }

type PhotoPayload struct {
	PayloadMeta
	TaskID     string `json:"task_id,omitempty"`
	BuildingID string `json:"building_id"`
	LocalPath  string `json:"local_path"`
	RemoteURL  string `json:"remote_url,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
}

func (PhotoPayload) EntityType() EntityType { return EntityPhoto }

type NotePayload struct {
	PayloadMeta
	BuildingID string `json:"building_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Body       string `json:"body"`
}

func (NotePayload) EntityType() EntityType { return EntityNote }

// DecodePayload unmarshals raw operation data into the variant for the
// given entity type.
func DecodePayload(entity EntityType, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch entity {
	case EntityTask:
		var v TaskPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityWorker:
		var v WorkerPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityBuilding:
		var v BuildingPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityClockIn:
		var v ClockInPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityPhoto:
		var v PhotoPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityNote:
		var v NotePayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown entity type: %s", entity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", entity, err)
	}
	return p, nil
}

// ExtractMeta pulls the envelope fields out of a raw payload without
// decoding the full variant. Used when classifying conflicts, where server
// data may be a partial document.
func ExtractMeta(raw json.RawMessage) PayloadMeta {
	var m PayloadMeta
	if len(raw) == 0 {
		return m
	}
	_ = json.Unmarshal(raw, &m)
	return m
}
