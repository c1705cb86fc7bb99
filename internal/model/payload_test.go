package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadDispatch(t *testing.T) {
	cases := []struct {
		entity EntityType
		raw    string
		check  func(t *testing.T, p Payload)
	}{
		{
			entity: EntityTask,
			raw:    `{"title":"Sweep lobby","building_id":"bld-14","status":"open","updated_at":"2026-08-22T10:00:00Z"}`,
			check: func(t *testing.T, p Payload) {
				task, ok := p.(TaskPayload)
				require.True(t, ok)
				assert.Equal(t, "Sweep lobby", task.Title)
				assert.Equal(t, "bld-14", task.BuildingID)
			},
		},
		{
			entity: EntityWorker,
			raw:    `{"name":"Kevin","role":"worker","status":"active","updated_at":"2026-08-22T10:00:00Z"}`,
			check: func(t *testing.T, p Payload) {
				w, ok := p.(WorkerPayload)
				require.True(t, ok)
				assert.Equal(t, "Kevin", w.Name)
			},
		},
		{
			entity: EntityBuilding,
			raw:    `{"name":"Rubin Museum","address":"150 W 17th St","status":"active","updated_at":"2026-08-22T10:00:00Z"}`,
			check: func(t *testing.T, p Payload) {
				b, ok := p.(BuildingPayload)
				require.True(t, ok)
				assert.Equal(t, "Rubin Museum", b.Name)
			},
		},
		{
			entity: EntityClockIn,
			raw:    `{"worker_id":"worker-7","building_id":"bld-14","clock_in":"2026-08-23T08:00:00Z","updated_at":"2026-08-23T08:00:00Z"}`,
			check: func(t *testing.T, p Payload) {
				c, ok := p.(ClockInPayload)
				require.True(t, ok)
				assert.Equal(t, "worker-7", c.WorkerID)
				assert.Nil(t, c.ClockOut)
			},
		},
		{
			entity: EntityPhoto,
			raw:    `{"building_id":"bld-14","local_path":"/tmp/p.jpg","updated_at":"2026-08-22T10:00:00Z"}`,
			check: func(t *testing.T, p Payload) {
				ph, ok := p.(PhotoPayload)
				require.True(t, ok)
				assert.Equal(t, "/tmp/p.jpg", ph.LocalPath)
			},
		},
		{
			entity: EntityNote,
			raw:    `{"body":"boiler inspected","updated_at":"2026-08-22T10:00:00Z"}`,
			check: func(t *testing.T, p Payload) {
				n, ok := p.(NotePayload)
				require.True(t, ok)
				assert.Equal(t, "boiler inspected", n.Body)
			},
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.entity), func(t *testing.T) {
			p, err := DecodePayload(tc.entity, json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.entity, p.EntityType())
			assert.False(t, p.Meta().UpdatedAt.IsZero())
			tc.check(t, p)
		})
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	_, err := DecodePayload("tenant", json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = DecodePayload(EntityTask, json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestExtractMeta(t *testing.T) {
	meta := ExtractMeta(json.RawMessage(`{"deleted":true,"updated_at":"2026-08-22T10:00:00Z","title":"x"}`))
	assert.True(t, meta.Deleted)
	assert.Equal(t, time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC), meta.UpdatedAt)

	empty := ExtractMeta(nil)
	assert.False(t, empty.Deleted)
	assert.True(t, empty.UpdatedAt.IsZero())

	// Malformed server data degrades to the zero envelope.
	bad := ExtractMeta(json.RawMessage(`not-json`))
	assert.False(t, bad.Deleted)
}
