package apply

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cyntientops/field-sync/internal/model"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerAPIKey         = "X-API-Key"
)

// entityPaths maps entity types to their backend collection paths.
var entityPaths = map[model.EntityType]string{
	model.EntityTask:     "/api/v1/tasks",
	model.EntityWorker:   "/api/v1/workers",
	model.EntityBuilding: "/api/v1/buildings",
	model.EntityClockIn:  "/api/v1/clock-ins",
	model.EntityPhoto:    "/api/v1/photos",
	model.EntityNote:     "/api/v1/notes",
}

// HTTPApplier applies mutations against the backend REST API. A 409 from
// the backend is surfaced as a DivergenceError carrying the server's copy
// of the entity.
type HTTPApplier struct {
	entity  model.EntityType
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPApplier(entity model.EntityType, baseURL, apiKey string, client *http.Client) (*HTTPApplier, error) {
	if _, ok := entityPaths[entity]; !ok {
		return nil, fmt.Errorf("unknown entity type: %s", entity)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPApplier{
		entity:  entity,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
	}, nil
}

// NewHTTPAppliers builds one applier per entity type, sharing a client.
func NewHTTPAppliers(baseURL, apiKey string, client *http.Client) []Applier {
	if client == nil {
		client = http.DefaultClient
	}
	appliers := make([]Applier, 0, len(entityPaths))
	for entity := range entityPaths {
		a, _ := NewHTTPApplier(entity, baseURL, apiKey, client)
		appliers = append(appliers, a)
	}
	return appliers
}

func (a *HTTPApplier) Entity() model.EntityType { return a.entity }

func (a *HTTPApplier) Apply(ctx context.Context, op *model.SyncOperation) error {
	// Decoding up front rejects malformed payloads before they hit the wire.
	if _, err := model.DecodePayload(op.Entity, op.Data); err != nil {
		return err
	}

	method, target, body := a.request(op)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", a.entity, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerIdempotencyKey, op.ID.String())
	if a.apiKey != "" {
		req.Header.Set(headerAPIKey, a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to apply %s %s: %w", op.Type, a.entity, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		serverData, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &DivergenceError{ServerData: serverData}
	case resp.StatusCode == http.StatusNotFound && op.Type == model.OperationDelete:
		// Deleting something already gone is a success for idempotency.
		return nil
	default:
		return fmt.Errorf("backend rejected %s %s: status %d", op.Type, a.entity, resp.StatusCode)
	}
}

func (a *HTTPApplier) request(op *model.SyncOperation) (method, target string, body io.Reader) {
	base := a.baseURL + entityPaths[a.entity]
	item := base + "/" + url.PathEscape(op.EntityID)

	switch op.Type {
	case model.OperationCreate:
		return http.MethodPost, base, bytes.NewReader(op.Data)
	case model.OperationDelete:
		return http.MethodDelete, item, nil
	default:
		return http.MethodPut, item, bytes.NewReader(op.Data)
	}
}
