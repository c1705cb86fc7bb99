package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// BackendResolver looks contact details up from the backend worker profile.
// Implements both AddressResolver and PhoneResolver.
type BackendResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBackendResolver(baseURL, apiKey string, client *http.Client) *BackendResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &BackendResolver{baseURL: baseURL, apiKey: apiKey, client: client}
}

type contactProfile struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (r *BackendResolver) EmailFor(ctx context.Context, userID string) (string, error) {
	profile, err := r.fetch(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Email == "" {
		return "", fmt.Errorf("user %s has no email on file", userID)
	}
	return profile.Email, nil
}

func (r *BackendResolver) PhoneFor(ctx context.Context, userID string) (string, error) {
	profile, err := r.fetch(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Phone == "" {
		return "", fmt.Errorf("user %s has no phone on file", userID)
	}
	return profile.Phone, nil
}

func (r *BackendResolver) fetch(ctx context.Context, userID string) (*contactProfile, error) {
	target := r.baseURL + "/api/v1/workers/" + url.PathEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile for user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile lookup for user %s returned status %d", userID, resp.StatusCode)
	}

	var profile contactProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for user %s: %w", userID, err)
	}
	return &profile, nil
}
