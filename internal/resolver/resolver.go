// package resolver defines the stream URL resolver's client interface.
//
// The resolver is an external collaborator: given a videoID it returns a
// current, playable audio URL. SyncEngine and the ICY proxy both depend on
// this interface; this package also provides one HTTP adapter so the daemon
// is runnable end to end.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tuncenator/ytmpd/internal/shared"
)

// Resolver turns a videoID into a current upstream audio URL.
type Resolver interface {
	Resolve(ctx context.Context, videoID string) (string, error)
}

// HTTPResolver is a Resolver backed by a JSON HTTP API: one GET request per
// videoID. Unlike the catalog client, it sends no Authorization header.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPResolver creates an HTTPResolver targeting baseURL. A nil
// http.Client defaults to http.DefaultClient.
func NewHTTPResolver(baseURL string, httpClient *http.Client) *HTTPResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPResolver{baseURL: baseURL, httpClient: httpClient}
}

// Resolve calls GET /resolve/{videoID} and returns the resolved URL.
func (r *HTTPResolver) Resolve(ctx context.Context, videoID string) (string, error) {
	url := fmt.Sprintf("%s/resolve/%s", r.baseURL, videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrResolveFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return "", fmt.Errorf("%w: %v", shared.ErrTimeout, shared.ErrResolveFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", shared.ErrResolveFailed, resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode resolver response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty url for %q", shared.ErrResolveFailed, videoID)
	}

	return out.URL, nil
}
