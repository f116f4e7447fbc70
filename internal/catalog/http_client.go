package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tuncenator/ytmpd/internal/shared"
)

// HTTPClient is a Client backed by a JSON HTTP API, the same shape as a
// typical remote catalog proxy: bearer-style API key header, one endpoint
// per operation, JSON bodies.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient targeting baseURL, authenticating
// with apiKey. A nil http.Client defaults to http.DefaultClient.
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	url := c.baseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCatalogTemporary, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", shared.ErrCatalogUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrCatalogTemporary, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// ListPlaylists calls GET /playlists on the catalog.
func (c *HTTPClient) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var raw []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		TrackCount int    `json:"track_count"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/playlists", nil, &raw); err != nil {
		return nil, err
	}

	playlists := make([]Playlist, len(raw))
	for i, p := range raw {
		playlists[i] = Playlist{ID: p.ID, Name: p.Name, TrackCount: p.TrackCount}
	}
	return playlists, nil
}

// GetPlaylistTracks calls GET /playlists/{id}/tracks on the catalog,
// dropping any entry with no video_id.
func (c *HTTPClient) GetPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	var raw []struct {
		VideoID  string `json:"video_id"`
		Title    string `json:"title"`
		Artist   string `json:"artist"`
		Duration int    `json:"duration"`
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPlaylistNotFound, err)
	}

	tracks := make([]Track, 0, len(raw))
	for _, t := range raw {
		if t.VideoID == "" {
			continue
		}
		tracks = append(tracks, Track{
			VideoID:  t.VideoID,
			Title:    t.Title,
			Artist:   t.Artist,
			Duration: t.Duration,
		})
	}
	return tracks, nil
}

// GetRating calls GET /tracks/{videoID}/rating on the catalog.
func (c *HTTPClient) GetRating(ctx context.Context, videoID string) (Rating, error) {
	var raw struct {
		Rating string `json:"rating"`
	}

	endpoint := fmt.Sprintf("/tracks/%s/rating", videoID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return RatingNeutral, err
	}

	return parseRating(raw.Rating), nil
}

// SetRating calls PUT /tracks/{videoID}/rating on the catalog.
func (c *HTTPClient) SetRating(ctx context.Context, videoID string, rating Rating) error {
	endpoint := fmt.Sprintf("/tracks/%s/rating", videoID)
	body := struct {
		Rating string `json:"rating"`
	}{Rating: ratingString(rating)}

	return c.doRequest(ctx, http.MethodPut, endpoint, body, nil)
}

func parseRating(s string) Rating {
	switch s {
	case "liked":
		return RatingLiked
	case "disliked":
		return RatingDisliked
	default:
		return RatingNeutral
	}
}

func ratingString(r Rating) string {
	switch r {
	case RatingLiked:
		return "liked"
	case RatingDisliked:
		return "disliked"
	default:
		return "neutral"
	}
}
