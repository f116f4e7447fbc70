// package syncengine reconciles the remote catalog's playlists into MPD
// stored playlists, resolving ephemeral stream URLs and populating the
// track store along the way.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/tuncenator/ytmpd/internal/catalog"
	"github.com/tuncenator/ytmpd/internal/mpdwire"
	"github.com/tuncenator/ytmpd/internal/resolver"
	"github.com/tuncenator/ytmpd/internal/shared"
	"github.com/tuncenator/ytmpd/internal/trackstore"
)

// resolveConcurrency bounds how many URL resolutions run in parallel within
// a single playlist.
const resolveConcurrency = 10

// Result is one SyncAll pass's outcome. Success is true iff Errors is empty;
// partial syncs still report per-playlist counters.
type Result struct {
	Success         bool      `json:"success"`
	PlaylistsSynced int       `json:"playlistsSynced"`
	PlaylistsFailed int       `json:"playlistsFailed"`
	TracksAdded     int       `json:"tracksAdded"`
	TracksFailed    int       `json:"tracksFailed"`
	DurationSeconds float64   `json:"durationSeconds"`
	Errors          []string  `json:"errors"`
	CompletedAt     time.Time `json:"completedAt"`
}

// Preview is SyncAll's read-only counterpart: it reports what a sync would
// touch without writing anything.
type Preview struct {
	PlaylistNames            []string `json:"playlistNames"`
	TotalTracks              int      `json:"totalTracks"`
	ExistingMPDPlaylistNames []string `json:"existingMPDPlaylistNames"`
}

// Engine ties the catalog, resolver, track store and MPD wire client
// together to run one reconciliation pass.
type Engine struct {
	catalog  catalog.Client
	resolver resolver.Resolver
	store    *trackstore.Store
	mpd      mpdwire.Client

	proxyEnabled bool
	proxyHost    string
	proxyPort    int

	prefixMu sync.RWMutex
	prefix   string

	logger *log.Logger
}

// Config holds Engine's construction-time, mostly static, settings.
type Config struct {
	ProxyEnabled bool
	ProxyHost    string
	ProxyPort    int
	Prefix       string
}

// New builds an Engine wiring all of its collaborators.
func New(catalogClient catalog.Client, res resolver.Resolver, store *trackstore.Store, mpd mpdwire.Client, cfg Config, logger *log.Logger) *Engine {
	return &Engine{
		catalog:      catalogClient,
		resolver:     res,
		store:        store,
		mpd:          mpd,
		proxyEnabled: cfg.ProxyEnabled,
		proxyHost:    cfg.ProxyHost,
		proxyPort:    cfg.ProxyPort,
		prefix:       cfg.Prefix,
		logger:       shared.WithComponent(logger, "sync"),
	}
}

// Prefix returns the playlist name prefix currently in effect.
func (e *Engine) Prefix() string {
	e.prefixMu.RLock()
	defer e.prefixMu.RUnlock()
	return e.prefix
}

// SetPrefix updates the playlist name prefix for subsequent SyncAll passes.
// Safe to call concurrently with a running sync (a SIGHUP-triggered safe
// config reload).
func (e *Engine) SetPrefix(prefix string) {
	e.prefixMu.Lock()
	defer e.prefixMu.Unlock()
	e.prefix = prefix
}

// resolved is one track's outcome from the bounded-parallel resolution
// batch, keyed by its original index so emission order survives concurrent
// completion.
type resolved struct {
	index int
	track catalog.Track
	url   string
	err   error
}

// SyncAll performs one atomic pass: list playlists, resolve URLs, upsert
// into the track store, and rewrite MPD's stored playlists. It never
// returns an error; failures accumulate into the returned Result.
func (e *Engine) SyncAll(ctx context.Context) Result {
	start := time.Now()
	result := Result{Success: true}

	playlists, err := e.catalog.ListPlaylists(ctx)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("list playlists: %v", err))
		result.DurationSeconds = time.Since(start).Seconds()
		result.CompletedAt = time.Now()
		return result
	}

	for _, playlist := range playlists {
		if playlist.TrackCount == 0 {
			e.logger.Warn("skipping empty playlist", "playlist", playlist.Name)
			result.PlaylistsSynced++
			continue
		}

		if err := e.syncPlaylist(ctx, playlist, &result); err != nil {
			result.PlaylistsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("playlist %q: %v", playlist.Name, err))
			continue
		}
		result.PlaylistsSynced++
	}

	result.Success = len(result.Errors) == 0
	result.DurationSeconds = time.Since(start).Seconds()
	result.CompletedAt = time.Now()
	return result
}

func (e *Engine) syncPlaylist(ctx context.Context, playlist catalog.Playlist, result *Result) error {
	tracks, err := e.catalog.GetPlaylistTracks(ctx, playlist.ID)
	if err != nil {
		return fmt.Errorf("fetch tracks: %w", err)
	}

	valid := make([]catalog.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.VideoID == "" {
			continue
		}
		valid = append(valid, t)
	}

	resolvedTracks := e.resolveAll(ctx, valid)

	uris := make([]string, 0, len(resolvedTracks))
	for _, r := range resolvedTracks {
		if r.err != nil {
			result.TracksFailed++
			e.logger.Warn("resolve failed, dropping track", "videoID", r.track.VideoID, "error", r.err)
			continue
		}

		if err := e.store.Upsert(r.track.VideoID, r.url, r.track.Title, r.track.Artist); err != nil {
			result.TracksFailed++
			e.logger.Warn("upsert failed, dropping track", "videoID", r.track.VideoID, "error", err)
			continue
		}

		uris = append(uris, e.entryURI(r.track.VideoID, r.url))
		result.TracksAdded++
	}

	if len(uris) == 0 {
		e.logger.Info("no resolvable tracks, skipping MPD write", "playlist", playlist.Name)
		return fmt.Errorf("no resolvable tracks")
	}

	name := e.Prefix() + playlist.Name
	if err := e.mpd.CreateOrReplacePlaylist(name, uris); err != nil {
		return fmt.Errorf("replace MPD playlist: %w", err)
	}

	return nil
}

// entryURI returns the URI to write into MPD's stored playlist for a
// resolved track: the proxy URL when the proxy is enabled, otherwise the
// resolved upstream URL directly (a compatibility fall-through with no
// metadata or refresh support).
func (e *Engine) entryURI(videoID, upstreamURL string) string {
	if !e.proxyEnabled {
		return upstreamURL
	}
	return fmt.Sprintf("http://%s:%d/proxy/%s", e.proxyHost, e.proxyPort, videoID)
}

// resolveAll resolves every track's stream URL in a bounded-parallel batch,
// re-sorting results back into the caller's original order before returning.
func (e *Engine) resolveAll(ctx context.Context, tracks []catalog.Track) []resolved {
	results := make([]resolved, len(tracks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i, track := range tracks {
		i, track := i, track
		g.Go(func() error {
			url, err := e.resolver.Resolve(gctx, track.VideoID)
			results[i] = resolved{index: i, track: track, url: url, err: err}
			return nil
		})
	}

	// Resolution errors are per-track, not fatal to the batch; no g.Go
	// function returns a non-nil error, so g.Wait always returns nil here.
	_ = g.Wait()

	return results
}

// Preview reports what SyncAll would do without writing anything.
func (e *Engine) Preview(ctx context.Context) (Preview, error) {
	playlists, err := e.catalog.ListPlaylists(ctx)
	if err != nil {
		return Preview{}, fmt.Errorf("list playlists: %w", err)
	}

	preview := Preview{}
	for _, p := range playlists {
		preview.PlaylistNames = append(preview.PlaylistNames, p.Name)
		preview.TotalTracks += p.TrackCount
	}

	existing, err := e.mpd.ListPlaylistNames()
	if err != nil {
		return Preview{}, fmt.Errorf("list MPD playlists: %w", err)
	}
	preview.ExistingMPDPlaylistNames = existing

	return preview, nil
}
