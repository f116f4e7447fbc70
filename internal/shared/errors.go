package shared

import "fmt"

// Sentinel errors shared across ytmpd's components, grouped by the taxonomy
// described in the error handling design: configuration, catalog, resolver,
// MPD, store, and proxy failures each get a stable root error so callers can
// classify with errors.Is regardless of the wrapped detail.
var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Catalog errors
	ErrCatalogUnauthorized = fmt.Errorf("catalog rejected credentials")
	ErrCatalogTemporary    = fmt.Errorf("catalog request failed")
	ErrPlaylistNotFound    = fmt.Errorf("playlist not found")

	// Resolver errors
	ErrResolveFailed = fmt.Errorf("stream URL resolution failed")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// MPD wire errors
	ErrMPDRequest = fmt.Errorf("mpd request failed")

	// TrackStore errors
	ErrStoreClosed   = fmt.Errorf("track store is closed")
	ErrStoreIO       = fmt.Errorf("track store I/O error")
	ErrTrackNotFound = fmt.Errorf("track not found")

	// Proxy-related errors. ErrInvalidVideoID is returned by the track
	// store; internal/proxy maps upstream failures to HTTP statuses with its
	// own unexported errors, not with these.
	ErrInvalidVideoID  = fmt.Errorf("invalid video id")
	ErrTooManyStreams  = fmt.Errorf("too many concurrent streams")
	ErrUpstreamFailed  = fmt.Errorf("upstream request failed")
	ErrUpstreamTimeout = fmt.Errorf("upstream first-byte timeout")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
