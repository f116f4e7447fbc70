// package proxy implements the ICY/Shoutcast streaming proxy that MPD talks
// to: it resolves a videoID to an upstream audio URL via the track store,
// refreshes stale entries, and relays bytes while advertising metadata
// headers MPD clients render.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/tuncenator/ytmpd/internal/resolver"
	"github.com/tuncenator/ytmpd/internal/shared"
	"github.com/tuncenator/ytmpd/internal/trackstore"
)

const (
	copyChunkSize       = 8 * 1024
	firstByteTimeout    = 10 * time.Second
	maxRetryAttempts    = 3
	shutdownGracePeriod = 5 * time.Second
)

// Config holds Proxy's construction-time settings.
type Config struct {
	Host                 string
	Port                 int
	MaxConcurrentStreams int
	StreamExpiry         time.Duration
}

// Proxy is the ICY streaming proxy server.
type Proxy struct {
	cfg      Config
	store    *trackstore.Store
	resolver resolver.Resolver
	logger   *log.Logger

	httpClient *http.Client
	server     *http.Server

	mu     sync.Mutex
	active int
}

// New builds a Proxy wiring the track store and resolver.
func New(cfg Config, store *trackstore.Store, res resolver.Resolver, logger *log.Logger) *Proxy {
	if cfg.MaxConcurrentStreams <= 0 {
		cfg.MaxConcurrentStreams = 10
	}
	if cfg.StreamExpiry <= 0 {
		cfg.StreamExpiry = 5 * time.Hour
	}

	p := &Proxy{
		cfg:      cfg,
		store:    store,
		resolver: res,
		logger:   shared.WithComponent(logger, "proxy"),
		httpClient: &http.Client{
			Timeout: 0, // per-request timeout is enforced via context, not the client's wall clock
		},
	}

	router := newBasicRouter()
	router.use(loggingMiddleware(p.logger))
	router.handle(http.MethodGet, "/proxy/", http.HandlerFunc(p.handleStream))
	router.handle(http.MethodGet, "/health", http.HandlerFunc(p.handleHealth))
	p.server = &http.Server{Handler: router}

	return p
}

// Start binds the configured TCP listener and serves until Stop is called
// or the listener errors. It fails fast on bind errors.
func (p *Proxy) Start() error {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind proxy listener on %s: %w", addr, err)
	}

	p.logger.Info("proxy listening", "addr", addr)
	if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy server error: %w", err)
	}
	return nil
}

// Stop drains in-flight streams with a short grace period then closes the
// listener and any still-open connections.
func (p *Proxy) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return p.server.Close()
		}
		return err
	}
	return nil
}

func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (p *Proxy) handleStream(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Path[len("/proxy/"):]

	if !trackstore.VideoIDPattern.MatchString(videoID) {
		http.Error(w, "malformed videoID", http.StatusBadRequest)
		return
	}

	if !p.admit() {
		http.Error(w, "too many concurrent streams", http.StatusServiceUnavailable)
		return
	}
	defer p.release()

	rec, err := p.store.Get(videoID)
	if err != nil {
		http.Error(w, "unknown videoID", http.StatusNotFound)
		return
	}

	streamURL := rec.StreamURL
	if time.Since(rec.UpdatedAt) > p.cfg.StreamExpiry {
		fresh, err := p.resolver.Resolve(r.Context(), videoID)
		if err != nil {
			p.logger.Warn("refresh failed, falling back to stale URL", "videoID", videoID, "error", err)
		} else {
			if err := p.store.UpdateStreamURL(videoID, fresh); err != nil {
				p.logger.Warn("failed to persist refreshed URL", "videoID", videoID, "error", err)
			}
			streamURL = fresh
		}
	}

	p.relay(w, r, videoID, streamURL, rec.Title, rec.Artist)
}

// admit attempts to claim one of the concurrency slots, returning false if
// the cap would be exceeded.
func (p *Proxy) admit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= p.cfg.MaxConcurrentStreams {
		return false
	}
	p.active++
	return true
}

func (p *Proxy) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
}

// relay opens the upstream request (with retry on transient failure) and
// copies bytes downstream, writing ICY headers before the first body byte.
func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, videoID, streamURL, title, artist string) {
	resp, err := p.fetchUpstreamWithRetry(r.Context(), streamURL)
	if err != nil {
		if errors.Is(err, errUpstreamTimeout) {
			http.Error(w, "upstream first-byte timeout", http.StatusGatewayTimeout)
			return
		}
		if errors.Is(err, errUpstreamPermanent) {
			http.Error(w, "upstream rejected request", http.StatusBadGateway)
			return
		}
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("icy-name", icyName(artist, title))
	w.Header().Set("icy-metaint", "16000")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil {
		// A write failure downstream means the client disconnected; that is
		// a cooperative signal to stop, not an error worth surfacing.
		p.logger.Debug("stream copy ended", "videoID", videoID, "error", err)
	}
}

func icyName(artist, title string) string {
	if artist == "" {
		return title
	}
	return artist + " - " + title
}

var (
	errUpstreamTimeout   = errors.New("upstream first-byte timeout")
	errUpstreamPermanent = errors.New("upstream permanent failure")
)

// isPermanentStatus reports whether an upstream HTTP status must not be
// retried.
func isPermanentStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return true
	default:
		return false
	}
}

// isTransientStatus reports whether an upstream HTTP status is eligible for
// retry: any 5xx other than 501 and 505.
func isTransientStatus(status int) bool {
	if status < 500 {
		return false
	}
	return status != http.StatusNotImplemented && status != http.StatusHTTPVersionNotSupported
}

// fetchUpstreamWithRetry issues the upstream GET, making at most
// maxRetryAttempts attempts in total and retrying transient failures with
// exponential backoff paced by a rate.Limiter (1s, then 2s).
func (p *Proxy) fetchUpstreamWithRetry(ctx context.Context, url string) (*http.Response, error) {
	// A fresh Limiter starts with its burst token already available, so
	// without draining it here the first backoff wait below would be
	// granted instantly instead of actually pacing ~1s.
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	limiter.AllowN(time.Now(), 1)

	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			limiter.SetBurst(1)
			limiter.SetLimit(rate.Every(backoff))
			if err := limiter.WaitN(ctx, 1); err != nil {
				return nil, fmt.Errorf("%w: %v", errUpstreamTimeout, err)
			}
		}

		// The timeout only bounds time-to-first-byte: cancel fires if headers
		// don't arrive in time, but is disarmed once they do, so the body
		// stream itself has no wall-clock cap.
		reqCtx, cancel := context.WithCancel(ctx)
		timer := time.AfterFunc(firstByteTimeout, cancel)

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			timer.Stop()
			cancel()
			return nil, err
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			timedOut := !timer.Stop()
			cancel()
			if timedOut || ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", errUpstreamTimeout, err)
			}
			lastErr = err
			continue
		}
		timer.Stop()

		if isPermanentStatus(resp.StatusCode) {
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("%w: status %d", errUpstreamPermanent, resp.StatusCode)
		}
		if isTransientStatus(resp.StatusCode) {
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("transient upstream status %d", resp.StatusCode)
			continue
		}

		return &http.Response{
			Status:        resp.Status,
			StatusCode:    resp.StatusCode,
			Header:        resp.Header,
			Body:          &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel},
			ContentLength: resp.ContentLength,
		}, nil
	}

	return nil, fmt.Errorf("upstream failed after %d attempts: %w", maxRetryAttempts, lastErr)
}

// cancelOnCloseBody ties a response body's lifetime to its request's
// context cancel func, so firstByteTimeout's context is released exactly
// once the caller is done reading.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
