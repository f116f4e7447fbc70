// package daemon implements ytmpd's process supervisor: it owns component
// lifetimes, schedules periodic syncs, serves the Unix command socket,
// persists daemon state, and shuts down cleanly on signal.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tuncenator/ytmpd/internal/catalog"
	"github.com/tuncenator/ytmpd/internal/proxy"
	"github.com/tuncenator/ytmpd/internal/ratingmachine"
	"github.com/tuncenator/ytmpd/internal/shared"
	"github.com/tuncenator/ytmpd/internal/syncengine"
)

// gracefulShutdownTimeout caps each sync pass: runSync gives SyncAll a
// context that expires after this long. Because of that cap, Stop waits at
// most this long for an in-flight scheduled sync; a sync started by the
// `sync` command is not waited for.
const gracefulShutdownTimeout = 30 * time.Second

// Config holds the Supervisor's construction-time settings.
type Config struct {
	StatePath         string
	CommandSocketPath string
	AutoSyncEnabled   bool
	SyncInterval      time.Duration
}

// Supervisor owns the sync scheduler, the command socket, and the proxy's
// lifetime. Only one instance should run against a given StatePath and
// CommandSocketPath at a time.
type Supervisor struct {
	id     string
	cfg    Config
	engine *syncengine.Engine
	proxy  *proxy.Proxy
	cat    catalog.Client
	logger *log.Logger

	state State

	mu             sync.Mutex
	syncInProgress bool

	listener net.Listener
	ticker   *time.Ticker
	wg       sync.WaitGroup

	signalOnce sync.Once
	stopOnce   sync.Once
	shutdown   chan struct{}
}

// New builds a Supervisor. It does not start anything yet; call Run.
func New(cfg Config, engine *syncengine.Engine, p *proxy.Proxy, cat catalog.Client, logger *log.Logger) *Supervisor {
	state := loadState(cfg.StatePath)
	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now()
	}

	id := shared.GenerateID()

	return &Supervisor{
		id:       id,
		cfg:      cfg,
		engine:   engine,
		proxy:    p,
		cat:      cat,
		logger:   shared.WithComponent(logger, "daemon").With("instance", id),
		state:    state,
		shutdown: make(chan struct{}),
	}
}

// Run binds the command socket and the proxy listener, starts the sync
// scheduler if auto-sync is enabled, and blocks until ctx is canceled or
// Stop is called.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.bindCommandSocket(); err != nil {
		return fmt.Errorf("failed to bind command socket: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.proxy.Start(); err != nil {
			s.logger.Error("proxy stopped", "error", err)
		}
	}()

	if s.cfg.AutoSyncEnabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduleLoop(ctx)
		}()
	}

	select {
	case <-ctx.Done():
	case <-s.shutdown:
	}

	return s.Stop()
}

// signalShutdown closes the shutdown channel exactly once, waking up Run's
// select and any in-flight command handlers waiting on it.
func (s *Supervisor) signalShutdown() {
	s.signalOnce.Do(func() { close(s.shutdown) })
}

// Stop begins graceful shutdown: stops accepting new commands, drains the
// proxy, and closes resources. Safe to call more than once.
func (s *Supervisor) Stop() error {
	s.signalShutdown()

	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
		if proxyErr := s.proxy.Stop(); proxyErr != nil {
			s.logger.Warn("proxy shutdown error", "error", proxyErr)
		}
		s.wg.Wait()
	})
	return nil
}

func (s *Supervisor) scheduleLoop(ctx context.Context) {
	s.runSync(ctx)

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	s.mu.Lock()
	s.ticker = ticker
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

// SetSyncInterval applies a new periodic sync interval, a "safe" config
// change per spec: it takes effect on the next tick without restarting the
// daemon. Bound ports/sockets are not reloadable this way.
func (s *Supervisor) SetSyncInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.SyncInterval = interval
	if s.ticker != nil {
		s.ticker.Reset(interval)
	}
}

// runSync enforces at-most-one-concurrent-sync: a tick or command that
// finds a sync already running skips with a warning rather than queueing.
func (s *Supervisor) runSync(ctx context.Context) {
	s.mu.Lock()
	if s.syncInProgress {
		s.mu.Unlock()
		s.logger.Warn("sync already in progress, skipping")
		return
	}
	s.syncInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncInProgress = false
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()

	result := s.engine.SyncAll(syncCtx)

	s.mu.Lock()
	s.state.LastSync = time.Now()
	s.state.LastSyncResult = &result
	s.mu.Unlock()

	if err := s.state.save(s.cfg.StatePath); err != nil {
		s.logger.Warn("failed to persist daemon state", "error", err)
	}

	if !result.Success {
		s.logger.Warn("sync completed with errors", "errors", result.Errors)
	} else {
		s.logger.Info("sync completed", "tracksAdded", result.TracksAdded, "playlistsSynced", result.PlaylistsSynced)
	}
}

func (s *Supervisor) bindCommandSocket() error {
	if _, err := os.Stat(s.cfg.CommandSocketPath); err == nil {
		if err := os.Remove(s.cfg.CommandSocketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.cfg.CommandSocketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.cfg.CommandSocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	return nil
}

func (s *Supervisor) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.logger.Warn("accept failed", "error", err)
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Supervisor) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	command := scanner.Text()

	response := s.dispatch(command)

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Warn("failed to marshal command response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("command response write failed", "error", err)
	}
}

func (s *Supervisor) dispatch(command string) any {
	verb, rest, _ := strings.Cut(command, " ")
	switch verb {
	case "rate":
		return s.dispatchRate(rest)
	case "sync":
		go s.runSync(context.Background())
		return map[string]any{"success": true, "message": "sync started"}
	case "status":
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]any{
			"state":   s.state,
			"syncing": s.syncInProgress,
		}
	case "list":
		playlists, err := s.cat.ListPlaylists(context.Background())
		if err != nil {
			return map[string]any{"success": false, "message": err.Error()}
		}
		return map[string]any{"success": true, "playlists": playlists}
	case "quit":
		go s.signalShutdown()
		return map[string]any{"success": true, "message": "shutting down"}
	default:
		return map[string]any{"success": false, "message": fmt.Sprintf("%v: %q", shared.ErrInvalidInput, command)}
	}
}

// dispatchRate handles `rate <videoID> <like|dislike>`: it reads the
// catalog's current (possibly ambiguous) rating, runs the pure transition,
// and writes the result back. Per spec §4.5 the transition itself has no
// I/O; the daemon is the only component that reads and writes upstream.
func (s *Supervisor) dispatchRate(args string) any {
	videoID, actionWord, ok := strings.Cut(strings.TrimSpace(args), " ")
	if !ok || videoID == "" {
		return map[string]any{"success": false, "message": fmt.Sprintf("%v: usage: rate <videoID> <like|dislike>", shared.ErrInvalidInput)}
	}

	var action ratingmachine.Action
	switch strings.TrimSpace(actionWord) {
	case "like":
		action = ratingmachine.Like
	case "dislike":
		action = ratingmachine.Dislike
	default:
		return map[string]any{"success": false, "message": fmt.Sprintf("%v: action must be %q or %q", shared.ErrInvalidInput, "like", "dislike")}
	}

	ctx := context.Background()
	current, err := s.cat.GetRating(ctx, videoID)
	if err != nil {
		return map[string]any{"success": false, "message": fmt.Sprintf("failed to read current rating: %v", err)}
	}

	next := ratingmachine.Transition(current, action)

	if err := s.cat.SetRating(ctx, videoID, next); err != nil {
		return map[string]any{"success": false, "message": fmt.Sprintf("failed to write new rating: %v", err)}
	}

	return map[string]any{"success": true, "rating": next}
}
