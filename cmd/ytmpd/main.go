package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/tuncenator/ytmpd/internal/catalog"
	"github.com/tuncenator/ytmpd/internal/daemon"
	"github.com/tuncenator/ytmpd/internal/mpdwire"
	"github.com/tuncenator/ytmpd/internal/proxy"
	"github.com/tuncenator/ytmpd/internal/resolver"
	"github.com/tuncenator/ytmpd/internal/shared"
	"github.com/tuncenator/ytmpd/internal/syncengine"
	"github.com/tuncenator/ytmpd/internal/trackstore"
)

var logger *log.Logger

func main() {
	logger = shared.NewLogger(nil)

	app := &cli.Command{
		Name:    "ytmpd",
		Usage:   "Bridge a remote music catalog's playlists into local MPD",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("daemon exited with error: %v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config, err := loadOrCreateConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := trackstore.Open(config.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open track store: %w", err)
	}
	defer store.Close()

	catalogClient := catalog.NewHTTPClient(config.Catalog.BaseURL, config.Catalog.APIKey, nil)
	urlResolver := resolver.NewHTTPResolver(config.Catalog.ResolverURL, nil)
	mpdClient := mpdwire.NewUnixClient(config.MPD.SocketPath)

	engine := syncengine.New(catalogClient, urlResolver, store, mpdClient, syncengine.Config{
		ProxyEnabled: config.Proxy.Enabled,
		ProxyHost:    config.Proxy.Host,
		ProxyPort:    config.Proxy.Port,
		Prefix:       config.Sync.PlaylistPrefix,
	}, logger)

	icyProxy := proxy.New(proxy.Config{
		Host:                 config.Proxy.Host,
		Port:                 config.Proxy.Port,
		MaxConcurrentStreams: config.Proxy.MaxConcurrentStreams,
		StreamExpiry:         time.Duration(config.Proxy.StreamCacheHours) * time.Hour,
	}, store, urlResolver, logger)

	supervisor := daemon.New(daemon.Config{
		StatePath:         config.Daemon.StatePath,
		CommandSocketPath: config.Daemon.CommandSocketPath,
		AutoSyncEnabled:   config.Sync.AutoSyncEnabled,
		SyncInterval:      time.Duration(config.Sync.IntervalMinutes) * time.Minute,
	}, engine, icyProxy, catalogClient, logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go watchReload(runCtx, configPath, engine, supervisor)

	logger.Info("ytmpd starting", "store", config.Store.Path, "proxy", fmt.Sprintf("%s:%d", config.Proxy.Host, config.Proxy.Port))
	return supervisor.Run(runCtx)
}

// watchReload re-reads configuration on SIGHUP and applies only the safe
// changes (sync interval, playlist prefix); bound ports and sockets require
// a restart.
func watchReload(ctx context.Context, configPath string, engine *syncengine.Engine, supervisor *daemon.Supervisor) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			config, err := shared.LoadConfig(configPath)
			if err != nil {
				logger.Warn("SIGHUP reload failed, keeping current configuration", "error", err)
				continue
			}
			engine.SetPrefix(config.Sync.PlaylistPrefix)
			supervisor.SetSyncInterval(time.Duration(config.Sync.IntervalMinutes) * time.Minute)
			logger.Info("configuration reloaded", "prefix", config.Sync.PlaylistPrefix, "intervalMinutes", config.Sync.IntervalMinutes)
		}
	}
}

func loadOrCreateConfig(path string) (*shared.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return shared.LoadConfig(path)
	}

	logger.Info("config file not found, creating from template", "path", path)
	if err := shared.CreateConfigFile(path); err != nil {
		logger.Warn("failed to create config file, using defaults", "error", err)
		return shared.DefaultConfig(), nil
	}
	return shared.LoadConfig(path)
}
