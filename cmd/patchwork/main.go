// Patchwork - sharded multiplayer game server.
//
// Patchwork hosts one or more map shards of a shared world, speaks the
// versioned binary game protocol over TCP, routes each player's packet
// stream to the shard owning their position, and bridges players across
// shard borders to peer hosts. A REST API, MQTT telemetry, and an
// interactive console observe the running server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/api"
	"github.com/patchwork-project/patchwork/internal/cli"
	"github.com/patchwork-project/patchwork/internal/config"
	"github.com/patchwork-project/patchwork/internal/events"
	"github.com/patchwork-project/patchwork/internal/game"
	"github.com/patchwork-project/patchwork/internal/keepalive"
	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/network"
	"github.com/patchwork-project/patchwork/internal/patchwork"
	"github.com/patchwork-project/patchwork/internal/telemetry"
	"github.com/patchwork-project/patchwork/internal/util"
)

const (
	AppName    = "Patchwork"
	AppVersion = "1.0.0"
	Banner     = `
  ____       _       _                       _
 |  _ \ __ _| |_ ___| |____      _____  _ __| | __
 | |_) / _' | __/ __| '_ \ \ /\ / / _ \| '__| |/ /
 |  __/ (_| | || (__| | | \ V  V / (_) | |  |   <
 |_|   \__,_|\__\___|_| |_|\_/\_/ \___/|_|  |_|\_\  v%s
 Sharded game world server
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Patchwork")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.Log.Level,
		Directory:  cfg.Log.Directory,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	bus := events.NewBus()
	world := cfg.GetWorld()
	srv := cfg.GetServer()

	msgr := messenger.New(world.ChunkSize)
	players := game.NewPlayerState(msgr, 0, world.EntityIDBlockSize)
	blocks := game.NewBlockState(msgr)
	gameplay := game.NewGameplay(players, msgr)
	dialer := network.NewPeerDialer(msgr)

	router := patchwork.NewRouter(patchwork.Config{
		ChunkSize:         world.ChunkSize,
		EntityIDBlockSize: world.EntityIDBlockSize,
		ProtocolVersion:   srv.ProtocolVersion,
	}, msgr, players, blocks, gameplay.Route, dialer.Dial, bus)

	// Provision the configured peer shards behind the local shard.
	for _, p := range world.Peers {
		peer := patchwork.Peer{Address: p.Address, Port: p.Port}
		router.AddMap(&peer)
	}

	tcpListener := network.NewTCPListener(cfg, msgr, players, router, bus)
	heartbeat := keepalive.NewTicker(msgr, time.Duration(srv.KeepAliveSeconds)*time.Second)
	apiServer := api.NewServer(cfg, msgr, router)
	cliHandler := cli.NewCLI(cfg, bus, msgr, router)

	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, bus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Shutdown can also be requested from the CLI.
	bus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		cancel()
		return nil
	})

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Task 1: actor loops
	for name, run := range map[string]func(context.Context){
		"messenger":    msgr.Run,
		"patchwork":    router.Run,
		"player_state": players.Run,
		"block_state":  blocks.Run,
		"keepalive":    heartbeat.Run,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer wg.Done()
			log.Info().Str("actor", name).Msg("starting actor")
			run(ctx)
		}(name, run)
	}

	// Task 2: game TCP listener
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Uint16("port", srv.Port).Msg("starting game listener")
		if err := startWithRetry(ctx, "game listener", tcpListener.Start, 15); err != nil {
			log.Error().Err(err).Msg("game listener failed after retries")
			errCh <- fmt.Errorf("game listener: %w", err)
		}
	}()

	// Task 3: REST API server
	if cfg.API.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	// Task 4: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 5: interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	bus.Stop()

	log.Info().Msg("Patchwork stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. A fixed 3-second interval gives the OS time to release sockets
// after a previous process was killed.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
