package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/archive"
	"github.com/Srjnnnn/blendgate/pkg/channels"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/hooks"
	"github.com/Srjnnnn/blendgate/pkg/logger"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
	"github.com/Srjnnnn/blendgate/pkg/telemetry"
)

// drainGrace bounds how long shutdown waits for in-flight batches.
const drainGrace = 10 * time.Second

func serveCmd() {
	args := os.Args[2:]
	if hasFlag(args, "--debug") || hasFlag(args, "-d") {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := config.LoadConfig(configPathFromArgs(args))
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if !hasFlag(args, "--debug") && !hasFlag(args, "-d") {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}
	if err := cfg.EnsureWorkspace(); err != nil {
		fatalf("Error creating workspace: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, "blendgate", version)
	if err != nil {
		fatalf("Error setting up tracing: %v", err)
	}

	sink, err := hooks.NewJSONLAuditSink(cfg.Workspace)
	if err != nil {
		fatalf("Error opening audit log: %v", err)
	}

	opts := []gateway.Option{gateway.WithAuditSink(sink)}

	var store *archive.Store
	if cfg.Archive.Enabled {
		store, err = archive.Open(cfg.ArchivePath())
		if err != nil {
			fatalf("Error opening batch archive: %v", err)
		}
		opts = append(opts, gateway.WithArchive(store))
	}

	backend := memory.NewBackend()
	gw, err := gateway.New(cfg, backend, version, opts...)
	if err != nil {
		fatalf("Error building gateway: %v", err)
	}

	manager := channels.NewManager()
	if cfg.Channels.HTTP.Enabled {
		manager.Add(channels.NewHTTPChannel(cfg.Channels.HTTP, gw))
	}
	if cfg.Channels.WebSocket.Enabled {
		manager.Add(channels.NewWSChannel(cfg.Channels.WebSocket, gw, version))
	}
	if cfg.Channels.FileWatch.Enabled {
		waitMax := time.Duration(cfg.Execution.RenderTimeoutSec) * time.Second
		manager.Add(channels.NewFileWatchChannel(cfg.Channels.FileWatch, cfg.WatchDir(), waitMax, gw))
	}
	gw.SetChannelReporter(manager.States)

	gw.Start(ctx)
	if err := manager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	fmt.Printf("%s v%s serving\n", displayName, version)
	if cfg.Channels.HTTP.Enabled {
		fmt.Printf("  HTTP:      http://%s:%d\n", cfg.Channels.HTTP.Host, cfg.Channels.HTTP.Port)
	}
	if cfg.Channels.WebSocket.Enabled {
		fmt.Printf("  WebSocket: ws://%s:%d\n", cfg.Channels.WebSocket.Host, cfg.Channels.WebSocket.Port)
	}
	if cfg.Channels.FileWatch.Enabled {
		fmt.Printf("  FileDrop:  %s\n", cfg.WatchDir())
	}
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	manager.StopAll()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainGrace)
	defer drainCancel()
	gw.Stop(drainCtx)

	sink.Close()
	if store != nil {
		if err := store.Close(); err != nil {
			fmt.Printf("Error closing archive: %v\n", err)
		}
	}
	if err := shutdownTracing(drainCtx); err != nil {
		fmt.Printf("Error flushing traces: %v\n", err)
	}
	fmt.Println("Gateway stopped")
}
