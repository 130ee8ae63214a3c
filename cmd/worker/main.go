// Package main is the entry point for one distributed simulation worker
// process (spec §4.G "Distributed Node").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"outcome.io/sim/internal/engineconfig"
	"outcome.io/sim/internal/modelregistry"
	"outcome.io/sim/internal/node"
	"outcome.io/sim/internal/obslog"
	"outcome.io/sim/internal/scenariofs"
	"outcome.io/sim/internal/wsconn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := engineconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := obslog.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer obslog.Sync()

	if cfg.Engine.SelfAddr == "" {
		return fmt.Errorf("engine.self_addr must be set")
	}

	loader := modelregistry.WrapLoader(scenariofs.New(cfg.Engine.ProjectRoot).AsModelLoader())

	sock := wsconn.New(cfg.Engine.SelfAddr, "/ws")
	defer sock.Close()

	n := node.New(sock, cfg.Engine.OrganizerAddr, loader, cfg.Engine.EngineVersion)

	obslog.Info("worker starting",
		zap.String("self_addr", cfg.Engine.SelfAddr),
		zap.String("organizer_addr", cfg.Engine.OrganizerAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Serve(ctx)
	}()

	if err := n.Connect(); err != nil {
		cancel()
		return fmt.Errorf("connect to organizer %s: %w", cfg.Engine.OrganizerAddr, err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		obslog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("node serve: %w", err)
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(cfg.Server.ShutdownTimeout):
		obslog.Warn("worker: Serve did not exit within shutdown timeout")
	}
	obslog.Info("worker stopped", zap.String("state", n.State().String()))
	return nil
}
