// Package main is the entry point for the simulation engine's central
// authority process (spec §4.H).
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
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/modelregistry"
	"outcome.io/sim/internal/obslog"
	"outcome.io/sim/internal/organizer"
	"outcome.io/sim/internal/scenariofs"
	"outcome.io/sim/internal/workerpool"
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

	if cfg.Engine.ScenarioName == "" {
		return fmt.Errorf("engine.scenario_name must be set")
	}

	loader := modelregistry.WrapLoader(scenariofs.New(cfg.Engine.ProjectRoot).AsModelLoader())
	m, err := model.Load(loader, cfg.Engine.ScenarioName, cfg.Engine.EngineVersion)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pools, err := workerpool.NewPools(ctx, workerpool.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		TransportPoolSize: cfg.Worker.TransportPoolSize,
	})
	if err != nil {
		return fmt.Errorf("init worker pools: %w", err)
	}
	defer pools.Shutdown()

	policy, err := organizer.ParsePolicy(cfg.Organizer.PlacementPolicy)
	if err != nil {
		return fmt.Errorf("organizer: %w", err)
	}

	sock := wsconn.New("organizer", "/ws")
	if err := sock.Bind(cfg.Engine.BindAddr); err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Engine.BindAddr, err)
	}
	defer sock.Close()

	org := organizer.New(sock, m, organizer.Config{
		ScenarioName:  cfg.Engine.ScenarioName,
		EngineVersion: cfg.Engine.EngineVersion,
		TaskTimeout:   cfg.Organizer.TaskTimeout,
		Policy:        policy,
		Pools:         pools,
	})

	obslog.Info("organizer starting",
		zap.String("scenario", cfg.Engine.ScenarioName),
		zap.String("bind_addr", cfg.Engine.BindAddr),
		zap.String("placement_policy", policy.String()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- org.Serve(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		obslog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("organizer serve: %w", err)
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(cfg.Server.ShutdownTimeout):
		obslog.Warn("organizer: Serve did not exit within shutdown timeout")
	}
	obslog.Info("organizer stopped")
	return nil
}
