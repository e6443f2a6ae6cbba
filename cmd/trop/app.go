package main

import (
	"os"
	"path/filepath"

	"github.com/websoft9/trop/internal/audit"
	"github.com/websoft9/trop/internal/config"
	"github.com/websoft9/trop/internal/ops"
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/registry"
)

// app holds every long-lived dependency a subcommand needs, wired up
// once in PersistentPreRunE. Subcommands reach it through their
// closures rather than package-level globals.
type app struct {
	dbPath      string
	configPaths []string

	cfg       config.Resolved
	store     *registry.Store
	allocator *port.Allocator
	planner   *ops.Planner
	executor  *ops.Executor
	audit     *audit.Logger
}

func (a *app) init() error {
	paths := a.configPaths
	if len(paths) == 0 {
		paths = defaultConfigPaths()
	}
	cfg, err := config.Load(paths)
	if err != nil {
		return err
	}
	a.cfg = cfg

	dbPath := a.dbPath
	if dbPath == "" {
		dbPath = defaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return err
	}
	store, err := registry.Open(dbPath, cfg.MaximumLockWaitSeconds)
	if err != nil {
		return err
	}
	a.store = store

	a.allocator = port.NewAllocator(port.SystemChecker{}, cfg.Exclusions, cfg.PortRange)
	a.planner = &ops.Planner{Allocator: a.allocator, Check: cfg.Occupancy.ToCheckConfig(), Now: registry.Now}
	a.executor = &ops.Executor{Allocator: a.allocator, Check: cfg.Occupancy.ToCheckConfig(), Now: registry.Now}

	logFile, err := os.OpenFile(dbPath+".audit.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.audit = audit.New(os.Stderr, registry.Now)
	} else {
		a.audit = audit.New(logFile, registry.Now)
	}

	return nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "trop-registry.db"
	}
	return filepath.Join(home, ".trop", "registry.db")
}

func defaultConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "trop", "config.yaml"))
	}
	paths = append(paths, "trop.yaml")
	return paths
}

func workingDir() (string, error) {
	return os.Getwd()
}
