package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/portwhine/portwhine/internal/api"
	"github.com/portwhine/portwhine/internal/catalog"
	"github.com/portwhine/portwhine/internal/config"
	"github.com/portwhine/portwhine/internal/dispatch"
	"github.com/portwhine/portwhine/internal/events"
	"github.com/portwhine/portwhine/internal/graph"
	"github.com/portwhine/portwhine/internal/log"
	"github.com/portwhine/portwhine/internal/model"
	"github.com/portwhine/portwhine/internal/orchestrator"
	"github.com/portwhine/portwhine/internal/queue"
	"github.com/portwhine/portwhine/internal/runner"
	"github.com/portwhine/portwhine/internal/storage"
	"github.com/portwhine/portwhine/internal/store"
	"github.com/portwhine/portwhine/internal/tui/watch"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "version", "--version":
		fmt.Printf("portwhine %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `portwhine - security scanning pipeline engine

Usage:
  portwhine serve --config <file>     Run the engine
  portwhine validate <pipeline.json>  Validate a pipeline definition
  portwhine watch [--api <url>]       Live run monitor
  portwhine version                   Print version
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("portwhine starting", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Storage.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Storage.Path)

	registry := catalog.Builtin()
	st := store.NewSQLite(db)
	q := queue.New(db)
	counters := queue.NewCounters(db)
	hub := events.NewHub(256)

	disp := dispatch.New(q, counters, registry)
	orch := orchestrator.New(st, st, st, disp, registry, hub)

	rt := runner.NewDockerCLI(cfg.Runner.DockerNetwork)
	run := runner.New(q, rt, cfg.Runner.PollInterval)
	sweeper := runner.NewHealthSweeper(st, rt, orch, cfg.Runner.HealthInterval)

	apiServer := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.APIKey,
	}, st, st, st, orch, disp, q, registry, hub)

	errCh := make(chan error, 3)
	go func() { errCh <- run.Start(ctx) }()
	go func() { errCh <- sweeper.Start(ctx) }()
	go func() { errCh <- apiServer.Start(ctx) }()

	err = <-errCh
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("portwhine stopped")
	return 0
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: portwhine validate <pipeline.json>")
		return 1
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read pipeline: %v\n", err)
		return 1
	}

	var p model.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pipeline document: %v\n", err)
		return 1
	}
	if p.Name != "" {
		if err := model.ValidateName(p.Name); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid pipeline: %v\n", err)
			return 1
		}
	}
	if err := graph.Validate(&p, catalog.Builtin()); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pipeline: %v\n", err)
		return 1
	}

	fp, err := p.Fingerprint()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fingerprint failed: %v\n", err)
		return 1
	}
	fmt.Printf("OK  %d worker(s), %d edge(s)\n", len(p.Workers), len(p.Edges))
	fmt.Printf("fingerprint: %s\n", fp)
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://localhost:8080", "Engine API base URL")
	apiKey := fs.String("api-key", "", "Bearer token for the API")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		return 1
	}
	return 0
}
