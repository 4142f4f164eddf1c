// Command orchestrator runs the deployforge Chat API Front-End (§4.10):
// it wires every domain component into one Pipeline and serves it over
// HTTP until told to stop.
//
// Server lifecycle is grounded verbatim on
// apps/ReleaseParty/backend/cmd/releaseparty-api/main.go: load config,
// construct dependencies, serve with ReadHeaderTimeout, shut down on
// SIGTERM/SIGINT.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deployforge/internal/api"
	"deployforge/internal/build"
	"deployforge/internal/cluster"
	"deployforge/internal/config"
	"deployforge/internal/iac"
	"deployforge/internal/logging"
	"deployforge/internal/pipeline"
	"deployforge/internal/source"
	"deployforge/internal/subprocess"
	"deployforge/internal/template"
	"deployforge/internal/workspace"
)

func main() {
	logger := logging.New("deployforge")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := template.ValidateAll(); err != nil {
		logger.Fatalf("templates: %v", err)
	}

	store, err := workspace.New(cfg.WorkspaceBaseDir)
	if err != nil {
		logger.Fatalf("workspace store: %v", err)
	}

	runner := subprocess.New(cfg.SubprocessGraceTime)
	fetcher := source.New(runner)
	renderer := template.New()
	builder := build.New(cfg.KeyBaseDir)
	iacDriver := iac.New()
	bootstrap := cluster.New(runner)

	pl := pipeline.New(cfg, store, fetcher, renderer, builder, iacDriver, bootstrap)
	srv := api.New(cfg, pl, store, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Printf("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		_ = httpSrv.Close()
	}
}
