// Package main is the podible server entrypoint: it wires the scanner,
// watcher, transcode worker, and HTTP surface together by hand rather
// than routing through a DI container.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/podible/podible-server/internal/apikey"
	"github.com/podible/podible-server/internal/config"
	"github.com/podible/podible-server/internal/core"
	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/httpapi"
	"github.com/podible/podible-server/internal/library"
	"github.com/podible/podible-server/internal/logger"
	"github.com/podible/podible-server/internal/probe"
	"github.com/podible/podible-server/internal/scanner"
	"github.com/podible/podible-server/internal/transcode"
	"github.com/podible/podible-server/internal/watcher"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: logger.ParseLevel("info")})

	roots := os.Args[1:]
	log.Info("starting podible server", "data_dir", cfg.Server.DataDir, "port", cfg.Server.Port, "roots", len(roots))
	if len(roots) == 0 {
		log.Warn("no library roots configured; /api/v1/feed will return an error until restarted with roots")
	}

	key, err := apikey.LoadOrGenerate(cfg.Server.DataDir)
	if err != nil {
		log.Error("load api key failed", "error", err)
		os.Exit(1)
	}

	probeCache, err := probe.New(probe.NewFFProbeEngine(), filepath.Join(cfg.Server.DataDir, "probe-cache.json"))
	if err != nil {
		log.Error("init probe cache failed", "error", err)
		os.Exit(1)
	}

	transcodeStore, err := transcode.NewStore(filepath.Join(cfg.Server.DataDir, "transcode-status.json"))
	if err != nil {
		log.Error("init transcode store failed", "error", err)
		os.Exit(1)
	}
	queue := transcode.NewQueue()

	libIndex, err := library.New(filepath.Join(cfg.Server.DataDir, "library-index.json"))
	if err != nil {
		log.Error("init library index failed", "error", err)
		os.Exit(1)
	}

	worker := transcode.NewWorker(queue, transcodeStore, transcode.NewFFmpegConverter(), log.Logger)
	worker.Promote = func(book *domain.Book) {
		if book == nil {
			return
		}
		libIndex.Put(*book)
		if err := libIndex.Save(); err != nil {
			log.Warn("persist library index after promotion failed", "error", err)
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go worker.Run(workerCtx)

	sc := &scanner.Scanner{
		Roots:   roots,
		DataDir: cfg.Server.DataDir,
		Probe:   probeCache,
		Store:   transcodeStore,
		Queue:   queue,
		Library: libIndex,
		Logger:  log.Logger,
	}

	scanCtx, scanCancel := context.WithCancel(context.Background())
	go func() {
		if err := sc.Scan(scanCtx); err != nil {
			log.Error("initial scan failed", "error", err)
		}
	}()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	fw, err := watcher.New(log.Logger, func() {
		if err := sc.Scan(scanCtx); err != nil {
			log.Warn("rescan failed", "error", err)
		}
	}, watcher.DefaultDebounce)
	if err != nil {
		log.Error("init watcher failed", "error", err)
		os.Exit(1)
	}
	for _, root := range roots {
		if err := fw.Add(root); err != nil {
			log.Warn("watch root failed", "root", root, "error", err)
		}
	}
	go func() {
		if err := fw.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("watcher stopped", "error", err)
		}
	}()

	c := core.New(libIndex, transcodeStore, queue, probeCache)
	httpHandler := httpapi.NewServer(c, key, log.Logger, len(roots) == 0)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	watchCancel()
	if err := fw.Close(); err != nil {
		log.Warn("close watcher failed", "error", err)
	}
	workerCancel()
	scanCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown failed", "error", err)
	}

	log.Info("shutdown complete")
}

