package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorsovet/urban-advisor/internal/bootstrap"
	"github.com/gorsovet/urban-advisor/internal/config"
	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/observability/metrics"
)

func main() {
	sourceDir := flag.String("source-dir", "", "ingest *.json files from this directory and exit")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "indexer")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if *sourceDir != "" {
		count, err := app.Ingestor.IngestDirectory(ctx, *sourceDir)
		if err != nil {
			log.Fatalf("ingest directory error: %v", err)
		}
		app.Logger.Info("directory_ingested", "dir", *sourceDir, "chunks", count)
		return
	}

	indexerMetrics := metrics.NewIndexerMetrics("indexer")
	mux := http.NewServeMux()
	mux.Handle("/metrics", indexerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: mux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("indexer_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeBatches(ctx, func(handlerCtx context.Context, records []domain.IngestRecord) error {
		batchCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		indexerMetrics.StartBatch()
		start := time.Now()
		count, err := app.Ingestor.IngestRecords(batchCtx, records)
		indexerMetrics.FinishBatch("indexer", time.Since(start), count, err)
		return err
	})
	if err != nil {
		log.Fatalf("indexer subscribe error: %v", err)
	}
}
