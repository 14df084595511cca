package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilepyramid/internal/ingest"
	"github.com/MeKo-Tech/tilepyramid/internal/jobs"
	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
	"github.com/MeKo-Tech/tilepyramid/internal/server"
	"github.com/MeKo-Tech/tilepyramid/internal/storage"
	"github.com/MeKo-Tech/tilepyramid/internal/tiling"
	"github.com/MeKo-Tech/tilepyramid/internal/worker"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pyramid ingestion and tile API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("listen-port", 8080, "HTTP listen port")
	serveCmd.Flags().String("blob-store", "file://./data/blobs", "Blob store endpoint URL (file://, mem://)")
	serveCmd.Flags().String("document-store", "./data/pyramids.db", "Path of the pyramid descriptor database")
	serveCmd.Flags().Int("tile-width", 512, "Tile grid cell width in pixels")
	serveCmd.Flags().Int("tile-height", 512, "Tile grid cell height in pixels")
	serveCmd.Flags().Int("brotli-quality", pyramid.DefaultBrotliQuality, "Brotli quality (0-11)")
	serveCmd.Flags().Int("brotli-window-log2", pyramid.DefaultBrotliWindowLog2, "Brotli window size log2 (10-24)")
	serveCmd.Flags().Int("worker-pool-size", runtime.NumCPU(), "Bounded CPU worker count (default: number of CPUs)")
	serveCmd.Flags().Duration("ingest-deadline", 2*time.Minute, "Per-request deadline for ingest")
	serveCmd.Flags().Int64("max-body-bytes", 256<<20, "Upper bound on upload size in bytes")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("listen_port", "listen-port")
	mustBind("blob_store_endpoint", "blob-store")
	mustBind("document_store_endpoint", "document-store")
	mustBind("tile_width", "tile-width")
	mustBind("tile_height", "tile-height")
	mustBind("brotli_quality", "brotli-quality")
	mustBind("brotli_window_log2", "brotli-window-log2")
	mustBind("worker_pool_size", "worker-pool-size")
	mustBind("ingest_deadline", "ingest-deadline")
	mustBind("max_body_bytes", "max-body-bytes")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	listenPort := viper.GetInt("listen_port")
	blobEndpoint := viper.GetString("blob_store_endpoint")
	documentEndpoint := viper.GetString("document_store_endpoint")
	poolSize := viper.GetInt("worker_pool_size")

	ctx := context.Background()

	blobs, err := storage.OpenBlobStore(ctx, blobEndpoint)
	if err != nil {
		return err
	}
	defer blobs.Close()

	registry, err := storage.OpenRegistry(documentEndpoint)
	if err != nil {
		return err
	}
	defer registry.Close()

	pool := worker.New(poolSize)
	jobRegistry := jobs.NewRegistry()

	tiler, err := tiling.New(blobs, registry, pool, jobRegistry, tiling.Config{
		TileWidth:        viper.GetInt("tile_width"),
		TileHeight:       viper.GetInt("tile_height"),
		BrotliQuality:    viper.GetInt("brotli_quality"),
		BrotliWindowLog2: viper.GetInt("brotli_window_log2"),
	}, logger)
	if err != nil {
		return err
	}

	ingestSvc := ingest.New(blobs, registry, tiler, logger)

	srv := server.New(ingestSvc, registry, blobs, server.Config{
		MaxBodyBytes:   viper.GetInt64("max_body_bytes"),
		IngestDeadline: viper.GetDuration("ingest_deadline"),
	}, logger)

	addr := fmt.Sprintf(":%d", listenPort)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", addr,
			"blob_store", blobEndpoint,
			"document_store", documentEndpoint,
			"worker_pool_size", poolSize,
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := jobRegistry.WaitAll(shutdownCtx); err != nil {
		logger.Warn("tiling jobs still running at shutdown; their pyramids stay in processing",
			"remaining", jobRegistry.Len())
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker pool shutdown timed out", "error", err)
	}

	return nil
}
