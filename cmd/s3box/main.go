package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"s3box/internal/config"
	"s3box/internal/s3api"
)

func run(ctx context.Context) error {
	listenAddr := flag.String("listen", "9000", "HTTP listen port (bound on all interfaces)")
	dataDir := flag.String("data-dir", "./data", "directory to store bucket/object data")
	accessKeyID := flag.String("access-key", "s3boxadmin", "access key id accepted by the server")
	secretAccessKey := flag.String("secret-key", "s3boxadmin", "secret access key accepted by the server")
	region := flag.String("region", "de-muc-01", "default region reported for created buckets")
	multipartExpiry := flag.Duration("multipart-expiry", 24*time.Hour, "age at which an abandoned multipart upload is swept")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "interval between multipart expiry sweeps")
	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})
	slog.SetDefault(slog.New(handler))

	absDataDir, err := filepath.Abs(*dataDir)
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}

	cfg := config.New(
		config.WithStorageRoot(absDataDir),
		config.WithDefaultRegion(*region),
		config.WithMultipartExpiry(*multipartExpiry),
		config.WithSweepInterval(*sweepInterval),
		config.WithCredentials([]config.Credential{
			{
				AccessKeyID:     *accessKeyID,
				SecretAccessKey: *secretAccessKey,
				Permissions:     []config.PermissionRule{{Action: "*", Resource: "*"}},
			},
		}),
	)

	server, err := s3api.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("creating s3box server: %w", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              ":" + *listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.HeaderReadTimeout,
		IdleTimeout:       cfg.IdleBodyTimeout,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		return server.RunSweeper(ctx)
	})

	eg.Go(func() error {
		slog.Info("s3box listening", "addr", httpServer.Addr, "data_dir", absDataDir)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("s3box exited with error", "err", err)
		os.Exit(1)
	}
}
