package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"github.com/DMarby/image-resizer/internal/cmd"
	"github.com/DMarby/image-resizer/internal/health"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/metrics"
	"github.com/DMarby/image-resizer/internal/trigger/azure"
	"github.com/DMarby/image-resizer/internal/trigger/watch"

	"github.com/jamiealquiza/envy"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// Comandline flags
var (
	// Global
	trigger       = flag.String("trigger", "azure", "how blobs are delivered (azure, watch)")
	listen        = flag.String("listen", ":8080", "listen address, overridden by "+azure.PortEnv+" when set")
	metricsListen = flag.String("metrics-listen", "127.0.0.1:8082", "metrics listen address")
	loglevel      = zap.LevelFlag("log-level", zap.InfoLevel, "log level (default \"info\") (debug, info, warn, error, dpanic, panic, fatal)")

	// Azure
	azureBinding = flag.String("azure-binding", azure.DefaultBinding, "name of the blob trigger binding")

	// Watch
	watchWorkers  = flag.Int("watch-workers", 4, "number of files processed at once")
	watchDebounce = flag.Duration("watch-debounce", watch.DefaultDebounce, "how long a file has to stay unchanged before it's processed")

	config cmd.Config
)

func init() {
	config.RegisterFlags(flag.CommandLine)
}

func main() {
	// Parse environment variables
	envy.Parse(cmd.EnvPrefix)

	// Parse commandline flags
	flag.Parse()

	// Initialize the logger
	log := logger.New(*loglevel)
	defer log.Sync()

	// Set GOMAXPROCS
	maxprocs.Set(maxprocs.Logger(log.Infof))

	// Set up context for shutting down
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	// Initialize the pipeline and its backends
	backends, err := config.Setup(shutdownCtx, log, "image-resizer")
	if err != nil {
		log.Fatalf("error initializing: %s", err)
	}
	defer backends.Shutdown()

	// Initialize and start the health checker
	checkerCtx, checkerCancel := context.WithCancel(context.Background())
	defer checkerCancel()

	checker := &health.Checker{
		Ctx:         checkerCtx,
		Source:      backends.Source,
		Destination: backends.Destination,
		BlobName:    config.HealthCheckBlob,
		Log:         log,
	}
	if pinger, ok := backends.DeadLetter.(health.Pinger); ok {
		checker.DeadLetter = pinger
	}
	if pinger, ok := backends.Cache.(health.Pinger); ok {
		checker.Cache = pinger
	}
	go checker.Run()

	// Start the metrics http server
	go metrics.Serve(shutdownCtx, log, checker, *metricsListen)

	switch *trigger {
	case "azure":
		serveAzure(shutdownCtx, shutdown, log, backends, checker)
	case "watch":
		runWatch(shutdownCtx, shutdown, log, backends)
	default:
		log.Fatalf("invalid trigger %q", *trigger)
	}
}

func serveAzure(ctx context.Context, shutdown context.CancelFunc, log *logger.Logger, backends *cmd.Backends, checker *health.Checker) {
	server := &azure.Server{
		Pipeline:       backends.Handler,
		Binding:        *azureBinding,
		HealthChecker:  checker,
		Log:            log,
		Tracer:         backends.Tracer,
		HandlerTimeout: cmd.HandlerTimeout,
	}

	address := azure.ListenAddress(*listen)
	httpServer := &http.Server{
		Addr:         address,
		Handler:      server.Router(),
		ReadTimeout:  cmd.ReadTimeout,
		WriteTimeout: cmd.WriteTimeout,
		ErrorLog:     logger.NewHTTPErrorLog(log),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			log.Infof("shutting down the http server: %s", err)
			shutdown()
		}
	}()

	log.Infof("http server listening on %s", address)

	// Wait for shutdown or error
	err := cmd.WaitForInterrupt(ctx)
	log.Infof("shutting down: %s", err)

	// Shut down http server
	serverCtx, serverCancel := context.WithTimeout(context.Background(), cmd.WriteTimeout)
	defer serverCancel()
	if err := httpServer.Shutdown(serverCtx); err != nil {
		log.Warnf("error shutting down: %s", err)
	}
}

func runWatch(ctx context.Context, shutdown context.CancelFunc, log *logger.Logger, backends *cmd.Backends) {
	dir, err := backends.WatchDir()
	if err != nil {
		log.Fatalf("error initializing watcher: %s", err)
	}

	watcher, err := watch.New(dir, backends.Handler, *watchWorkers, *watchDebounce, log)
	if err != nil {
		log.Fatalf("error initializing watcher: %s", err)
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(watchCtx)
	}()

	log.Infof("watching %s", dir)

	// Wait for shutdown or error
	err = cmd.WaitForInterrupt(ctx)
	log.Infof("shutting down: %s", err)

	watchCancel()
	if err := <-done; err != nil {
		log.Warnf("error shutting down: %s", fmt.Errorf("watcher: %w", err))
	}
}
