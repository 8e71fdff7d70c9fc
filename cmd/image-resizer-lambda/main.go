package main

import (
	"context"
	"flag"

	"github.com/DMarby/image-resizer/internal/cmd"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/trigger/lambda"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/jamiealquiza/envy"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// Comandline flags, usually set through RESIZER_* environment variables
var (
	loglevel    = zap.LevelFlag("log-level", zap.InfoLevel, "log level (default \"info\") (debug, info, warn, error, dpanic, panic, fatal)")
	bucket      = flag.String("bucket", "", "only process records for this bucket")
	concurrency = flag.Int("concurrency", lambda.DefaultConcurrency, "number of records processed at once")

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

	ctx := context.Background()

	backends, err := config.Setup(ctx, log, "image-resizer-lambda")
	if err != nil {
		log.Fatalf("error initializing: %s", err)
	}
	defer backends.Shutdown()

	trigger := &lambda.Trigger{
		Pipeline:    backends.Handler,
		Bucket:      *bucket,
		Concurrency: *concurrency,
		Log:         log,
	}

	awslambda.StartWithOptions(trigger.Handle, awslambda.WithContext(ctx))
}
