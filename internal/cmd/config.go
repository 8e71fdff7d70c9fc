package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/DMarby/image-resizer/internal/cache"
	"github.com/DMarby/image-resizer/internal/deadletter"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/normalize"
	"github.com/DMarby/image-resizer/internal/pipeline"
	"github.com/DMarby/image-resizer/internal/publish"
	"github.com/DMarby/image-resizer/internal/storage"
	"github.com/DMarby/image-resizer/internal/tracing"

	memoryCache "github.com/DMarby/image-resizer/internal/cache/memory"
	redisCache "github.com/DMarby/image-resizer/internal/cache/redis"
	fileDeadLetter "github.com/DMarby/image-resizer/internal/deadletter/file"
	redisDeadLetter "github.com/DMarby/image-resizer/internal/deadletter/redis"
	azblobStorage "github.com/DMarby/image-resizer/internal/storage/azblob"
	fileStorage "github.com/DMarby/image-resizer/internal/storage/file"
	"github.com/DMarby/image-resizer/internal/storage/spaces"
)

// EnvPrefix is the prefix of the environment variables that map to flags
const EnvPrefix = "RESIZER"

// AzureConnectionEnv is the app setting the Functions host stores the storage account connection string in
const AzureConnectionEnv = "AzureWebJobsStorage"

// StorageConfig configures a storage backend
type StorageConfig struct {
	Backend string

	FilePath string

	SpacesSpace          string
	SpacesEndpoint       string
	SpacesRegion         string
	SpacesAccessKey      string
	SpacesSecretKey      string
	SpacesForcePathStyle bool

	AzureConnectionString string
	AzureContainer        string
}

// Config is the configuration shared by every entry point
type Config struct {
	Profile     string
	ProfileFile string
	Overrides   normalize.Profile

	FailurePolicy    string
	PublishRetries   uint64
	PublishRetryBase time.Duration
	SkipDerived      bool

	Source      StorageConfig
	Destination StorageConfig

	DeadLetter              string
	DeadLetterFilePath      string
	DeadLetterRedisAddress  string
	DeadLetterRedisPoolSize int
	DeadLetterRedisKey      string

	Cache              string
	CacheMemorySize    int
	CacheRedisAddress  string
	CacheRedisPoolSize int
	CacheRedisPrefix   string
	CacheTTL           time.Duration

	HealthCheckBlob string
	Tracing         bool
}

// RegisterFlags registers the configuration flags on fs
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	// Profile
	fs.StringVar(&c.Profile, "profile", "thumbnail", "normalization profile to use (thumbnail, stretch, or one defined in the profile file)")
	fs.StringVar(&c.ProfileFile, "profile-file", "", "yaml file with additional profiles")

	// Profile overrides
	fs.IntVar(&c.Overrides.Width, "width", 0, "override the target width")
	fs.IntVar(&c.Overrides.Height, "height", 0, "override the target height")
	fs.StringVar(&c.Overrides.Mode, "mode", "", "override the fit mode (pad, stretch)")
	fs.StringVar(&c.Overrides.Filter, "filter", "", "override the resampling filter (nearest, bilinear, bicubic, lanczos)")
	fs.StringVar(&c.Overrides.Background, "background", "", "override the pad background (transparent, #rrggbb, #rrggbbaa)")
	fs.StringVar(&c.Overrides.Output, "output", "", "override the output format (extension, jpeg, png, gif, bmp)")
	fs.IntVar(&c.Overrides.JPEGQuality, "jpeg-quality", 0, "override the jpeg quality (1-100)")
	fs.StringVar(&c.Overrides.Naming, "naming", "", "override the naming strategy (suffix, keep)")
	fs.StringVar(&c.Overrides.Suffix, "suffix", "", "override the suffix used by the suffix naming strategy")
	fs.IntVar(&c.Overrides.MaxPixels, "max-pixels", 0, "refuse to decode images with more pixels than this (0 keeps the profile limit)")

	// Pipeline
	fs.StringVar(&c.FailurePolicy, "failure-policy", "drop", "what to do with blobs that fail to process (drop, retry, deadletter)")
	fs.Uint64Var(&c.PublishRetries, "publish-retries", 0, "number of times to retry a failed publish, with exponential backoff")
	fs.DurationVar(&c.PublishRetryBase, "publish-retry-base", 100*time.Millisecond, "initial backoff between publish retries")
	fs.BoolVar(&c.SkipDerived, "skip-derived", true, "ignore blobs named like our own output")

	// Storage
	c.Source.register(fs, "source", "azblob", "product-images")
	c.Destination.register(fs, "destination", "azblob", "resized-product-images")

	// Dead letter
	fs.StringVar(&c.DeadLetter, "dead-letter", "file", "which dead letter backend to use with the deadletter failure policy (file, redis)")
	fs.StringVar(&c.DeadLetterFilePath, "dead-letter-file-path", "./dead-letters", "directory to write dead letters to")
	fs.StringVar(&c.DeadLetterRedisAddress, "dead-letter-redis-address", "redis://127.0.0.1:6379", "redis address, may contain authentication details")
	fs.IntVar(&c.DeadLetterRedisPoolSize, "dead-letter-redis-pool-size", 4, "redis connection pool size")
	fs.StringVar(&c.DeadLetterRedisKey, "dead-letter-redis-key", "image-resizer:dead-letters", "redis list to push dead letters onto")

	// Cache
	fs.StringVar(&c.Cache, "cache", "none", "which output cache backend to use (none, memory, redis)")
	fs.IntVar(&c.CacheMemorySize, "cache-memory-size", 256, "number of outputs kept by the memory cache")
	fs.StringVar(&c.CacheRedisAddress, "cache-redis-address", "redis://127.0.0.1:6379", "redis address, may contain authentication details")
	fs.IntVar(&c.CacheRedisPoolSize, "cache-redis-pool-size", 4, "redis connection pool size")
	fs.StringVar(&c.CacheRedisPrefix, "cache-redis-prefix", "image-resizer:output:", "prefix of the redis cache keys")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", 24*time.Hour, "how long redis keeps cached outputs, zero keeps them forever")

	// Healthcheck
	fs.StringVar(&c.HealthCheckBlob, "health-check-blob", "healthcheck", "blob to request from the storages to check storage health, it doesn't need to exist")

	// Tracing
	fs.BoolVar(&c.Tracing, "tracing", false, "export traces over otlp/grpc, configured through the OTEL_EXPORTER_OTLP_* environment variables")
}

func (s *StorageConfig) register(fs *flag.FlagSet, prefix, backend, container string) {
	fs.StringVar(&s.Backend, prefix, backend, fmt.Sprintf("which %s storage backend to use (file, spaces, azblob, none)", prefix))

	fs.StringVar(&s.FilePath, prefix+"-file-path", "./"+container, "path to the file storage")

	fs.StringVar(&s.SpacesSpace, prefix+"-spaces-space", "", "space or bucket to use")
	fs.StringVar(&s.SpacesEndpoint, prefix+"-spaces-endpoint", "", "s3 compatible endpoint, defaults to the digitalocean spaces endpoint for the region")
	fs.StringVar(&s.SpacesRegion, prefix+"-spaces-region", "", "spaces region")
	fs.StringVar(&s.SpacesAccessKey, prefix+"-spaces-access-key", "", "spaces access key")
	fs.StringVar(&s.SpacesSecretKey, prefix+"-spaces-secret-key", "", "spaces secret key")
	fs.BoolVar(&s.SpacesForcePathStyle, prefix+"-spaces-force-path-style", false, "use path style addressing")

	fs.StringVar(&s.AzureConnectionString, prefix+"-azure-connection-string", "", "azure storage connection string, defaults to the "+AzureConnectionEnv+" environment variable")
	fs.StringVar(&s.AzureContainer, prefix+"-azure-container", container, "azure blob container")
}

// Policy resolves the configured profile into a normalization policy
func (c *Config) Policy() (normalize.Policy, error) {
	profiles := normalize.Profiles

	if c.ProfileFile != "" {
		f, err := os.Open(c.ProfileFile)
		if err != nil {
			return normalize.Policy{}, err
		}
		defer f.Close()

		if profiles, err = normalize.LoadProfiles(f); err != nil {
			return normalize.Policy{}, err
		}
	}

	profile, ok := profiles[c.Profile]
	if !ok {
		return normalize.Policy{}, fmt.Errorf("unknown profile %q, available profiles: %v", c.Profile, normalize.ProfileNames(profiles))
	}

	return profile.Merge(c.Overrides).Policy()
}

// Build creates the storage provider. A nil provider is returned for the "none" backend.
func (s StorageConfig) Build(ctx context.Context) (storage.Provider, error) {
	switch s.Backend {
	case "none":
		return nil, nil
	case "file":
		return fileStorage.New(s.FilePath)
	case "spaces":
		return spaces.New(ctx, spaces.Config{
			Space:          s.SpacesSpace,
			Endpoint:       s.SpacesEndpoint,
			Region:         s.SpacesRegion,
			AccessKey:      s.SpacesAccessKey,
			SecretKey:      s.SpacesSecretKey,
			ForcePathStyle: s.SpacesForcePathStyle,
		})
	case "azblob":
		connectionString := s.AzureConnectionString
		if connectionString == "" {
			connectionString = os.Getenv(AzureConnectionEnv)
		}
		if connectionString == "" {
			return nil, fmt.Errorf("no azure storage connection string configured")
		}

		return azblobStorage.New(ctx, connectionString, s.AzureContainer)
	default:
		return nil, fmt.Errorf("invalid storage backend %q", s.Backend)
	}
}

// Backends are the components built from a Config
type Backends struct {
	Handler     *pipeline.Handler
	Source      storage.Provider
	Destination storage.Provider
	DeadLetter  deadletter.Provider
	Cache       cache.Provider
	Tracer      *tracing.Tracer

	shutdown []func()
}

// Shutdown releases the backends' connections
func (b *Backends) Shutdown() {
	for _, f := range b.shutdown {
		f()
	}
}

// WatchDir returns the directory of the file source storage, which the watch trigger observes
func (b *Backends) WatchDir() (string, error) {
	source, ok := b.Source.(*fileStorage.Provider)
	if !ok {
		return "", fmt.Errorf("the watch trigger requires the file source storage")
	}

	return source.Path(), nil
}

// Setup builds the pipeline handler and its backends
func (c *Config) Setup(ctx context.Context, log *logger.Logger, serviceName string) (*Backends, error) {
	b := &Backends{}
	ok := false
	defer func() {
		if !ok {
			b.Shutdown()
		}
	}()

	if c.Tracing {
		tracer, err := tracing.New(ctx, log, serviceName)
		if err != nil {
			return nil, err
		}
		b.Tracer = tracer
		b.shutdown = append(b.shutdown, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tracer.Shutdown(shutdownCtx)
		})
	} else {
		b.Tracer = tracing.Noop(log, serviceName)
	}

	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("error resolving profile: %w", err)
	}

	normalizer, err := normalize.New(policy)
	if err != nil {
		return nil, err
	}

	failurePolicy, err := pipeline.ParseFailurePolicy(c.FailurePolicy)
	if err != nil {
		return nil, err
	}

	if b.Source, err = c.Source.Build(ctx); err != nil {
		return nil, fmt.Errorf("error initializing source storage: %w", err)
	}

	if b.Destination, err = c.Destination.Build(ctx); err != nil {
		return nil, fmt.Errorf("error initializing destination storage: %w", err)
	}
	if b.Destination == nil {
		return nil, fmt.Errorf("a destination storage is required")
	}

	if failurePolicy == pipeline.DeadLetter {
		switch c.DeadLetter {
		case "file":
			b.DeadLetter, err = fileDeadLetter.New(c.DeadLetterFilePath)
		case "redis":
			var provider *redisDeadLetter.Provider
			provider, err = redisDeadLetter.New(ctx, b.Tracer, c.DeadLetterRedisAddress, c.DeadLetterRedisPoolSize, c.DeadLetterRedisKey)
			if err == nil {
				b.DeadLetter = provider
				b.shutdown = append(b.shutdown, provider.Shutdown)
			}
		default:
			err = fmt.Errorf("invalid dead letter backend %q", c.DeadLetter)
		}

		if err != nil {
			return nil, fmt.Errorf("error initializing dead letter backend: %w", err)
		}
	}

	switch c.Cache {
	case "none":
	case "memory":
		b.Cache, err = memoryCache.New(c.CacheMemorySize)
	case "redis":
		var provider *redisCache.Provider
		provider, err = redisCache.New(ctx, b.Tracer, c.CacheRedisAddress, c.CacheRedisPoolSize, c.CacheRedisPrefix, c.CacheTTL)
		if err == nil {
			b.Cache = provider
		}
	default:
		err = fmt.Errorf("invalid cache backend %q", c.Cache)
	}

	if err != nil {
		return nil, fmt.Errorf("error initializing cache: %w", err)
	}

	if b.Cache != nil {
		b.shutdown = append(b.shutdown, b.Cache.Shutdown)
	}

	b.Handler = &pipeline.Handler{
		Source:     b.Source,
		Normalizer: normalizer,
		Publisher: &publish.Publisher{
			Storage: b.Destination,
			Retry: publish.Retry{
				MaxRetries: c.PublishRetries,
				Base:       c.PublishRetryBase,
			},
			Log:    log,
			Tracer: b.Tracer,
		},
		Policy:      failurePolicy,
		DeadLetter:  b.DeadLetter,
		SkipDerived: c.SkipDerived,
		Log:         log,
		Tracer:      b.Tracer,
	}

	if b.Cache != nil {
		b.Handler.Cache = &cache.Auto{
			Tracer:   b.Tracer,
			Provider: b.Cache,
		}
	}

	if err := b.Handler.Validate(); err != nil {
		return nil, err
	}

	log.Infow("pipeline configured",
		"profile", c.Profile,
		"policy", policy.String(),
		"failure-policy", failurePolicy.String(),
		"cache", c.Cache,
	)

	ok = true
	return b, nil
}
