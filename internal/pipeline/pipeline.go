// Package pipeline runs one invocation: fetch the source blob, normalize it and publish the result,
// applying the configured failure policy at the end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DMarby/image-resizer/internal/cache"
	"github.com/DMarby/image-resizer/internal/deadletter"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/normalize"
	"github.com/DMarby/image-resizer/internal/publish"
	"github.com/DMarby/image-resizer/internal/storage"
	"github.com/DMarby/image-resizer/internal/tracing"
	"github.com/twmb/murmur3"
)

// ErrSource is wrapped by errors fetching the source blob
var ErrSource = errors.New("error fetching source blob")

const sourceErrorKind = "source error"
const publishErrorKind = "publish error"

// Handler processes blobs
type Handler struct {
	Source     storage.Provider
	Normalizer *normalize.Normalizer
	Publisher  *publish.Publisher
	Policy     FailurePolicy
	DeadLetter deadletter.Provider // Required for the DeadLetter policy
	// SkipDerived ignores blobs whose name looks like our own output, for when source and destination are the same location
	SkipDerived bool
	// Cache holds encoded output by source content, optional
	Cache  *cache.Auto
	Log    *logger.Logger
	Tracer *tracing.Tracer

	deliveries deliveries
}

// Validate checks that the handler is fully configured
func (h *Handler) Validate() error {
	if h.Normalizer == nil || h.Publisher == nil {
		return fmt.Errorf("handler requires a normalizer and a publisher")
	}

	if h.Policy == DeadLetter && h.DeadLetter == nil {
		return fmt.Errorf("the %s failure policy requires a dead letter provider", DeadLetter)
	}

	return nil
}

// Handle fetches a blob from the source storage and processes it
func (h *Handler) Handle(ctx context.Context, name string) error {
	return h.handle(ctx, name, nil)
}

// HandleBlob processes a blob whose contents were delivered with the trigger
func (h *Handler) HandleBlob(ctx context.Context, name string, data []byte) error {
	if data == nil {
		data = []byte{}
	}

	return h.handle(ctx, name, data)
}

// handle processes deliveries of the same name one at a time, in arrival order.
// A delivery that a newer one overtook while waiting is skipped, and so is content identical to what was just published.
func (h *Handler) handle(ctx context.Context, name string, data []byte) error {
	ctx, span := h.Tracer.Start(ctx, "pipeline.Handle")
	defer span.End()
	span.SetAttributes(tracing.BlobName(name))

	log := h.Log.With("name", name)

	if h.SkipDerived && h.Normalizer.Policy().Naming.IsDerived(name) {
		log.Debugw("skipping derived blob")
		invocations.WithLabelValues(outcomeSkipped).Inc()
		return nil
	}

	delivery, err := h.deliveries.acquire(ctx, name)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	defer h.deliveries.release(delivery)

	if h.deliveries.superseded(delivery) {
		log.Debugw("skipping delivery superseded by a newer one")
		invocations.WithLabelValues(outcomeSkipped).Inc()
		return nil
	}

	if data == nil {
		data, err = h.fetch(ctx, name)
		if err != nil {
			return h.fail(ctx, log, name, nil, sourceErrorKind, err)
		}
	}

	hash := murmur3.Sum64(data)
	if delivery.duplicate(hash) {
		log.Debugw("collapsed duplicate delivery")
		invocations.WithLabelValues(outcomeSkipped).Inc()
		return nil
	}

	sourceBytes.Observe(float64(len(data)))

	artifact, err := h.normalize(ctx, log, name, data)
	if err != nil {
		kind, _ := normalize.KindOf(err)
		return h.fail(ctx, log, name, data, kind.String(), err)
	}

	if err := h.Publisher.Publish(ctx, artifact); err != nil {
		return h.fail(ctx, log, name, data, publishErrorKind, err)
	}

	delivery.published(hash)

	log.Infow("image resized",
		"destination", artifact.Name,
		"content-type", artifact.ContentType,
		"size", len(artifact.Data),
	)
	invocations.WithLabelValues(outcomeSuccess).Inc()

	return nil
}

// normalize runs the normalizer, or reuses the output for identical content when a cache is configured
func (h *Handler) normalize(ctx context.Context, log *logger.Logger, name string, data []byte) (*normalize.Artifact, error) {
	src := normalize.SourceImage{Name: name, Data: data}

	run := func() (*normalize.Artifact, error) {
		start := time.Now()
		defer func() {
			normalizeDuration.Observe(time.Since(start).Seconds())
		}()

		return h.Normalizer.Normalize(src)
	}

	if h.Cache == nil {
		return run()
	}

	policy := h.Normalizer.Policy()
	encoder := policy.Output.Encoder(name)
	key := fmt.Sprintf("%016x:%016x", murmur3.StringSum64(policy.String()+"|"+encoder.String()), murmur3.Sum64(data))

	out, cached, err := h.Cache.Get(ctx, key, func(ctx context.Context) ([]byte, error) {
		artifact, err := run()
		if err != nil {
			return nil, err
		}

		return artifact.Data, nil
	})
	if err != nil {
		var normalizeErr *normalize.Error
		if errors.As(err, &normalizeErr) {
			return nil, err
		}

		log.Warnw("output cache unavailable, normalizing without it", "error", err)
		return run()
	}

	if cached {
		cacheHits.Inc()
	}

	return &normalize.Artifact{
		Name:        policy.Naming.Derive(name),
		ContentType: encoder.ContentType(),
		Data:        out,
	}, nil
}

func (h *Handler) fetch(ctx context.Context, name string) ([]byte, error) {
	if h.Source == nil {
		return nil, fmt.Errorf("%w: no source storage configured", ErrSource)
	}

	ctx, span := h.Tracer.Start(ctx, "pipeline.Fetch")
	defer span.End()

	data, err := h.Source.Get(ctx, name)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}

	return data, nil
}

// fail applies the failure policy. Any error it returns should be reported to the platform.
func (h *Handler) fail(ctx context.Context, log *logger.Logger, name string, data []byte, kind string, err error) error {
	log = log.With("kind", kind, "error", err)

	switch h.Policy {
	case Retry:
		if retryable(err) {
			log.Errorw("error processing image, returning it for redelivery")
			invocations.WithLabelValues(outcomeFailed).Inc()
			return err
		}

	case DeadLetter:
		if dlErr := h.DeadLetter.Put(ctx, deadletter.New(name, kind, data, err)); dlErr != nil {
			log.Errorw("error writing dead letter", "dead-letter-error", dlErr)
			invocations.WithLabelValues(outcomeFailed).Inc()
			return fmt.Errorf("error writing dead letter for %s: %w", name, dlErr)
		}

		log.Errorw("error processing image, dead lettered")
		invocations.WithLabelValues(outcomeDeadLettered).Inc()
		return nil
	}

	log.Errorw("error processing image, dropping it")
	invocations.WithLabelValues(outcomeDropped).Inc()

	return nil
}

// retryable reports whether redelivering the blob could succeed
func retryable(err error) bool {
	if errors.Is(err, publish.ErrPublish) {
		return !errors.Is(err, storage.ErrInvalidName)
	}

	return errors.Is(err, ErrSource) && !errors.Is(err, storage.ErrNotFound)
}
