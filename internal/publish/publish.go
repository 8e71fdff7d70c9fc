// Package publish writes normalized artifacts to the destination storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/normalize"
	"github.com/DMarby/image-resizer/internal/storage"
	"github.com/DMarby/image-resizer/internal/tracing"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
)

const defaultRetryBase = 100 * time.Millisecond

// ErrPublish matches any *Error with errors.Is
var ErrPublish = errors.New("error publishing artifact")

// Error is returned when an artifact could not be written to the destination
type Error struct {
	Name     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error publishing %s after %d attempt(s): %s", e.Name, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPublish
func (e *Error) Is(target error) bool {
	return target == ErrPublish
}

// Retry configures retries of failed writes with exponential backoff
type Retry struct {
	MaxRetries uint64 // Zero means a single attempt
	Base       time.Duration
}

// Publisher writes artifacts to a storage provider.
// Writes create or overwrite the blob under the artifact's name, so publishing the same name twice leaves a single blob with the latest content.
type Publisher struct {
	Storage storage.Provider
	Retry   Retry
	Log     *logger.Logger
	Tracer  *tracing.Tracer
}

// Publish writes an artifact with its content type
func (p *Publisher) Publish(ctx context.Context, artifact *normalize.Artifact) error {
	ctx, span := p.Tracer.Start(ctx, "publish.Publish")
	defer span.End()
	span.SetAttributes(tracing.BlobName(artifact.Name), attribute.String("blob.content_type", artifact.ContentType))

	base := p.Retry.Base
	if base <= 0 {
		base = defaultRetryBase
	}

	attempts := 0
	backoff := retry.WithMaxRetries(p.Retry.MaxRetries, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		err := p.Storage.Put(ctx, artifact.Name, artifact.Data, artifact.ContentType)
		if err == nil {
			return nil
		}

		if errors.Is(err, storage.ErrInvalidName) || ctx.Err() != nil {
			return err
		}

		if uint64(attempts) <= p.Retry.MaxRetries {
			p.Log.Warnw("error publishing artifact, retrying",
				"name", artifact.Name,
				"attempt", attempts,
				"error", err,
			)
		}

		return retry.RetryableError(err)
	})

	if err != nil {
		publishErr := &Error{Name: artifact.Name, Attempts: attempts, Err: err}
		tracing.RecordError(span, publishErr)
		return publishErr
	}

	return nil
}
