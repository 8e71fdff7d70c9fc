// Package lambda adapts S3 object-created notifications to the pipeline
package lambda

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of records processed at once
const DefaultConcurrency = 4

// Pipeline processes a blob fetched from the source storage
type Pipeline interface {
	Handle(ctx context.Context, name string) error
}

// Trigger handles S3 events
type Trigger struct {
	Pipeline    Pipeline
	Bucket      string // Only records for this bucket are processed, when set
	Concurrency int
	Log         *logger.Logger
}

// Handle processes every object-created record in the event.
// The first pipeline error is returned so that Lambda redelivers the batch.
func (t *Trigger) Handle(ctx context.Context, event events.S3Event) error {
	concurrency := t.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, record := range event.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated:") {
			t.Log.Debugw("ignoring event", "event", record.EventName)
			continue
		}

		if t.Bucket != "" && record.S3.Bucket.Name != t.Bucket {
			t.Log.Debugw("ignoring record for another bucket", "bucket", record.S3.Bucket.Name)
			continue
		}

		name, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			t.Log.Errorw("error decoding object key", "key", record.S3.Object.Key, "error", err)
			continue
		}

		g.Go(func() error {
			if err := t.Pipeline.Handle(ctx, name); err != nil {
				return fmt.Errorf("error handling %s: %w", name, err)
			}

			return nil
		})
	}

	return g.Wait()
}
