package health_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/DMarby/image-resizer/internal/health"
	"github.com/DMarby/image-resizer/internal/logger"
	"go.uber.org/zap"

	memoryStorage "github.com/DMarby/image-resizer/internal/storage/memory"
	mockStorage "github.com/DMarby/image-resizer/internal/storage/mock"
)

type pinger struct {
	err error
}

func (p pinger) Ping(ctx context.Context) error {
	return p.err
}

func TestHealth(t *testing.T) {
	log := logger.New(zap.ErrorLevel)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage := memoryStorage.New()

	checker := &health.Checker{Ctx: ctx, Source: storage, Destination: storage, BlobName: "healthcheck", Log: log}
	mockSourceChecker := &health.Checker{Ctx: ctx, Source: &mockStorage.Provider{}, Destination: storage, BlobName: "healthcheck", Log: log}
	mockDestinationChecker := &health.Checker{Ctx: ctx, Source: storage, Destination: &mockStorage.Provider{}, BlobName: "healthcheck", Log: log}

	deadLetterChecker := &health.Checker{Ctx: ctx, Destination: storage, DeadLetter: pinger{}, Log: log}
	cacheChecker := &health.Checker{Ctx: ctx, Destination: storage, Cache: pinger{errors.New("connection refused")}, Log: log}
	brokenDeadLetterChecker := &health.Checker{Ctx: ctx, Destination: storage, DeadLetter: pinger{errors.New("connection refused")}, Log: log}

	tests := []struct {
		Name           string
		ExpectedStatus health.Status
		Checker        *health.Checker
	}{
		{
			Name: "runs checks and returns correct status",
			ExpectedStatus: health.Status{
				Healthy:     true,
				Source:      "healthy",
				Destination: "healthy",
			},
			Checker: checker,
		},
		{
			Name: "runs checks and returns correct status with broken source",
			ExpectedStatus: health.Status{
				Healthy:     false,
				Source:      "unhealthy",
				Destination: "healthy",
			},
			Checker: mockSourceChecker,
		},
		{
			Name: "runs checks and returns correct status with broken destination",
			ExpectedStatus: health.Status{
				Healthy:     false,
				Source:      "healthy",
				Destination: "unhealthy",
			},
			Checker: mockDestinationChecker,
		},
		{
			Name: "runs checks and returns correct status with a dead letter backend",
			ExpectedStatus: health.Status{
				Healthy:     true,
				Destination: "healthy",
				DeadLetter:  "healthy",
			},
			Checker: deadLetterChecker,
		},
		{
			Name: "runs checks and returns correct status with a broken dead letter backend",
			ExpectedStatus: health.Status{
				Healthy:     false,
				Destination: "healthy",
				DeadLetter:  "unhealthy",
			},
			Checker: brokenDeadLetterChecker,
		},
		{
			Name: "runs checks and returns correct status with a broken cache",
			ExpectedStatus: health.Status{
				Healthy:     false,
				Destination: "healthy",
				Cache:       "unhealthy",
			},
			Checker: cacheChecker,
		},
	}

	for _, test := range tests {
		test.Checker.Run()
		status := test.Checker.Status()

		if !reflect.DeepEqual(status, test.ExpectedStatus) {
			t.Errorf("%s: wrong status %+v", test.Name, status)
		}
	}
}
