package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/storage"
)

const checkInterval = 10 * time.Second
const checkTimeout = 8 * time.Second

// Pinger is implemented by backends that can report whether they're reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker is a periodic health checker
type Checker struct {
	Ctx         context.Context
	Source      storage.Provider
	Destination storage.Provider
	BlobName    string // Blob to request from the storages, it doesn't need to exist
	DeadLetter  Pinger
	Cache       Pinger
	status      Status
	mutex       sync.RWMutex
	Log         *logger.Logger
}

// Status contains the healthcheck status
type Status struct {
	Healthy     bool   `json:"healthy"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	DeadLetter  string `json:"dead_letter,omitempty"`
	Cache       string `json:"cache,omitempty"`
}

// Run starts the health checker
func (c *Checker) Run() {
	ticker := time.NewTicker(checkInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				c.runCheck()
			case <-c.Ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	c.runCheck()
}

// Status returns the status of the health checks
func (c *Checker) Status() Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.status
}

func (c *Checker) unknownStatus() Status {
	status := Status{
		Healthy: false,
	}
	if c.Source != nil {
		status.Source = "unknown"
	}
	if c.Destination != nil {
		status.Destination = "unknown"
	}
	if c.DeadLetter != nil {
		status.DeadLetter = "unknown"
	}
	if c.Cache != nil {
		status.Cache = "unknown"
	}

	return status
}

func (c *Checker) runCheck() {
	ctx, cancel := context.WithTimeout(c.Ctx, checkTimeout)
	defer cancel()

	channel := make(chan Status, 1)
	go func() {
		c.check(ctx, channel)
	}()

	select {
	case <-ctx.Done():
		c.mutex.Lock()
		c.status = c.unknownStatus()
		c.mutex.Unlock()
		c.Log.Errorw("healthcheck timed out")
	case status, ok := <-channel:
		if !ok {
			return
		}

		c.mutex.Lock()
		c.status = status
		c.mutex.Unlock()
		if !status.Healthy {
			c.Log.Errorw("healthcheck error",
				"status", status,
			)
		}
	}
}

func (c *Checker) check(ctx context.Context, channel chan Status) {
	defer close(channel)

	status := c.unknownStatus()
	status.Healthy = true

	checks := []struct {
		enabled bool
		result  *string
		check   func() error
	}{
		{c.Source != nil, &status.Source, func() error { return c.checkStorage(ctx, c.Source) }},
		{c.Destination != nil, &status.Destination, func() error { return c.checkStorage(ctx, c.Destination) }},
		{c.DeadLetter != nil, &status.DeadLetter, func() error { return c.DeadLetter.Ping(ctx) }},
		{c.Cache != nil, &status.Cache, func() error { return c.Cache.Ping(ctx) }},
	}

	for _, check := range checks {
		if ctx.Err() != nil {
			return
		}

		if !check.enabled {
			continue
		}

		if err := check.check(); err != nil {
			status.Healthy = false
			*check.result = "unhealthy"
		} else {
			*check.result = "healthy"
		}
	}

	channel <- status
}

// checkStorage requests a blob, a missing blob means the storage is reachable
func (c *Checker) checkStorage(ctx context.Context, provider storage.Provider) error {
	_, err := provider.Get(ctx, c.BlobName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	return nil
}
