package redis

import (
	"context"
	"encoding/json"

	"github.com/DMarby/image-resizer/internal/deadletter"
	"github.com/DMarby/image-resizer/internal/tracing"
	"github.com/mediocregopher/radix/v4"
)

// Provider pushes dead letters onto a redis list
type Provider struct {
	client radix.Client
	tracer *tracing.Tracer
	key    string
}

// New returns a new Provider instance
func New(ctx context.Context, tracer *tracing.Tracer, address string, poolSize int, key string) (*Provider, error) {
	cfg := radix.PoolConfig{
		Size: poolSize,
	}

	client, err := cfg.New(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	return &Provider{
		client: client,
		tracer: tracer,
		key:    key,
	}, nil
}

// Put pushes a letter onto the head of the list
func (p *Provider) Put(ctx context.Context, letter *deadletter.Letter) error {
	ctx, span := p.tracer.Start(ctx, "redis.LPush")
	defer span.End()

	data, err := json.Marshal(letter)
	if err != nil {
		return err
	}

	return p.client.Do(ctx, radix.FlatCmd(nil, "LPUSH", p.key, data))
}

// Len returns the number of letters in the list
func (p *Provider) Len(ctx context.Context) (n int, err error) {
	err = p.client.Do(ctx, radix.Cmd(&n, "LLEN", p.key))
	return
}

// Ping checks that redis is reachable
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Do(ctx, radix.Cmd(nil, "PING"))
}

// Shutdown closes the connection pool
func (p *Provider) Shutdown() {
	p.client.Close()
}
