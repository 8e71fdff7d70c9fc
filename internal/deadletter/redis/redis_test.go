package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DMarby/image-resizer/internal/deadletter"
	"github.com/DMarby/image-resizer/internal/deadletter/redis"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/tracing/test"
	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func TestRedis(t *testing.T) {
	log := logger.New(zap.FatalLevel)
	defer log.Sync()

	mr := miniredis.RunT(t)
	ctx := context.Background()

	provider, err := redis.New(ctx, test.Tracer(log), mr.Addr(), 2, "image-resizer:dead-letters")
	if err != nil {
		t.Fatal(err)
	}
	defer provider.Shutdown()

	t.Run("pushes letters onto the list", func(t *testing.T) {
		first := deadletter.New("first.png", "decode error", []byte("data"), errors.New("boom"))
		second := deadletter.New("second.png", "publish error", nil, errors.New("boom"))

		for _, letter := range []*deadletter.Letter{first, second} {
			if err := provider.Put(ctx, letter); err != nil {
				t.Fatal(err)
			}
		}

		n, err := provider.Len(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("wrong list length %d", n)
		}

		items, err := mr.List("image-resizer:dead-letters")
		if err != nil {
			t.Fatal(err)
		}

		var head deadletter.Letter
		if err := json.Unmarshal([]byte(items[0]), &head); err != nil {
			t.Fatal(err)
		}

		if head.Name != "second.png" || head.Kind != "publish error" || head.Error != "boom" {
			t.Errorf("wrong letter %#v", head)
		}
	})

	t.Run("pings redis", func(t *testing.T) {
		if err := provider.Ping(ctx); err != nil {
			t.Fatal(err)
		}
	})
}
