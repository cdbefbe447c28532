package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/broker/brokertest"
	"github.com/redis/go-redis/v9"
)

func TestRedisBroker(t *testing.T) {
	testClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	if err := testClient.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	_ = testClient.Close()

	factory := func(t *testing.T) broker.Broker {
		return New(Config{
			Client: redis.NewClient(&redis.Options{
				Addr: "localhost:6379",
			}),
			KeyPrefix: "test:broker:",
		})
	}

	brokertest.RunBrokerTests(t, factory)
}

func TestMiniredisBroker(t *testing.T) {
	factory := func(t *testing.T) broker.Broker {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return New(Config{Client: client, KeyPrefix: "test:broker:"})
	}

	brokertest.RunBrokerTests(t, factory)
}

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	b := New(Config{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})})
	if err := b.Ping(t.Context()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.Close()
	if err := b.Ping(t.Context()); err == nil {
		t.Fatal("expected ping to fail once the server is gone")
	}
}
