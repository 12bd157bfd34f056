package cache

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

// Module provides the runtime-catalog cache as a mono module. Redis being
// unreachable is not a startup failure; callers treat cache errors as
// misses and go to the origin.
type Module struct {
	cache  *Cache
	client *redis.Client
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new cache module. The Redis address comes from
// REDIS_ADDR, defaulting to localhost.
func NewModule() *Module {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &Module{
		cache:  New(client, "piston:", 10*time.Minute),
		client: client,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Start verifies the Redis connection, logging a warning when it is down.
func (m *Module) Start(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		log.Printf("[cache] Redis unavailable at %s - runtime catalog will be fetched uncached: %v", m.client.Options().Addr, err)
	} else {
		log.Printf("[cache] Connected to Redis at %s", m.client.Options().Addr)
	}
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if err := m.client.Close(); err != nil {
		log.Printf("[cache] Error closing Redis connection: %v", err)
		return err
	}
	log.Println("[cache] Module stopped")
	return nil
}

// Health reports the Redis connection state. A down cache is reported but
// does not make the service unhealthy.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	stats := m.cache.StatsSnapshot()
	details := map[string]any{
		"addr":   m.client.Options().Addr,
		"hits":   stats.Hits,
		"misses": stats.Misses,
	}
	if err := m.cache.Ping(ctx); err != nil {
		details["redis"] = "unreachable"
	} else {
		details["redis"] = "connected"
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// GetCache returns the cache instance for wiring into the runner.
func (m *Module) GetCache() *Cache {
	return m.cache
}
