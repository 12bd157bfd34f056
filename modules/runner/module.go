package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/code-collab-demo/events"
	"github.com/example/code-collab-demo/modules/cache"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

const runtimesCacheKey = "runtimes"

// Module is the execution gateway. It consumes ExecutionRequested events,
// performs the external execution call with a bounded timeout, and always
// publishes exactly one ExecutionFinished event per request - the service's
// result on success, a synthesized failure payload otherwise. The room is
// never left waiting with no response.
type Module struct {
	client   *Client
	cache    *cache.Cache
	eventBus mono.EventBus
	timeout  time.Duration
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new runner module. The execution endpoint and timeout
// come from PISTON_URL and EXEC_TIMEOUT, falling back to the public Piston
// instance and a 15s bound.
func NewModule() *Module {
	timeout := DefaultTimeout
	if raw := os.Getenv("EXEC_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		} else {
			log.Printf("[runner] Ignoring invalid EXEC_TIMEOUT %q", raw)
		}
	}
	return &Module{
		client:  NewClient(os.Getenv("PISTON_URL"), timeout),
		timeout: timeout,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "runner"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// SetCache wires the optional runtime-catalog cache (called from main.go).
func (m *Module) SetCache(c *cache.Cache) {
	m.cache = c
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ExecutionFinishedV1.ToBase(),
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.ExecutionRequestedV1, m.handleExecutionRequested, m,
	); err != nil {
		return fmt.Errorf("failed to register ExecutionRequested consumer: %w", err)
	}
	log.Println("[runner] Registered event consumers: ExecutionRequested")
	return nil
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	log.Printf("[runner] Module started - execution service %s, timeout %s", m.client.BaseURL(), m.timeout)
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[runner] Module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"endpoint": m.client.BaseURL(),
			"timeout":  m.timeout.String(),
		},
	}
}

// handleExecutionRequested performs the external call and publishes the
// outcome. It runs on the event consumer, not a connection handler, so a
// slow execution never blocks room traffic. The timeout context is detached
// from the triggering connection: if the requester disconnects while the
// call is outstanding, the result is still broadcast to the room.
func (m *Module) handleExecutionRequested(_ context.Context, event events.ExecutionRequestedEvent, _ *mono.Msg) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	result, err := m.client.Execute(ctx, ExecuteRequest{
		Language: event.Language,
		Version:  event.Version,
		Files:    []File{{Content: event.Code}},
		Stdin:    event.Stdin,
	})
	if err != nil {
		log.Printf("[runner] Execution failed for room %s: %v", event.RoomID, err)
		result = FailureResult(failureMessage(err))
	}

	if err := events.ExecutionFinishedV1.Publish(m.eventBus, events.ExecutionFinishedEvent{
		RoomID: event.RoomID,
		Result: result,
	}, nil); err != nil {
		log.Printf("[runner] Failed to publish ExecutionFinished for room %s: %v", event.RoomID, err)
	}

	// One attempt per request; a failed call is reported, not retried.
	return nil
}

// failureMessage maps an execution error to the human-readable text placed
// in the synthesized run output.
func failureMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Error: execution timed out"
	}
	return "Error: could not run code"
}

// Runtimes returns the execution service's runtime catalog, served from the
// cache when one is wired and warm. Cache failures fall through to the
// service call.
func (m *Module) Runtimes(ctx context.Context) (json.RawMessage, error) {
	if m.cache != nil {
		var cached json.RawMessage
		if hit, err := m.cache.Get(ctx, runtimesCacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	catalog, err := m.client.Runtimes(ctx)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, runtimesCacheKey, catalog); err != nil {
			log.Printf("[runner] Failed to cache runtime catalog: %v", err)
		}
	}
	return catalog, nil
}
