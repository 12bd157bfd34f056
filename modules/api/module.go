package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/code-collab-demo/events"
	"github.com/example/code-collab-demo/modules/broadcast"
	"github.com/example/code-collab-demo/modules/collab"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// RuntimeSource serves the execution service's runtime catalog.
type RuntimeSource interface {
	Runtimes(ctx context.Context) (json.RawMessage, error)
}

// APIModule is the HTTP API module with WebSocket support. It owns the
// connection lifecycle: each socket gets a session that tracks the room and
// display name the client joined with, and every inbound frame is resolved
// against that session rather than trusting the frame's own identity fields.
type APIModule struct {
	app        *fiber.App
	collabPort collab.CollabPort
	hub        *broadcast.Hub
	runtimes   RuntimeSource
	eventBus   mono.EventBus
	port       string
	staticDir  string
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.EventBusAwareModule   = (*APIModule)(nil)
	_ mono.EventEmitterModule    = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule() *APIModule {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	staticDir := os.Getenv("STATIC_DIR")
	if staticDir == "" {
		staticDir = "./public"
	}
	return &APIModule{
		port:      port,
		staticDir: staticDir,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"collab"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "collab":
		m.collabPort = collab.NewAdapter(container)
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *APIModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetRuntimeSource sets the runtime catalog source (called from main.go).
func (m *APIModule) SetRuntimeSource(src RuntimeSource) {
	m.runtimes = src
}

// EmitEvents declares the events this module can emit.
func (m *APIModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ExecutionRequestedV1.ToBase(),
	}
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.collabPort == nil {
		return fmt.Errorf("collab adapter dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}
	if m.runtimes == nil {
		return fmt.Errorf("runtime source dependency not set")
	}

	m.app = fiber.New(fiber.Config{
		AppName:               "Code Collab Demo",
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	// Add recovery middleware
	m.app.Use(recover.New())

	// Add logging middleware
	m.app.Use(loggerMiddleware())

	// CORS configuration
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	// Setup routes
	m.setupRoutes()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
	}

	log.Printf("[api] HTTP server started on :%s", m.port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.ShutdownWithContext(ctx)
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.port,
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware returns a Fiber middleware for request logging.
func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		err := c.Next()
		log.Printf("[api] %s %s %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}
