package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/code-collab-demo/modules/api"
	"github.com/example/code-collab-demo/modules/broadcast"
	"github.com/example/code-collab-demo/modules/cache"
	"github.com/example/code-collab-demo/modules/collab"
	"github.com/example/code-collab-demo/modules/runner"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Code Collab Demo - Fiber + EventBus Pubsub ===")

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules
	collabModule := collab.NewModule()
	broadcastModule := broadcast.NewModule()
	cacheModule := cache.NewModule()
	runnerModule := runner.NewModule()
	apiModule := api.NewModule()

	// Manual wiring for collaborators not exposed via ServiceContainer:
	// the broadcast hub, the runtime catalog source, and the optional
	// runtime-catalog cache.
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetRuntimeSource(runnerModule)
	runnerModule.SetCache(cacheModule.GetCache())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - collab: Core domain (ServiceProviderModule + EventEmitterModule)
	// - broadcast: Event consumer (EventConsumerModule for WebSocket fan-out)
	// - cache: Redis-backed runtime catalog cache
	// - runner: Execution gateway (event consumer + emitter)
	// - api: Driving adapter (Fiber HTTP/WebSocket server, depends on collab)
	app.Register(collabModule)    // Room registry + event emitter
	app.Register(broadcastModule) // WebSocket hub + event consumer
	app.Register(cacheModule)     // Runtime catalog cache
	app.Register(runnerModule)    // Execution gateway
	app.Register(apiModule)       // HTTP/WebSocket API

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	pistonURL := os.Getenv("PISTON_URL")
	if pistonURL == "" {
		pistonURL = "https://emkc.org/api/v2/piston"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Printf("  - Execution service: %s", pistonURL)
	log.Println("")
	log.Println("Event-Driven Collaboration:")
	log.Println("  - UserJoined/UserLeft events -> broadcast module -> whole room")
	log.Println("  - CodeChanged/UserTyping events -> broadcast module -> room minus sender")
	log.Println("  - ExecutionRequested -> runner module -> ExecutionFinished -> whole room")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health             - Health check")
	log.Println("  GET    /api/v1/rooms       - List active rooms")
	log.Println("  GET    /api/v1/rooms/:id   - Get room membership")
	log.Println("  GET    /api/v1/runtimes    - List execution runtimes")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	log.Println("  Events in:  join, leaveRoom, codeChange, languageChange, typing, chatMessage, compileCode")
	log.Println("  Events out: userJoined, userLeft, codeUpdate, languageUpdate, userTyping, chatMessage, codeResponse")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
