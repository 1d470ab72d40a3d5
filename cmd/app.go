package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"syscontrol/pkg/config"
	"syscontrol/pkg/controller"
	"syscontrol/pkg/logger"
	"syscontrol/pkg/queue"
	mysqlstore "syscontrol/pkg/store/mysql"
	redisstore "syscontrol/pkg/store/redis"
)

// Application manages the lifecycle of the entire controller process
type Application struct {
	// Infrastructure components
	config      *config.Config
	datastore   *mysqlstore.Datastore
	redisClient *redisstore.RedisClient
	backlog     queue.BacklogReader

	// Control loop
	loop     *controller.Loop
	actuator controller.Actuator

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	var err error

	// Initialize components in order
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"MySQL", app.initMySQL},
		{"Redis", app.initRedis},
		{"Queue Backlog", app.initBacklog},
		{"Actuator", app.initActuator},
		{"Control Loop", app.initLoop},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err = step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts the control loop
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	if err := app.loop.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start control loop: %w", err)
	}

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop the control loop; Stop waits for an in-flight cycle
	app.cancel()
	done := make(chan struct{})
	go func() {
		if err := app.loop.Stop(); err != nil {
			logger.ErrorCtx(app.ctx, "Control loop stop error: %v", err)
		}
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "Control loop stopped")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, the running cycle may not have completed")
	}

	// 2. Execute all cleanup functions (in reverse registration order)
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	// 3. Sync logs
	logger.Sync()

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
