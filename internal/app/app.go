package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/taskplan/internal/actions"
	"github.com/vk/taskplan/internal/cancellation"
	"github.com/vk/taskplan/internal/config"
	"github.com/vk/taskplan/internal/ctxlog"
	"github.com/vk/taskplan/internal/planexecutor"
	"github.com/vk/taskplan/internal/taskgraph"
)

// AppConfig holds all the necessary configuration for an App instance to run.
type AppConfig struct {
	PlanPath        string
	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	WorkerCount     int
	Stats           bool
}

// App encapsulates the application's dependencies, configuration, and
// lifecycle: the configured loader, the action registry dispatched by each
// task, and the optional health check server.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	loader     config.Loader
	registry   *actions.Registry
	config     *AppConfig
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger.
func NewApp(outW io.Writer, appConfig *AppConfig, loader config.Loader, registry *actions.Registry) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if registry == nil {
		registry = actions.NewRegistry()
	}

	return &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		loader:   loader,
		registry: registry,
		config:   appConfig,
	}
}

// Registry returns the application's action registry. This is primarily for
// testing.
func (a *App) Registry() *actions.Registry {
	return a.registry
}

// Run loads the plan, builds its task graph, and drives it to completion
// through the Plan Executor Facade.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer()
		defer a.closeHealthCheckServer()
	}

	a.logger.Debug("Loading plan...", "path", a.config.PlanPath)
	model, exprs, err := a.loader.Load(ctx, a.config.PlanPath)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	a.logger.Debug("Plan loaded.", "tasks", len(model.Tasks), "resources", len(model.Resources))

	plan, err := taskgraph.Build(model, exprs)
	if err != nil {
		return fmt.Errorf("failed to build task graph: %w", err)
	}

	if len(model.Tasks) == 0 {
		a.logger.Warn("No tasks found in plan, execution not required.")
		return nil
	}

	opts := []planexecutor.Option{}
	if a.config.Stats {
		opts = append(opts, planexecutor.WithStats())
	}

	exec, err := planexecutor.New(a.config.WorkerCount, cancellation.New(), opts...)
	if err != nil {
		return fmt.Errorf("failed to construct executor: %w", err)
	}
	defer exec.Stop(ctx)

	a.logger.Info("Starting concurrent execution...", "workers", a.config.WorkerCount, "tasks", len(model.Tasks))
	failures, err := exec.Process(ctx, plan, a.registry.Dispatch)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	if len(failures) > 0 {
		for _, f := range failures {
			a.logger.Error("Task failed.", "error", f)
		}
		return fmt.Errorf("execution finished with %d failure(s): %w", len(failures), failures[0])
	}

	a.logger.Info("Execution finished.")
	a.logger.Debug("App.Run method finished.")
	return nil
}
