// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gogpu/gg"
	"golang.org/x/sync/errgroup"

	"github.com/starford/screenflowr/internal/annotation"
	"github.com/starford/screenflowr/internal/api"
	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/device"
	"github.com/starford/screenflowr/internal/discovery"
	"github.com/starford/screenflowr/internal/encoder"
	"github.com/starford/screenflowr/internal/mcpserver"
	"github.com/starford/screenflowr/internal/recorder"
	"github.com/starford/screenflowr/internal/render"
	"github.com/starford/screenflowr/internal/sink"
	"github.com/starford/screenflowr/internal/sse"
	"github.com/starford/screenflowr/internal/storage"
)

const (
	shutdownTimeout = 10 * time.Second
	sseThrottle     = 100 * time.Millisecond
	version         = "1.0.0"
)

// components are the long-lived services shared by the HTTP and MCP front
// ends. store and db are nil when the local sink is disabled.
type components struct {
	logger  *slog.Logger
	store   *storage.FS
	db      *catalog.DB
	broker  *sse.Broker
	service *recorder.Service
}

func (c *components) close() {
	c.broker.Close()
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("catalog close failed", slog.String("error", err.Error()))
		}
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	gg.SetLogger(logger.With(slog.String("component", "gg")))
	return logger
}

// build wires storage, catalog, devices, encoder, renderer, sinks and the
// recorder service.
func (a *application) build(logger *slog.Logger) (_ *components, err error) {
	cfg := a.config
	c := &components{logger: logger, broker: sse.NewBroker(sseThrottle)}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	var sinks []sink.Sink
	if cfg.Sinks.Local.Enabled {
		if c.store, err = storage.EnsureFS(cfg.Sinks.Local.Path); err != nil {
			return nil, fmt.Errorf("init recordings dir: %w", err)
		}
		if c.db, err = catalog.Open(cfg.Catalog.Path); err != nil {
			return nil, fmt.Errorf("init catalog: %w", err)
		}
		if err := catalog.Sync(c.db, c.store, logger); err != nil {
			logger.Warn("initial catalog sync failed", slog.String("error", err.Error()))
		}
		sinks = append(sinks, sink.NewLocal(c.store.Root(), c.store, c.db, logger))
	}
	if cfg.Sinks.Drive.Enabled {
		sinks = append(sinks, sink.NewDrive(sink.DriveOptions{
			Endpoint:    cfg.Sinks.Drive.Endpoint,
			Token:       cfg.Sinks.Drive.Token,
			FolderID:    cfg.Sinks.Drive.FolderID,
			SharePublic: cfg.Sinks.Drive.SharePublic,
		}))
	}
	if cfg.Sinks.Remote.Enabled {
		sinks = append(sinks, sink.NewRemote(cfg.Sinks.Remote.URL, cfg.Sinks.Remote.Token, nil))
	}
	dispatcher := sink.NewDispatcher(logger, sinks, sink.WithStatusListener(func(st sink.Status) {
		c.broker.Publish(sse.Event{Type: sse.TypeUploadStatus, Data: st})
	}))

	provider := a.provider
	if provider == nil {
		if provider, err = device.NewSynthetic(cfg.Devices.Synthetic.Device()); err != nil {
			return nil, fmt.Errorf("init devices: %w", err)
		}
	}
	devices := device.NewManager(provider, device.Flags{
		Camera:     cfg.Recorder.CameraEnabled,
		Microphone: cfg.Recorder.MicEnabled,
	}, logger)

	fonts, err := render.NewFonts()
	if err != nil {
		return nil, fmt.Errorf("init fonts: %w", err)
	}

	container := cfg.Recorder.ContainerFormat()
	c.service = recorder.New(recorder.Config{
		Container:              container,
		ClearAnnotationsOnStop: cfg.Recorder.ClearAnnotationsOnStop,
		AutoUpload:             cfg.Recorder.AutoUpload,
	}, recorder.Deps{
		Devices:    devices,
		NewEncoder: encoder.NewFactory(container, cfg.Recorder.Timeslice, logger),
		Renderer:   render.NewRenderer(cfg.Canvas.Width, cfg.Canvas.Height, fonts),
		Sinks:      dispatcher,
		Events:     c.broker,
		Logger:     logger,
		AnnotationOptions: []annotation.ControllerOption{
			annotation.WithSinglePointPolicy(cfg.Canvas.Policy()),
		},
	})
	return c, nil
}

// Run starts the HTTP daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("recordings_path", cfg.Sinks.Local.Path),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("container", cfg.Recorder.Container),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := app.build(logger)
	if err != nil {
		return err
	}
	defer c.close()

	var recordings *api.RecordingsHandler
	if c.store != nil {
		recordings = api.NewRecordingsHandler(c.store, c.db)
	}
	apiRouter := api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker, recordings)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if c.store != nil {
		g.Go(func() error {
			err := catalog.Watch(gCtx, c.db, c.store, c.store.Root(), logger, c.broker.PublishRecordingEvent)
			if err != nil {
				logger.Warn("recordings watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if cfg.Discovery.MDNS.Enabled {
		g.Go(func() error {
			adv, err := discovery.Advertise(cfg.Discovery.MDNS.Instance, cfg.App.HTTP.Port, map[string]string{
				"version": version,
				"api":     "/api",
				"auth":    cfg.Auth.Mode,
			}, logger)
			if err != nil {
				logger.Warn("mDNS advertisement disabled", slog.String("error", err.Error()))
				return nil
			}
			<-gCtx.Done()
			return adv.Shutdown()
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.service.Close(shutdownCtx); err != nil {
			logger.Error("recorder shutdown error", slog.String("error", err.Error()))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so background loops stop after a signal.
var errShutdown = errors.New("shutdown requested")

// RunMCP serves the MCP tool set on stdio against an in-process recorder.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(logger)
	if err != nil {
		return err
	}
	defer c.close()

	var srv *mcpserver.Server
	if c.store != nil {
		srv = mcpserver.New(c.service, c.store, c.db)
	} else {
		srv = mcpserver.New(c.service, nil, nil)
	}

	logger.Info("MCP server starting on stdio")
	serveErr := srv.ServeStdio()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := c.service.Close(shutdownCtx); err != nil {
		logger.Error("recorder shutdown error", slog.String("error", err.Error()))
	}
	return serveErr
}
