// Package app assembles stores, trackers and services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	firebase "firebase.google.com/go/v4"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/reiteradas/internal/auth"
	"github.com/rpattn/reiteradas/internal/config"
	"github.com/rpattn/reiteradas/internal/db"
	"github.com/rpattn/reiteradas/internal/ingestion"
	"github.com/rpattn/reiteradas/internal/metrics"
	"github.com/rpattn/reiteradas/internal/middleware"
	"github.com/rpattn/reiteradas/internal/progress"
	"github.com/rpattn/reiteradas/internal/repository"
	firestorestore "github.com/rpattn/reiteradas/internal/repository/firestore"
	"github.com/rpattn/reiteradas/internal/repository/memory"
	"github.com/rpattn/reiteradas/internal/repository/mongodb"
)

// App holds every long-lived component of a running server or CLI.
type App struct {
	Config   config.Config
	Log      *logrus.Logger
	Store    repository.Store
	Tracker  progress.Tracker
	Verifier auth.Verifier
	Metrics  *metrics.Metrics
	Pipeline *ingestion.Pipeline
	Service  *ingestion.Service

	firebase *firebase.App
	closers  []func(context.Context) error
}

// New opens the configured store and builds the services on top of it.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if err := a.openTracker(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.openVerifier(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.Pipeline = ingestion.NewPipeline(store.Records(), store.Uploads(),
		ingestion.WithConfig(cfg.Ingestion),
		ingestion.WithLogger(log),
		ingestion.WithMetrics(a.Metrics),
	)
	a.Service = ingestion.NewService(store, a.Pipeline,
		ingestion.WithTracker(a.Tracker),
		ingestion.WithUploadTimeout(cfg.Server.UploadTimeout),
		ingestion.WithServiceLogger(log),
	)
	return a, nil
}

func (a *App) firebaseApp(ctx context.Context) (*firebase.App, error) {
	if a.firebase != nil {
		return a.firebase, nil
	}
	fb, err := firestorestore.NewApp(ctx, a.Config.Firestore)
	if err != nil {
		return nil, err
	}
	a.firebase = fb
	return fb, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	cfg := a.Config
	log := a.Log.WithField("driver", cfg.Store.Driver)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil

	case config.DriverPostgres:
		if cfg.Store.Migrate {
			if err := db.RunMigrations(cfg.Database, a.Log); err != nil {
				return nil, err
			}
		}
		conn, err := db.NewConnection(ctx, cfg.Database, a.Log)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"host": cfg.Database.Host, "database": cfg.Database.DBName}).Info("connected to postgres")
		return repository.NewPostgresStore(conn), nil

	case config.DriverFirestore:
		fb, err := a.firebaseApp(ctx)
		if err != nil {
			return nil, err
		}
		store, err := firestorestore.Open(ctx, fb, cfg.Firestore)
		if err != nil {
			return nil, err
		}
		log.WithField("project", cfg.Firestore.ProjectID).Info("connected to firestore")
		return store, nil

	case config.DriverMongoDB:
		store, err := mongodb.Open(ctx, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		log.WithField("database", cfg.MongoDB.Database).Info("connected to mongodb")
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func (a *App) openTracker(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		a.Tracker = progress.NewMemoryTracker(a.Config.Redis.TTL)
		return nil
	}
	tracker, err := progress.NewRedisTracker(ctx, a.Config.Redis.RedisConfig)
	if err != nil {
		return err
	}
	a.Tracker = tracker
	a.closers = append(a.closers, func(context.Context) error { return tracker.Close() })
	a.Log.WithField("address", a.Config.Redis.Address).Info("tracking upload status in redis")
	return nil
}

func (a *App) openVerifier(ctx context.Context) error {
	if !a.Config.Auth.Enabled {
		a.Log.Warn("authentication disabled, every caller is treated as admin")
		return nil
	}
	fb, err := a.firebaseApp(ctx)
	if err != nil {
		return err
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, fb, a.Config.Auth.AdminEmails)
	if err != nil {
		return err
	}
	a.Verifier = verifier
	return nil
}

// Handler serves the API behind authentication and rate limiting, plus
// unauthenticated health and metrics endpoints.
func (a *App) Handler() http.Handler {
	api := ingestion.NewHTTPHandler(a.Service)
	api = middleware.RateLimit(a.Config.Server.RateLimit, a.Config.Server.RateBurst)(api)
	api = middleware.Authenticate(a.Verifier, a.Log)(api)

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("GET /metrics", a.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   a.Config.CORS.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	})
	return middleware.LoggingMiddleware(a.Log)(corsHandler.Handler(mux))
}

// Close waits for background uploads and releases resources in reverse
// order of acquisition.
func (a *App) Close(ctx context.Context) error {
	if a.Service != nil {
		a.Service.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
