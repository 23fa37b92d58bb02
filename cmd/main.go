package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/auth"
	"github.com/ukydev/intersection-twin/internal/broker"
	"github.com/ukydev/intersection-twin/internal/config"
	"github.com/ukydev/intersection-twin/internal/db"
	"github.com/ukydev/intersection-twin/internal/handlers"
	"github.com/ukydev/intersection-twin/internal/middleware"
	"github.com/ukydev/intersection-twin/internal/models"
	"github.com/ukydev/intersection-twin/internal/sim"
	"github.com/ukydev/intersection-twin/internal/telemetry"
)

const (
	eventBuffer     = 256
	spawnRateLimit  = 20
	shutdownTimeout = 5 * time.Second
)

type routerDeps struct {
	sim       *sim.Simulation
	hub       *handlers.StreamHub
	events    handlers.EventSource
	auth      *auth.Service
	rateLimit *middleware.RateLimitMiddleware
}

func newRouter(d routerDeps) *http.ServeMux {
	ih := &handlers.IntersectionHandler{Sim: d.sim}
	ah := handlers.NewAuthHandler(d.auth)
	mw := middleware.NewAuthMiddleware(d.auth)
	eh := &handlers.EventsHandler{Store: d.events}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", ih.Health)
	mux.HandleFunc("GET /api/intersection", ih.GetIntersection)
	mux.Handle("POST /api/lanes/{lane}/vehicles", d.rateLimit.RateLimit(spawnRateLimit, time.Second)(http.HandlerFunc(ih.SpawnVehicle)))
	mux.Handle("POST /api/override", mw.Protect("override_signal", http.HandlerFunc(ih.Override)))
	mux.Handle("GET /api/events", mw.Protect("view_events", eh))
	mux.HandleFunc("POST /api/auth/login", ah.Login)
	mux.Handle("GET /api/auth/me", mw.Authenticate(http.HandlerFunc(ah.Me)))
	mux.Handle("GET /ws", d.hub)
	return mux
}

func newAuthService(cfg config.Config) *auth.Service {
	op := models.Operator{
		Username:     cfg.OperatorUsername,
		PasswordHash: cfg.OperatorPasswordHash,
		Role:         models.RoleOperator,
	}
	if op.PasswordHash == "" {
		log.Warn("OPERATOR_PASSWORD_HASH not set, HTTP login disabled")
	}
	return auth.NewService(cfg.JWTSecret, cfg.JWTExpiry, op)
}

// eventStore is a persistent event sink that can also list history.
type eventStore interface {
	telemetry.Sink
	handlers.EventSource
}

// connectEventStore prefers MongoDB, falls back to a local SQLite file and
// otherwise disables persistence.
func connectEventStore(ctx context.Context, cfg config.Config) (eventStore, func()) {
	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		client, err := db.ConnectMongo(connectCtx, cfg.MongoURI)
		if err == nil {
			log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
			coll := &db.MongoCollection{Collection: client.Database(cfg.MongoDB).Collection(db.EventsCollection)}
			if err := coll.EnsureIndexes(connectCtx); err != nil {
				log.WithError(err).Warn("Failed to create event indexes")
			}
			return &db.EventStore{Collection: coll, UnitID: cfg.UnitID}, func() {
				_ = client.Disconnect(context.Background())
			}
		}
		log.WithError(err).Error("Failed to connect to MongoDB")
	}

	if cfg.SQLitePath != "" {
		store, err := db.OpenSQLite(cfg.SQLitePath, cfg.UnitID)
		if err == nil {
			log.WithField("path", cfg.SQLitePath).Info("Storing events in SQLite")
			return store, func() { _ = store.Close() }
		}
		log.WithError(err).Error("Failed to open SQLite event store")
	}

	log.Info("Event persistence disabled")
	return nil, func() {}
}

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := telemetry.NewDispatcher(eventBuffer, telemetry.LogSink{UnitID: cfg.UnitID})
	simulation := sim.New(sim.Config{UnitID: cfg.UnitID, Interval: cfg.TickInterval, DT: cfg.SimDT}, nil, dispatcher)

	hub := handlers.NewStreamHub(simulation, handlers.DefaultFrameInterval)
	dispatcher.AddSink(hub)

	var events handlers.EventSource
	store, closeStore := connectEventStore(ctx, cfg)
	defer closeStore()
	if store != nil {
		dispatcher.AddSink(store)
		events = store
	}

	var bridge *broker.Bridge
	if cfg.MQTTBroker != "" {
		b, err := broker.Connect(cfg.MQTTBroker, cfg.MQTTClientID, cfg.UnitID, simulation, simulation.Announce)
		if err != nil {
			log.WithError(err).Error("MQTT disabled")
		} else {
			bridge = b
			dispatcher.AddSink(bridge)
		}
	}
	if bridge == nil {
		simulation.Announce()
	}

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx)
		close(dispatched)
	}()
	go simulation.Run(ctx)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(routerDeps{
			sim:       simulation,
			hub:       hub,
			events:    events,
			auth:      newAuthService(cfg),
			rateLimit: middleware.NewRateLimitMiddleware(cfg.TrustedProxies...),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithFields(log.Fields{"port": cfg.Port, "unit_id": cfg.UnitID}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	hub.Close()

	// Flush pending events before the broker goes away.
	stopDispatch()
	<-dispatched
	if bridge != nil {
		bridge.Close()
	}
	log.WithField("dropped_events", dispatcher.Dropped()).Info("Stopped")
}
