package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	roomsapi "collabroom/handlers/api/rooms"
	"collabroom/handlers/ws"

	"collabroom/engine"
	"collabroom/rooms"
	"collabroom/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func setupRouter(registry *rooms.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/rooms/{roomID}/ws", ws.HandleRoomSocket(registry))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", roomsapi.HandleListRooms(registry))
		r.Get("/{roomID}/presence", roomsapi.HandleGetPresence(registry))
	})

	return r
}

func saveInterval() time.Duration {
	raw := os.Getenv("SAVE_INTERVAL")
	if raw == "" {
		return rooms.DefaultSaveInterval
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		logrus.WithField("value", raw).Warn("Invalid SAVE_INTERVAL, using default")
		return rooms.DefaultSaveInterval
	}
	return interval
}

func waitForShutdown(cancel context.CancelFunc, saver *rooms.Saver) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	cancel()
	// One last pass so no dirty room loses its pending snapshot.
	saver.Flush(context.Background())
	logrus.Info("Shutting down...")
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	store := stores.GetStore()
	registry := rooms.NewRegistry(store, engine.Factory)
	saver := rooms.NewSaver(registry, saveInterval())

	ctx, cancel := context.WithCancel(context.Background())
	go saver.Run(ctx)

	r := setupRouter(registry)

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(cancel, saver)
}
