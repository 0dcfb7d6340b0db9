package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/n0es/Transit/internal/auth"
	"github.com/n0es/Transit/internal/config"
	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/occupancy"
	"github.com/n0es/Transit/internal/protocol"
	"github.com/n0es/Transit/internal/publish"
	"github.com/n0es/Transit/internal/server"
)

func main() {
	configPath := ""
	flag.StringVar(&configPath, "c", "", "path to config file")
	flag.Parse()

	settings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ConfigureLogging(settings); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, settings.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())
	store := db.NewMongo(client, settings.MongoDatabase)
	log.WithField("database", settings.MongoDatabase).Info("Connected to MongoDB")

	sessions := auth.NewService(settings.JWTSecret, settings.SessionTTL(), store)
	manager := occupancy.NewManager(store, store)

	var publisher protocol.Publisher
	mqttPub, err := publish.NewMQTT(settings.MQTTBroker, settings.MQTTClientID, settings.MQTTTopic)
	if err != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", err)
	}
	if mqttPub != nil {
		defer mqttPub.Close()
		publisher = mqttPub
		log.WithField("broker", settings.MQTTBroker).Info("Publishing live positions")
	}

	srv := &server.Server{
		TCPAddr:    settings.TCPAddr,
		UDPAddr:    settings.UDPAddr,
		ConnTTL:    settings.ConnTTL(),
		Dispatcher: protocol.NewDispatcher(store, sessions, publisher),
		Store:      store,
	}

	janitor := cron.New()
	err = janitor.AddFunc(settings.JanitorSpec, func() {
		removed, err := manager.Sweep(ctx)
		if err != nil {
			log.WithError(err).Error("Occupancy sweep failed")
			return
		}
		if removed > 0 {
			log.WithField("removed", removed).Info("Occupancy sweep done")
		}
	})
	if err != nil {
		log.Fatalf("Invalid janitor schedule %q: %v", settings.JanitorSpec, err)
	}
	janitor.Start()
	defer janitor.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Info("Server stopped")
}
