package main

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"presence-backend/internal/api"
	"presence-backend/internal/bus"
	"presence-backend/internal/env"
	"presence-backend/internal/presence"
	"presence-backend/internal/session"
	"presence-backend/internal/stomp"
	"presence-backend/internal/store"
)

func main() {
	interval := env.Duration(env.HeartbeatInterval, 45*time.Second)

	registry := presence.NewRegistry()
	directory := presence.NewDirectory()
	stats := presence.NewAggregator(registry, directory)

	b := bus.New()
	var publisher bus.Publisher = b
	if addr := env.Get(env.RedisURL); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: env.Get(env.RedisPass),
			DB:       0,
		})
		bridge := bus.NewRedisBridge(b, client)
		go func() {
			if err := bridge.Run(context.Background()); err != nil {
				log.Printf("redis bridge stopped: %v", err)
			}
		}()
		publisher = bridge
		log.Printf("room broadcasts bridged through redis at %s", addr)
	}

	var presenceStore store.PresenceStore
	if table := env.Get(env.DynamoTable); table != "" {
		ds, err := store.NewDynamoStore(table)
		if err != nil {
			log.Fatalf("presence store init failed: %v", err)
		}
		presenceStore = ds
		log.Printf("persisting last-seen presence to table %s", table)
	}

	manager := session.NewManager(registry, directory, stats, publisher, presenceStore, interval)
	go manager.Run(context.Background())

	ws := stomp.NewHandler(b, manager)

	server := api.NewAPIServer(
		env.GetOrDefault(env.ListenAddr, ":8080"),
		ws,
		stats,
		directory,
		api.PresenceRoutes("/api/presence/v1"),
	)
	server.Run()
}
