package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastion/server/internal/cache"
	"github.com/bastion/server/internal/config"
	"github.com/bastion/server/internal/mock"
	"github.com/bastion/server/internal/notify"
	"github.com/bastion/server/internal/session"
	"github.com/bastion/server/internal/supervisor"
	"github.com/bastion/server/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Synthesize game traffic instead of spawning servers")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override spectator transport port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Global.Port = *port
	}

	registry, err := session.NewRegistry(cfg.Servers)
	if err != nil {
		log.Fatalf("Failed to build registry: %v", err)
	}

	// Seed notification message ids from the previous run, if any, so the
	// first notification edits the old message instead of creating a new one.
	if entries := cache.Load(cfg.Global.CachePath); entries != nil {
		log.Println("Cache found, recovering state...")
		for i := 0; i < registry.Len() && i < len(entries); i++ {
			registry.At(i).SetMessageID(entries[i].MessageID)
		}
	} else {
		log.Println("Nothing cached, starting from scratch...")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := notify.New()
	hub := ws.NewHub()
	sv := supervisor.New(ctx, cfg.Global.BinPath, registry, notifier, hub)
	hub.SetRestarter(sv)

	for _, st := range registry.All() {
		if st.MessageID() != "" {
			notifier.Reboot(st)
		} else {
			notifier.Boot(st)
		}
	}

	if *mockMode {
		log.Println("Starting in mock mode")
		gen := mock.NewGenerator(sv, registry)
		gen.Start(ctx)
	} else {
		if err := sv.StartAll(); err != nil {
			log.Fatalf("Failed to start servers: %v", err)
		}
	}

	server := ws.NewServer(hub, registry)
	server.SetHealthReporter(sv)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		entries := make([]cache.Entry, registry.Len())
		for i := 0; i < registry.Len(); i++ {
			entries[i].MessageID = registry.At(i).MessageID()
		}
		if err := cache.Save(cfg.Global.CachePath, entries); err != nil {
			log.Printf("Failed to save cache: %v", err)
		}
		cancel()
		sv.StopAll()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Global.Host, cfg.Global.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
