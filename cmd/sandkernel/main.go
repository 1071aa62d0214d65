package main

import (
	"context"
	"flag"
	"log"

	"github.com/AnishMulay/sandkernel/internal/config"
	"github.com/AnishMulay/sandkernel/servers/node"
)

func main() {
	var (
		configPath = flag.String("config", "sandkernel.yaml", "Path to the node config (written with defaults if missing)")
		listen     = flag.String("listen", "", "Listen address, overrides the config")
		storage    = flag.String("storage", "", "Storage type (memory, hostfs, chunked), overrides the config")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *storage != "" {
		cfg.Storage.Type = *storage
	}

	n, err := node.Build(node.Options{Config: cfg})
	if err != nil {
		log.Fatalf("Failed to build node: %v", err)
	}
	if err := n.Run(context.Background()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
