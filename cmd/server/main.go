package main

import (
	"context"
	"log"

	"example/resume-api/app"
	"example/resume-api/app/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.SetFlags(cfg.Logs.Flags())
	h, closeDeps, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize service: %v", err)
	}
	defer closeDeps()

	router, err := app.NewRouter(h, cfg)
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	if err := router.Run(cfg.HTTP.Addr); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
