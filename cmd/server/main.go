package main

import (
	"context"
	"log"

	"github.com/adityadaniel/flora-friend/app"
	"github.com/adityadaniel/flora-friend/app/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app.MustInitDB()
	app.InitStripe()
	app.InitServices(cfg)
	app.InitQueue(context.Background(), cfg.QueueURL)

	router, err := app.NewRouter()
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	router.Run("0.0.0.0:" + cfg.Port)
}
