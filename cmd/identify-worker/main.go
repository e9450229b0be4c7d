package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adityadaniel/flora-friend/app"
	"github.com/adityadaniel/flora-friend/app/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.QueueURL == "" {
		log.Fatal("QUEUE_URL environment variable is required")
	}

	app.MustInitDB()
	app.InitStripe()
	app.InitServices(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqsClient, err := app.NewSQSClient(ctx)
	if err != nil {
		log.Fatalf("failed to init SQS: %v", err)
	}

	app.RunWorker(ctx, sqsClient, cfg.QueueURL)
}
