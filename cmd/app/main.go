package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/VladKovDev/subgate-bot/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Printf("subgate-bot: %v", err)
		stop()
		os.Exit(1)
	}
}
