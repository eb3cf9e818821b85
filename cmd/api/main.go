package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"billing-service/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := app.NewServer()
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
	log.Println("server stopped gracefully")
}
