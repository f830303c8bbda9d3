package main

import (
	"context"
	"log"

	"github.com/agentflow-dev/toolsets/internal/app"
)

func main() {
	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("Failed to start toolset service: %v", err)
	}
}
