package main

import (
	"log"

	"cashwatch/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Poll loop failed: %v", err)
	}
}
