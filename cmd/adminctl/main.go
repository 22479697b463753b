package main

import (
	"os"

	"github.com/joho/godotenv"

	"gamelog-backend/internal/tools/adminctl"
)

func main() {
	_ = godotenv.Load()
	if err := adminctl.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
