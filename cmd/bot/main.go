package main

import (
	"os"

	"github.com/flor3z/scrim-bot/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
