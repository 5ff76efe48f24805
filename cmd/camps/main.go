package main

import (
	"os"

	"github.com/wonny/camps/cmd/camps/commands"
)

// main is the entry point for the CAMPS CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/camps [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
