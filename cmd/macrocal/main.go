package main

import (
	"os"

	"github.com/wonny/macrocal/cmd/macrocal/commands"
)

// main is the entry point for the macrocal CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/macrocal [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
