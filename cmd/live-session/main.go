// Package main — точка входа live-session (viewer/broadcaster CLI + simulation).
package main

import (
	"log"

	"github.com/artisan-platform/live-session/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
