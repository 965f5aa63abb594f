// Command gather is the offline-first CLI client for the gather event
// service. It keeps a local SQLite mirror of the remote API so reads keep
// working without a network, while writes always go to the server first.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
