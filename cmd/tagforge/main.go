// Command tagforge evaluates tag templates, runs GScript pipelines, manages
// stored tags and serves the HTTP API.
package main

import (
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
