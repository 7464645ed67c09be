// Package main is the entry point for the cloud action agent.
// The agent serves a registry of validated cloud operations over HTTP and NATS.
package main

import (
	"os"

	"github.com/softcane/cloud-action-agent/cmd/agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
