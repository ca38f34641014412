package main

import "github.com/taskloom/taskloom/pkg/sentinel"

// runSentinel starts the sentinel supervisor for the server.
func runSentinel() {
	sentinel.Run()
}
