// Package main provides the Docker container entrypoint
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const binDir = "/app/bin"

func main() {
	runType := getEnvWithDefault("RUN_TYPE", "bot")
	workerType := getEnvWithDefault("WORKER_TYPE", "purge")
	workersCount := getEnvWithDefault("WORKERS_COUNT", "1")

	switch runType {
	case "bot":
		execBinary("bot")
	case "worker":
		execBinary("worker", workerType, "--workers", workersCount)
	case "db":
		execBinary("db", os.Args[1:]...)
	default:
		fmt.Fprintf(os.Stderr, "Invalid RUN_TYPE. Must be 'bot', 'worker' or 'db'\n")
		fmt.Fprintf(os.Stderr, "Usage: RUN_TYPE=worker WORKER_TYPE=<type> WORKERS_COUNT=<count>\n")
		os.Exit(1)
	}
}

// getEnvWithDefault returns the environment variable value or the default if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// execBinary replaces this process with the named binary so it receives
// container signals directly and can flush before exiting.
func execBinary(name string, args ...string) {
	path := filepath.Join(binDir, name)
	argv := append([]string{path}, args...)

	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute %s: %v\n", name, err)
		os.Exit(1)
	}
}
