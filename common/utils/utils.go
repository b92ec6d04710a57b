package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
)

// TimedTaskWithInterval runs a task at a specified interval until the context is cancelled.
func TimedTaskWithInterval(ctx context.Context, interval time.Duration, task func(context.Context)) {
	wait.UntilWithContext(ctx, task, interval)
}

// GetEnv retrieves an environment variable or returns a default value if not set.
func GetEnv(key, defaultValue string) string {
	value, found := os.LookupEnv(key)
	if found {
		return value
	}
	return defaultValue
}

// GetEnvInt is GetEnv for integer values. Unparsable values fall back to the default.
func GetEnvInt(key string, defaultValue int) int {
	value, found := os.LookupEnv(key)
	if !found {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// FormatClientID builds a unique bus client id, e.g. "rover@@@onboard-heartbeat@@@<uuid>".
func FormatClientID(prefix, component string) string {
	return fmt.Sprintf("%s@@@%s@@@%s", prefix, component, uuid.New().String())
}
