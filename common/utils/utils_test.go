package utils

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestTimedTaskWithInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var counter atomic.Int32
	go TimedTaskWithInterval(ctx, 200*time.Millisecond, func(ctx context.Context) {
		counter.Add(1)
	})
	time.Sleep(time.Millisecond * 100)
	assert.Equal(t, int32(1), counter.Load())
	time.Sleep(time.Millisecond * 200)
	assert.Equal(t, int32(2), counter.Load())
}

func TestTimedTaskWithInterval_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		TimedTaskWithInterval(ctx, 10*time.Millisecond, func(ctx context.Context) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task runner did not stop")
	}
}

func TestGetEnv(t *testing.T) {
	env := GetEnv("TELEOP_TEST_ENV", "default")
	assert.Equal(t, "default", env)
	os.Setenv("TELEOP_TEST_ENV", "set")
	defer os.Unsetenv("TELEOP_TEST_ENV")
	env = GetEnv("TELEOP_TEST_ENV", "default")
	assert.Equal(t, "set", env)
}

func TestGetEnvInt(t *testing.T) {
	assert.Equal(t, 1883, GetEnvInt("TELEOP_TEST_PORT", 1883))
	t.Setenv("TELEOP_TEST_PORT", "8883")
	assert.Equal(t, 8883, GetEnvInt("TELEOP_TEST_PORT", 1883))
	t.Setenv("TELEOP_TEST_PORT", "eighty")
	assert.Equal(t, 1883, GetEnvInt("TELEOP_TEST_PORT", 1883))
}

func TestFormatClientID(t *testing.T) {
	a := FormatClientID("rover", "heartbeat")
	b := FormatClientID("rover", "heartbeat")
	assert.Assert(t, strings.HasPrefix(a, "rover@@@heartbeat@@@"))
	assert.Assert(t, a != b)
}
