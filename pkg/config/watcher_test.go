package config

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, `
limits:
  services:
    openai:
      requests_per_minute: {threshold: 10, window_seconds: 60}
history:
  backend: memory
`)

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(cfg *Config) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, cfg.Limits.Services["openai"].RequestsPerMinute.Threshold)
			return nil
		})
	}()

	// Give the watch loop a moment to start.
	time.Sleep(50 * time.Millisecond)

	// An invalid file is ignored.
	require.NoError(t, os.WriteFile(path, []byte("history:\n  backend: nope\n"), 0o600))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`
limits:
  services:
    openai:
      requests_per_minute: {threshold: 25, window_seconds: 60}
history:
  backend: memory
`), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == 25
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
