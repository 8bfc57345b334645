package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTestFile writes content to name inside dir and returns the path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startWatcher[T any](t *testing.T, w *Watcher[T]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_BasicReload(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "activity.toml", "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})
	startWatcher(t, watcher)

	writeTestFile(t, filepath.Dir(path), "activity.toml", "name = \"updated\"\nvalue = 42\n")

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestWatcher_ReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "activity.toml", "value = 1\n")

	received := make(chan testConfig, 4)
	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})
	startWatcher(t, watcher)

	tmp := writeTestFile(t, dir, "activity.toml.tmp", "value = 7\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 7 {
			t.Errorf("expected value=7, got %d", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "activity.toml", "value = 1\n")

	var count atomic.Int32
	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](20*time.Millisecond))
	watcher.OnReload(func(_ testConfig) {
		count.Add(1)
	})
	startWatcher(t, watcher)

	writeTestFile(t, dir, "unrelated.toml", "value = 2\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reloads for other files, got %d", got)
	}
}

func TestWatcher_MultipleHandlers(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "activity.toml", "value = 1\n")

	var wg sync.WaitGroup
	wg.Add(2)
	var lastValue1, lastValue2 atomic.Int32

	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		lastValue1.Store(int32(cfg.Value))
		wg.Done()
	})
	watcher.OnReload(func(cfg testConfig) {
		lastValue2.Store(int32(cfg.Value))
		wg.Done()
	})
	startWatcher(t, watcher)

	writeTestFile(t, filepath.Dir(path), "activity.toml", "value = 10\n")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for handlers")
	}

	if got := lastValue1.Load(); got != 10 {
		t.Errorf("handler1: expected last value 10, got %d", got)
	}
	if got := lastValue2.Load(); got != 10 {
		t.Errorf("handler2: expected last value 10, got %d", got)
	}
}

func TestWatcher_Unsubscribe(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "activity.toml", "value = 1\n")
	watcher := NewWatcher(path, loadTestConfig, newTestLogger())

	var count atomic.Int32
	unsub := watcher.OnReload(func(_ testConfig) {
		count.Add(1)
	})

	if !watcher.Reload() {
		t.Fatal("Reload failed")
	}
	unsub()
	watcher.Reload()

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 call before unsubscribe, got %d", got)
	}
}

func TestWatcher_ErrorHandler(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "activity.toml", "name = \"valid\"\nvalue = 1\n")

	errorReceived := make(chan error, 1)
	configReceived := make(chan testConfig, 1)

	watcher := NewWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
		WithErrorHandler[testConfig](func(err error) {
			errorReceived <- err
		}),
	)
	watcher.OnReload(func(cfg testConfig) {
		configReceived <- cfg
	})
	startWatcher(t, watcher)

	writeTestFile(t, filepath.Dir(path), "activity.toml", "invalid toml [[[")

	select {
	case <-errorReceived:
		// Expected
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestWatcher_Debounce(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "activity.toml", "value = 0\n")

	var count atomic.Int32
	var lastValue atomic.Int32

	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](200*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		count.Add(1)
		lastValue.Store(int32(cfg.Value))
	})
	startWatcher(t, watcher)

	// Rapid changes within debounce window
	for i := 1; i <= 5; i++ {
		writeTestFile(t, dir, "activity.toml", fmt.Sprintf("value = %d\n", i))
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := lastValue.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestWatcher_ThreadSafety(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "activity.toml", "name = \"test\"\n")

	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](10*time.Millisecond))
	startWatcher(t, watcher)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := watcher.OnReload(func(_ testConfig) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}

	// Trigger some changes while handlers are being added/removed
	for i := range 10 {
		writeTestFile(t, dir, "activity.toml", fmt.Sprintf("value = %d\n", i))
		time.Sleep(20 * time.Millisecond)
	}

	wg.Wait()
}

func TestWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "activity.toml", "value = 1\n")

	var count atomic.Int32
	watcher := NewWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(_ testConfig) {
		count.Add(1)
	})

	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Fatal(err)
	}

	writeTestFile(t, dir, "activity.toml", "value = 2\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no calls after stop, got %d", got)
	}
}
