package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	out     io.Writer
	closer  io.Closer
	mu      sync.Mutex
	enabled bool
)

// DefaultPath returns ~/.config/go-cvbridge/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "go-cvbridge", "debug.log")
}

// Enable starts debug logging to path (DefaultPath when empty). The file is
// truncated.
func Enable(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	EnableWriter(f)
	return nil
}

// EnableWriter logs to w. If w is an io.Closer it is closed by Disable.
func EnableWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		closer.Close()
	}
	out = w
	closer, _ = w.(io.Closer)
	enabled = true
	write("debug", "=== Debug logging started ===")
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		closer.Close()
	}
	out, closer = nil, nil
	enabled = false
	counters = make(map[string]int)
}

// Enabled reports whether logging is on
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || out == nil {
		return
	}
	write(category, fmt.Sprintf(format, args...))
}

// caller holds mu
func write(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] %-10s %s\n", ts, category, msg)
	if f, ok := out.(*os.File); ok {
		f.Sync() // flush immediately so we see logs even on crash
	}
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	if !enabled {
		mu.Unlock()
		return
	}
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if n <= 1 || count%n == 1 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
