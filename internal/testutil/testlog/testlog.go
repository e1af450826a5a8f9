// Package testlog configures the test logging profile and captures log
// output for assertions.
package testlog

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/remotesync/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start applies the test profile and marks the beginning of t in the log.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}

// Buffer holds JSON log lines written while a capture is active.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether any captured line holds every fragment.
func (b *Buffer) Contains(fragments ...string) bool {
	for _, line := range strings.Split(b.String(), "\n") {
		ok := line != ""
		for _, f := range fragments {
			if !strings.Contains(line, f) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Capture routes the global logger to a fresh Buffer at trace level until t
// ends. Call it before starting goroutines that log, so they are stopped by
// earlier cleanups before the logger is restored.
func Capture(t *testing.T) *Buffer {
	t.Helper()
	logging.ConfigureTests()
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	buf := &Buffer{}
	log.Logger = zerolog.New(buf).With().Str("test", t.Name()).Logger()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	return buf
}
