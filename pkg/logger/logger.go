package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Development gets a human
// console writer at debug level; everything else logs JSON at info level.
func Setup(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
}

var dedup = &deduplicator{
	flushDelay: 2 * time.Second,
}

// deduplicator collapses bursts of identical log lines into one line with a
// repeat count. Page-progress and cache-hit messages during a large run would
// otherwise drown everything else.
type deduplicator struct {
	mu         sync.Mutex
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		log.Info().Msg(d.lastMsg)
	} else {
		log.Info().Int("repeats", d.count).Msg(d.lastMsg)
	}
	d.count = 0
	d.lastMsg = ""
}

// Dedup logs at info level, collapsing consecutive identical messages.
func Dedup(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	dedup.mu.Lock()
	defer dedup.mu.Unlock()

	if msg == dedup.lastMsg {
		dedup.count++
		if dedup.timer != nil {
			dedup.timer.Stop()
		}
		dedup.timer = time.AfterFunc(dedup.flushDelay, func() {
			dedup.mu.Lock()
			defer dedup.mu.Unlock()
			dedup.flush()
		})
		return
	}

	dedup.flush()
	dedup.lastMsg = msg
	dedup.count = 1
	dedup.timer = time.AfterFunc(dedup.flushDelay, func() {
		dedup.mu.Lock()
		defer dedup.mu.Unlock()
		dedup.flush()
	})
}
