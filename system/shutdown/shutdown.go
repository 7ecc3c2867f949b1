package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// ExitFunc is swapped out in tests.
var ExitFunc = os.Exit

var (
	mu      sync.Mutex
	closers []closer
)

type closer struct {
	name string
	fn   func() error
}

// Register adds a cleanup step. Steps run in reverse registration order.
func Register(name string, fn func() error) {
	mu.Lock()
	defer mu.Unlock()
	closers = append(closers, closer{name: name, fn: fn})
}

func runClosers() {
	mu.Lock()
	pending := closers
	closers = nil
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].fn(); err != nil {
			log.Warn().Err(err).Str("component", pending[i].name).Msg("Cleanup failed")
			continue
		}
		log.Debug().Str("component", pending[i].name).Msg("Closed")
	}
}

func Shutdown() {
	runClosers()
	log.Info().Msg("Purifier controller stopped")
	ExitFunc(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	runClosers()
	ExitFunc(1)
}
