package storage

import (
	"github.com/rs/zerolog"
)

// badgerLogAdapter satisfies badger.Logger by forwarding to a
// zerolog.Logger. github.com/rs/zerolog is not a dependency of the
// teacher's own go.mod — its pkg/storage/badger.go doc comment merely
// sketches `zerolog.New(os.Stdout)` in a code example without ever
// importing it. It is grounded instead on itohio-EasyRobot's go.mod, which
// lists zerolog v1.23.0 as a direct dependency elsewhere in the example
// pack: Grafeo imports it the way that repo does, to give every Badger
// arena the structured logger the teacher only gestured at.
type badgerLogAdapter struct {
	log zerolog.Logger
}

// NewBadgerLogger wraps log so it can be installed as badger.Options.Logger.
func NewBadgerLogger(log zerolog.Logger) *badgerLogAdapter {
	return &badgerLogAdapter{log: log.With().Str("component", "badger").Logger()}
}

func (b *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	b.log.Error().Msgf(format, args...)
}

func (b *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	b.log.Warn().Msgf(format, args...)
}

func (b *badgerLogAdapter) Infof(format string, args ...interface{}) {
	b.log.Info().Msgf(format, args...)
}

func (b *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	b.log.Debug().Msgf(format, args...)
}
