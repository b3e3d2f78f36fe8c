package debounceservice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// New builds the backend named by cfg.Backend. The returned close func is
// never nil.
func New(ctx context.Context, cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", BackendFile:
		log.Info().Msgf("Debounce table stored in %s", cfg.Path)
		return NewFileStore(cfg.Path), noop, nil
	case BackendMemory:
		log.Warn().Msg("Debounce table kept in memory, history is lost on restart")
		return NewMemoryStore(), noop, nil
	case BackendPostgres:
		ps, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Msg("Debounce table stored in postgres")
		return ps, ps.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown debounce backend %q", cfg.Backend)
	}
}
