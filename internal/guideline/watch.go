package guideline

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/treewskyblue/Medvise/internal/models"
)

// Watch reindexes the store whenever supported files in its directory change.
// Bursts of events are collapsed into one reindex after delay. It blocks until
// ctx is done.
func (s *Store) Watch(ctx context.Context, delay time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	s.log.Info().Str("dir", s.dir).Dur("delay", delay).Msg("Watching guideline directory")

	timer := time.NewTimer(delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !models.IsSupported(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			s.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Guideline changed")
			timer.Reset(delay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("Watcher error")
		case <-timer.C:
			if _, err := s.ReindexAll(ctx); err != nil {
				s.log.Error().Err(err).Msg("Reindex after change failed")
			}
		}
	}
}
