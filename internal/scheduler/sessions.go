package scheduler

import (
	"github.com/rs/zerolog/log"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
)

const sessionPruneJobName = "session_prune"

// RegisterSessionPrune drops expired sessions, and the datasets they hold, on
// the given cron schedule.
func RegisterSessionPrune(s *Service, store *session.Store, cronExpr string) error {
	_, err := s.AddJob(sessionPruneJobName, cronExpr, func() {
		PruneSessions(store)
	})
	return err
}

func PruneSessions(store *session.Store) int {
	removed := store.Prune()
	if removed > 0 {
		log.Info().
			Int("removed", removed).
			Int("remaining", store.Len()).
			Msg("Pruned expired sessions")
	}
	return removed
}
