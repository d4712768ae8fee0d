package match

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TimeoutMonitor polls one match at a fixed interval and ends it when the
// running clock has expired. It stops on its own once the match is over or
// no longer live.
type TimeoutMonitor struct {
	session  *Session
	live     func(id string) (*Session, bool)
	clock    clockwork.Clock
	interval time.Duration
}

func newTimeoutMonitor(s *Session, live func(string) (*Session, bool), clk clockwork.Clock, interval time.Duration) *TimeoutMonitor {
	return &TimeoutMonitor{
		session:  s,
		live:     live,
		clock:    clk,
		interval: interval,
	}
}

func (m *TimeoutMonitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	id := m.session.ID()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if current, ok := m.live(id); !ok || current != m.session {
				log.Debug().Str("match_id", id).Msg("match no longer live, monitor exiting")
				return
			}
			if u, timedOut := m.session.CheckTimeout(); timedOut {
				log.Info().
					Str("match_id", id).
					Str("loser", u.Side.String()).
					Str("result", u.Match.Result).
					Msg("match ended on time")
				return
			}
			if m.session.Ended() {
				return
			}
		}
	}
}
