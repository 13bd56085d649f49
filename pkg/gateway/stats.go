package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/chatrelay/chatrelay/pkg/logger"
)

// StartStats logs cache and session counters on the given cron schedule
// until the context is cancelled. An empty expression disables it.
func (s *Server) StartStats(ctx context.Context, cronExpr string) error {
	if cronExpr == "" {
		return nil
	}
	gron := gronx.New()
	if !gron.IsValid(cronExpr) {
		return fmt.Errorf("invalid stats cron expression %q", cronExpr)
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				due, err := gron.IsDue(cronExpr, now)
				if err != nil || !due {
					continue
				}
				s.dedupMu.Lock()
				hits := s.dedupHits
				s.dedupMu.Unlock()
				logger.InfoCF("gateway", "Stats", map[string]any{
					"cached_messages": s.msgCache.Len(),
					"sessions":        s.router.Sessions().Len(),
					"dedup_hits":      hits,
				})
			}
		}
	}()
	return nil
}
