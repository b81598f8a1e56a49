package service

import (
	"context"
	"time"

	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"go.uber.org/zap"
)

const reasonAbandoned = "abandoned"

// ExpireAbandoned closes idle attempts with the provider. An attempt whose
// payment went through in the meantime is settled rather than expired.
func (s *Service) ExpireAbandoned(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	stale, err := s.repo.ListStaleAttempts(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		attempt := &stale[i]
		closed, err := s.closeAttempt(ctx, attempt, reasonAbandoned)
		if err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			s.log.Warn("close abandoned checkout attempt",
				zap.Int64("attempt_id", attempt.ID),
				zap.Error(err),
			)
			continue
		}
		if closed.State != paymentdomain.StateFailed {
			s.log.Info("abandoned checkout attempt was paid",
				zap.Int64("attempt_id", attempt.ID),
				zap.String("state", string(closed.State)),
			)
			continue
		}
		expired++
		s.log.Info("checkout attempt abandoned",
			zap.Int64("attempt_id", attempt.ID),
			zap.String("target_type", attempt.TargetType),
			zap.Int64("target_id", attempt.TargetID),
			zap.String("state", string(attempt.State)),
		)
	}
	return expired, nil
}
