package scheduler

import (
	"context"
	"errors"
	"time"

	logx "planexport/pkg/logx"
)

const failureWarnThrottle = 5 * time.Second

func (s *Service) reportRunError(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.log.Debug("schedule run canceled", logx.String("schedule", name))
		return
	}

	now := time.Now()
	s.warnMu.Lock()
	last := s.lastWarn[name]
	if !last.IsZero() && now.Sub(last) < failureWarnThrottle {
		s.warnMu.Unlock()
		return
	}
	s.lastWarn[name] = now
	s.warnMu.Unlock()

	s.log.Warn("schedule run failed", logx.String("schedule", name), logx.Err(err))
}
