package notifier

import (
	"time"

	"go.uber.org/zap"
)

type settings struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a notifier.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
