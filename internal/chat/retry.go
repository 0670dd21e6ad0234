package chat

import (
	"time"

	"github.com/sessionbridge/orchestrator/internal/logging"
)

// RetryingSender wraps a Transport's Send with bounded exponential
// backoff (spec.md §6.1: "transient send failures as retriable with
// exponential backoff and bounded attempts; permanent send failures
// surface as a logged warning and do not crash the core").
type RetryingSender struct {
	Transport
	MaxAttempts int
	BaseDelay   time.Duration
	log         *logging.Logger
}

// NewRetryingSender wraps t with the given retry policy.
func NewRetryingSender(t Transport, maxAttempts int, baseDelay time.Duration, log *logging.Logger) *RetryingSender {
	if log == nil {
		log = logging.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &RetryingSender{Transport: t, MaxAttempts: maxAttempts, BaseDelay: baseDelay, log: log}
}

// Send retries the underlying transport's Send with exponential
// backoff, logging and swallowing the error once attempts are
// exhausted rather than propagating it to the caller.
func (s *RetryingSender) Send(channel, text string) error {
	var err error
	delay := s.BaseDelay
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if err = s.Transport.Send(channel, text); err == nil {
			return nil
		}
		if attempt == s.MaxAttempts {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	s.log.WithError(err).Warn("chat send failed after retries, dropping")
	return nil
}
