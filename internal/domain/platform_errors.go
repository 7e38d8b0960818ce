package domain

import (
	"errors"
	"fmt"
	"time"

	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
)

// ChallengeError is returned by a send that needs step-up verification.
type ChallengeError struct {
	Challenge entity.Challenge
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge required: %s", e.Challenge.ID)
}

func (e *ChallengeError) ErrorCode() errcodes.Code {
	return errcodes.ChallengeRequired
}

func AsChallenge(err error) (entity.Challenge, bool) {
	var ce *ChallengeError
	if errors.As(err, &ce) {
		return ce.Challenge, true
	}
	return entity.Challenge{}, false
}

// RateLimitError carries the server-advised wait of a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) ErrorCode() errcodes.Code {
	return errcodes.RateLimited
}

// RetryAfter returns the advised wait when err is a rate limit.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

