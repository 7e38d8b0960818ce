package platform

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trade_engine/internal/domain"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/errcodes"
)

// Platform error codes carried in {"errors":[{"code":N}]} bodies.
const (
	codeChallengeRequired = 0
	codeChallengeExpired  = 10
	codePrivacyRestricted = 22
)

const (
	headerChallengeID       = "Rblx-Challenge-Id"
	headerChallengeType     = "Rblx-Challenge-Type"
	headerChallengeMetadata = "Rblx-Challenge-Metadata"
	headerRetryAfter        = "Retry-After"

	challengeRequiredMessage = "Challenge is required"
)

type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (a apiErrors) has(code int) bool {
	for _, e := range a.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (a apiErrors) challenge() bool {
	for _, e := range a.Errors {
		if e.Code == codeChallengeRequired && strings.Contains(e.Message, challengeRequiredMessage) {
			return true
		}
	}
	return false
}

func (a apiErrors) message() string {
	if len(a.Errors) > 0 && a.Errors[0].Message != "" {
		return a.Errors[0].Message
	}
	return ""
}

// mapError converts a non-2xx platform response into a coded error.
func mapError(status int, header http.Header, body []byte) error {
	if status == http.StatusTooManyRequests {
		return &domain.RateLimitError{RetryAfter: retryAfter(header)}
	}

	var payload apiErrors
	_ = json.Unmarshal(body, &payload)

	switch {
	case payload.challenge() || header.Get(headerChallengeID) != "":
		return &domain.ChallengeError{Challenge: parseChallenge(header)}
	case payload.has(codePrivacyRestricted):
		return domain.NewError(errcodes.PrivacyRestricted, "counterparty privacy settings prevent trading")
	case payload.has(codeChallengeExpired):
		return domain.NewError(errcodes.ChallengeExpired, "authenticator secret expired or invalid")
	case status >= http.StatusInternalServerError:
		return domain.NewError(errcodes.TransientNetwork, fmt.Sprintf("platform status %d", status))
	case status == http.StatusUnauthorized:
		return domain.NewError(errcodes.Unauthorized, "platform session rejected")
	case status == http.StatusNotFound:
		return domain.NewError(errcodes.NotFound, "platform resource not found")
	}

	msg := payload.message()
	if msg == "" {
		msg = fmt.Sprintf("platform status %d", status)
	}

	return domain.NewError(errcodes.PlatformError, msg)
}

// retryAfter reads Retry-After in seconds. Zero means the header was absent
// and callers apply their own default.
func retryAfter(header http.Header) time.Duration {
	v := strings.TrimSpace(header.Get(headerRetryAfter))
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}

	return 0
}

type challengeMetadata struct {
	ChallengeID string `json:"challengeId"`
}

func parseChallenge(header http.Header) entity.Challenge {
	ch := entity.Challenge{
		HeaderID: header.Get(headerChallengeID),
		Type:     header.Get(headerChallengeType),
	}

	if raw := header.Get(headerChallengeMetadata); raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(raw)
		}
		if err == nil {
			var meta challengeMetadata
			if json.Unmarshal(decoded, &meta) == nil {
				ch.ID = meta.ChallengeID
			}
		}
	}

	return ch
}

func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(err, errcodes.TimeoutExceeded, op+": timeout")
	}
	return domain.WrapError(err, errcodes.TransientNetwork, op)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return domain.HasCode(err, errcodes.TransientNetwork) || domain.HasCode(err, errcodes.TimeoutExceeded)
}
