package errcodes

import "errors"

// Code is a stable machine-readable error code.
type Code string

func (c Code) String() string {
	return string(c)
}

const (
	InternalServerError Code = "InternalServerError"
	TimeoutExceeded     Code = "TimeoutExceeded"
	Forbidden           Code = "Forbidden"
	ValidationError     Code = "ValidationError"
	NotFound            Code = "NotFound"
	Conflict            Code = "Conflict"
	Unauthorized        Code = "Unauthorized"

	// Platform transport.
	RateLimited      Code = "RateLimited"
	TransientNetwork Code = "TransientNetwork"
	PlatformError    Code = "PlatformError"

	// Trade sending.
	CannotTrade           Code = "CannotTrade"
	PrivacyRestricted     Code = "PrivacyRestricted"
	MissingItemIDs        Code = "MissingItemIDs"
	MissingInstances      Code = "MissingInstances"
	InstanceCountMismatch Code = "InstanceCountMismatch"
	TradeRejected         Code = "TradeRejected"

	// Step-up challenge.
	ChallengeRequired   Code = "ChallengeRequired"
	ChallengeExpired    Code = "ChallengeExpired"
	ChallengeFailed     Code = "ChallengeFailed"
	ChallengeUnresolved Code = "ChallengeUnresolved"

	// Secret vault.
	SecretNotFound   Code = "SecretNotFound"
	InvalidPassword  Code = "InvalidPassword" //nolint:gosec // false positive
	PasswordRequired Code = "PasswordRequired" //nolint:gosec // false positive
	InvalidSecret    Code = "InvalidSecret"

	// Templates and runs.
	TemplateNotFound Code = "TemplateNotFound"
	InvalidTemplate  Code = "InvalidTemplate"
	AlreadyRunning   Code = "AlreadyRunning"
)

// Coder is implemented by errors that expose a Code.
type Coder interface {
	ErrorCode() Code
}

// Error is a bare coded error for packages that sit below the domain layer.
type Error struct {
	Code        Code
	Description string
}

func New(code Code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func (e *Error) Error() string {
	return e.Code.String() + ": " + e.Description
}

func (e *Error) ErrorCode() Code {
	return e.Code
}

// Of extracts the code of the first Coder in the error chain.
func Of(err error) (Code, bool) {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.ErrorCode(), true
	}

	return "", false
}
