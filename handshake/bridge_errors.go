package handshake

import "errors"

var (
	MissingOriginErr         = errors.New("missing initiating host origin")
	BadWebhookSecretErr      = errors.New("webhook secret mismatch")
	InvalidOrExpiredStateErr = errors.New("invalid or expired state")
	StateAlreadyUsedErr      = errors.New("state already used")
	DuplicateStateErr        = errors.New("duplicate state")
)
