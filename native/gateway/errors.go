package gateway

import "errors"

var (
	// ErrInvalidInput indicates a structurally invalid or ambiguous request
	// shape, e.g. native funds declared without matching attached value.
	ErrInvalidInput = errors.New("gateway: invalid input")
	// ErrInvalidAmount indicates a zero amount where non-zero is required, a
	// value outside an inclusive cap range, or an attached-value mismatch.
	ErrInvalidAmount = errors.New("gateway: invalid amount")
	// ErrInvalidRecipient indicates a required address is the zero sentinel, or
	// a non-zero recipient was supplied where the kind mandates zero.
	ErrInvalidRecipient = errors.New("gateway: invalid recipient")
	// ErrNotSupported indicates the token has no configured rate-limit threshold.
	ErrNotSupported = errors.New("gateway: token not supported")
	// ErrRateLimitExceeded indicates the per-token epoch budget would be exceeded.
	ErrRateLimitExceeded = errors.New("gateway: rate limit exceeded")
	// ErrBlockCapExceeded indicates the per-slot USD budget would be exceeded.
	ErrBlockCapExceeded = errors.New("gateway: block usd cap exceeded")
	// ErrPayloadExecuted indicates a replay of an already-settled transaction ID.
	ErrPayloadExecuted = errors.New("gateway: payload already executed")
	// ErrInvalidData indicates a required configuration value is zero when a
	// rate-limit-gated operation is attempted. Misconfiguration is a hard
	// failure, never an unlimited-throughput bypass.
	ErrInvalidData = errors.New("gateway: invalid configuration data")
	// ErrZeroAddress indicates a required configuration address is the zero sentinel.
	ErrZeroAddress = errors.New("gateway: zero address")
	// ErrInvalidCapRange indicates the configured minimum cap exceeds the maximum.
	ErrInvalidCapRange = errors.New("gateway: invalid cap range")
	// ErrPaused indicates admission is administratively paused.
	ErrPaused = errors.New("gateway: paused")
	// ErrStalePrice indicates the oracle quote exceeded the freshness bound.
	ErrStalePrice = errors.New("gateway: stale price quote")
	// ErrInvalidPrice indicates the oracle returned a non-positive price.
	ErrInvalidPrice = errors.New("gateway: invalid price quote")
	// ErrInsufficientBalance indicates the custody vault cannot cover a release.
	ErrInsufficientBalance = errors.New("gateway: insufficient vault balance")
)
