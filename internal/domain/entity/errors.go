package entity

import "errors"

var (
	// ErrInvalidRecipient indicates a recipient identifier that does not match
	// the format required by the channel (e.g. malformed phone or email).
	ErrInvalidRecipient = errors.New("invalid recipient identifier")

	// ErrUnknownChannel indicates a channel type outside the supported set.
	ErrUnknownChannel = errors.New("unknown channel type")

	// ErrChannelDisabled indicates the channel exists but is disabled by
	// configuration. Treated as a configuration error, never retried.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrChannelConfigMissing indicates no configuration row exists for the
	// channel. Treated as a configuration error, never retried.
	ErrChannelConfigMissing = errors.New("channel configuration not found")

	// ErrTemplateNotFound indicates the referenced message template does not
	// exist.
	ErrTemplateNotFound = errors.New("message template not found")

	// ErrTemplateDisabled indicates the template exists but is disabled.
	ErrTemplateDisabled = errors.New("message template is disabled")

	// ErrInvalidTransition indicates an attempted message status change that
	// would violate the monotonic pending -> sending -> sent|failed machine.
	ErrInvalidTransition = errors.New("invalid message status transition")

	// ErrRetriesExhausted indicates retry scheduling was requested for a
	// record that already reached its retry cap.
	ErrRetriesExhausted = errors.New("message retries exhausted")
)
