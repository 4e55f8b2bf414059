// Package sender contains the per-channel delivery clients and the
// dispatcher that routes an outbound message to the right one. The set of
// channels is closed: adding a channel means adding a sender implementation
// and a case in the dispatch switch.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"msghub/internal/domain/entity"
)

// ErrMissingConfig is returned when a channel's configuration lacks a
// required field.
var ErrMissingConfig = errors.New("sender: missing channel configuration")

// ErrSendRejected is returned when the provider accepted the request but
// rejected the message.
var ErrSendRejected = errors.New("sender: provider rejected message")

// Message is one outbound message, already rendered and validated.
type Message struct {
	MessageNo string
	Recipient string
	Subject   string
	Content   string
	Metadata  map[string]any
}

// Result reports a successful delivery attempt.
type Result struct {
	// ProviderID is the provider-side identifier for the accepted message,
	// when the provider returns one.
	ProviderID string

	// Detail carries provider-specific response fields for tracing.
	Detail map[string]any
}

// Sender delivers messages over one channel.
type Sender interface {
	// Channel identifies which channel this sender serves.
	Channel() entity.ChannelType

	// Send delivers one message. A nil error means the provider accepted
	// the message.
	Send(ctx context.Context, msg *Message) (*Result, error)
}

const defaultHTTPTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func missingConfig(channel entity.ChannelType, field string) error {
	return fmt.Errorf("%w: %s requires %q", ErrMissingConfig, channel, field)
}

// Build constructs the Sender for a channel from its stored configuration.
// Unknown channels return entity.ErrUnknownChannel.
func Build(cfg *entity.ChannelConfig) (Sender, error) {
	switch cfg.Channel {
	case entity.ChannelSMS:
		return NewSMSSender(cfg)
	case entity.ChannelEmail:
		return NewEmailSender(cfg)
	case entity.ChannelGroupBot:
		return NewGroupBotSender(cfg)
	case entity.ChannelAIBot:
		return NewAIBotSender(cfg)
	case entity.ChannelEnterpriseIM:
		return NewEnterpriseIMSender(cfg)
	case entity.ChannelPublicAccount:
		return NewPublicAccountSender(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownChannel, cfg.Channel)
	}
}
