package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"msghub/internal/domain/entity"
	"msghub/internal/observability/metrics"
	"msghub/internal/resilience/circuitbreaker"
)

// ConfigSource resolves the stored configuration for a channel. A nil config
// with a nil error means the channel has never been configured.
type ConfigSource interface {
	GetChannelConfig(ctx context.Context, channel entity.ChannelType) (*entity.ChannelConfig, error)
}

// Dispatcher routes outbound messages to the sender for their channel. Each
// channel's provider sits behind its own circuit breaker so one failing
// gateway cannot starve the rest. Senders are rebuilt when their stored
// configuration changes, which keeps provider token caches warm across
// sends.
type Dispatcher struct {
	configs ConfigSource
	logger  *slog.Logger

	mu       sync.Mutex
	senders  map[entity.ChannelType]*cachedSender
	breakers map[entity.ChannelType]*circuitbreaker.CircuitBreaker
}

type cachedSender struct {
	sender    Sender
	builtFrom time.Time
}

// NewDispatcher creates a Dispatcher over the given configuration source.
func NewDispatcher(configs ConfigSource, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		configs:  configs,
		logger:   logger,
		senders:  make(map[entity.ChannelType]*cachedSender),
		breakers: make(map[entity.ChannelType]*circuitbreaker.CircuitBreaker),
	}
}

// Dispatch delivers msg over the named channel. It returns
// entity.ErrChannelConfigMissing when the channel was never configured and
// entity.ErrChannelDisabled when it is switched off.
func (d *Dispatcher) Dispatch(ctx context.Context, channel entity.ChannelType, msg *Message) (*Result, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownChannel, channel)
	}

	cfg, err := d.configs.GetChannelConfig(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: load config: %w", channel, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrChannelConfigMissing, channel)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s", entity.ErrChannelDisabled, channel)
	}

	snd, err := d.senderFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", channel, err)
	}

	start := time.Now()
	out, err := d.breaker(channel).Execute(func() (interface{}, error) {
		return snd.Send(ctx, msg)
	})
	elapsed := time.Since(start)
	metrics.RecordDispatch(string(channel), err == nil, elapsed)

	if err != nil {
		d.logger.Error("channel send failed",
			slog.String("channel", string(channel)),
			slog.String("message_no", msg.MessageNo),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return nil, err
	}

	result, ok := out.(*Result)
	if !ok {
		return nil, errors.New("dispatch: sender returned unexpected result type")
	}
	d.logger.Info("message dispatched",
		slog.String("channel", string(channel)),
		slog.String("message_no", msg.MessageNo),
		slog.String("provider_id", result.ProviderID),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

// senderFor returns a cached sender for the config, rebuilding it when the
// stored configuration is newer than the cached build.
func (d *Dispatcher) senderFor(cfg *entity.ChannelConfig) (Sender, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.senders[cfg.Channel]; ok && !cfg.UpdatedAt.After(cached.builtFrom) {
		return cached.sender, nil
	}
	snd, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	d.senders[cfg.Channel] = &cachedSender{sender: snd, builtFrom: cfg.UpdatedAt}
	return snd, nil
}

func (d *Dispatcher) breaker(channel entity.ChannelType) *circuitbreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.breakers[channel]
	if !ok {
		cb = circuitbreaker.New(circuitbreaker.ChannelConfig(string(channel)))
		d.breakers[channel] = cb
	}
	return cb
}
