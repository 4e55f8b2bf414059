package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"msghub/internal/domain/entity"
)

// webhookClient is the shared machinery for channels that post JSON to a
// fixed webhook URL. Providers throttle webhooks aggressively, so each
// client paces itself with a local token bucket.
type webhookClient struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

func newWebhookClient(url string, perMinute int) *webhookClient {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &webhookClient{
		url:     url,
		client:  newHTTPClient(),
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (w *webhookClient) post(ctx context.Context, payload any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("webhook: decode response: %w", err)
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("%w: errcode %d: %s", ErrSendRejected, out.ErrCode, out.ErrMsg)
	}
	return nil
}

// GroupBotSender posts markdown messages to a group chat robot webhook.
type GroupBotSender struct {
	webhook *webhookClient
}

// NewGroupBotSender builds a GroupBotSender from channel configuration.
// Required field: webhook_url. Optional: rate_per_minute.
func NewGroupBotSender(cfg *entity.ChannelConfig) (*GroupBotSender, error) {
	url := cfg.String("webhook_url")
	if url == "" {
		return nil, missingConfig(entity.ChannelGroupBot, "webhook_url")
	}
	perMinute := 0
	if v, ok := cfg.Data["rate_per_minute"].(float64); ok {
		perMinute = int(v)
	}
	return &GroupBotSender{webhook: newWebhookClient(url, perMinute)}, nil
}

// Channel implements Sender.
func (s *GroupBotSender) Channel() entity.ChannelType { return entity.ChannelGroupBot }

// Send implements Sender.
func (s *GroupBotSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	payload := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"content": msg.Content,
		},
	}
	if err := s.webhook.post(ctx, payload); err != nil {
		return nil, fmt.Errorf("group bot: %w", err)
	}
	return &Result{Detail: map[string]any{"msgtype": "markdown"}}, nil
}

// AIBotSender forwards messages to a conversational bot service that relays
// them to the recipient's session.
type AIBotSender struct {
	webhook *webhookClient
}

// NewAIBotSender builds an AIBotSender from channel configuration. Required
// field: webhook_url.
func NewAIBotSender(cfg *entity.ChannelConfig) (*AIBotSender, error) {
	url := cfg.String("webhook_url")
	if url == "" {
		return nil, missingConfig(entity.ChannelAIBot, "webhook_url")
	}
	return &AIBotSender{webhook: newWebhookClient(url, 0)}, nil
}

// Channel implements Sender.
func (s *AIBotSender) Channel() entity.ChannelType { return entity.ChannelAIBot }

// Send implements Sender.
func (s *AIBotSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	payload := map[string]any{
		"session_id": msg.Recipient,
		"content":    msg.Content,
		"message_no": msg.MessageNo,
	}
	if err := s.webhook.post(ctx, payload); err != nil {
		return nil, fmt.Errorf("ai bot: %w", err)
	}
	return &Result{Detail: map[string]any{"session_id": msg.Recipient}}, nil
}
