package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"msghub/internal/domain/entity"
)

// SMSSender delivers text messages through an HTTP SMS gateway.
type SMSSender struct {
	apiURL   string
	apiKey   string
	signName string
	client   *http.Client
}

// NewSMSSender builds an SMSSender from channel configuration. Required
// fields: api_url, api_key.
func NewSMSSender(cfg *entity.ChannelConfig) (*SMSSender, error) {
	apiURL := cfg.String("api_url")
	if apiURL == "" {
		return nil, missingConfig(entity.ChannelSMS, "api_url")
	}
	apiKey := cfg.String("api_key")
	if apiKey == "" {
		return nil, missingConfig(entity.ChannelSMS, "api_key")
	}
	return &SMSSender{
		apiURL:   apiURL,
		apiKey:   apiKey,
		signName: cfg.String("sign_name"),
		client:   newHTTPClient(),
	}, nil
}

// Channel implements Sender.
func (s *SMSSender) Channel() entity.ChannelType { return entity.ChannelSMS }

type smsRequest struct {
	Phone    string `json:"phone"`
	Content  string `json:"content"`
	SignName string `json:"sign_name,omitempty"`
}

type smsResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	MessageID string `json:"msg_id"`
}

// Send implements Sender.
func (s *SMSSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	body, err := json.Marshal(smsRequest{
		Phone:    msg.Recipient,
		Content:  msg.Content,
		SignName: s.signName,
	})
	if err != nil {
		return nil, fmt.Errorf("sms: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms: gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sms: gateway returned status %d", resp.StatusCode)
	}
	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sms: decode response: %w", err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("%w: code %d: %s", ErrSendRejected, out.Code, out.Message)
	}
	return &Result{
		ProviderID: out.MessageID,
		Detail:     map[string]any{"gateway_code": out.Code},
	}, nil
}
