package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"msghub/internal/domain/entity"
)

// tokenCache caches a provider access token until shortly before it expires.
// The two messaging-platform senders share this shape: fetch a token with an
// app id and secret, then attach it to every send call.
type tokenCache struct {
	mu       sync.Mutex
	token    string
	expires  time.Time
	fetchURL string
	client   *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("token: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token: fetch: %w", err)
	}
	defer resp.Body.Close()

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("token: decode: %w", err)
	}
	if out.ErrCode != 0 || out.AccessToken == "" {
		return "", fmt.Errorf("token: errcode %d: %s", out.ErrCode, out.ErrMsg)
	}

	// Refresh two minutes early so in-flight sends never race expiry.
	ttl := time.Duration(out.ExpiresIn)*time.Second - 2*time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	c.token = out.AccessToken
	c.expires = time.Now().Add(ttl)
	return c.token, nil
}

func postPlatformMessage(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("%w: errcode %d: %s", ErrSendRejected, out.ErrCode, out.ErrMsg)
	}
	return nil
}

// EnterpriseIMSender delivers text messages to corporate messaging users
// through the platform's application message API.
type EnterpriseIMSender struct {
	apiBase string
	agentID string
	tokens  *tokenCache
	client  *http.Client
}

// NewEnterpriseIMSender builds an EnterpriseIMSender from channel
// configuration. Required fields: api_base, corp_id, corp_secret, agent_id.
func NewEnterpriseIMSender(cfg *entity.ChannelConfig) (*EnterpriseIMSender, error) {
	apiBase := cfg.String("api_base")
	if apiBase == "" {
		return nil, missingConfig(entity.ChannelEnterpriseIM, "api_base")
	}
	corpID := cfg.String("corp_id")
	if corpID == "" {
		return nil, missingConfig(entity.ChannelEnterpriseIM, "corp_id")
	}
	corpSecret := cfg.String("corp_secret")
	if corpSecret == "" {
		return nil, missingConfig(entity.ChannelEnterpriseIM, "corp_secret")
	}
	agentID := cfg.String("agent_id")
	if agentID == "" {
		return nil, missingConfig(entity.ChannelEnterpriseIM, "agent_id")
	}
	client := newHTTPClient()
	return &EnterpriseIMSender{
		apiBase: apiBase,
		agentID: agentID,
		client:  client,
		tokens: &tokenCache{
			fetchURL: fmt.Sprintf("%s/gettoken?corpid=%s&corpsecret=%s", apiBase, corpID, corpSecret),
			client:   client,
		},
	}, nil
}

// Channel implements Sender.
func (s *EnterpriseIMSender) Channel() entity.ChannelType { return entity.ChannelEnterpriseIM }

// Send implements Sender.
func (s *EnterpriseIMSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	token, err := s.tokens.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("enterprise im: %w", err)
	}
	payload := map[string]any{
		"touser":  msg.Recipient,
		"msgtype": "text",
		"agentid": s.agentID,
		"text":    map[string]any{"content": msg.Content},
	}
	url := fmt.Sprintf("%s/message/send?access_token=%s", s.apiBase, token)
	if err := postPlatformMessage(ctx, s.client, url, payload); err != nil {
		return nil, fmt.Errorf("enterprise im: %w", err)
	}
	return &Result{Detail: map[string]any{"agent_id": s.agentID}}, nil
}

// PublicAccountSender delivers template messages to followers of a public
// account.
type PublicAccountSender struct {
	apiBase    string
	templateID string
	tokens     *tokenCache
	client     *http.Client
}

// NewPublicAccountSender builds a PublicAccountSender from channel
// configuration. Required fields: api_base, app_id, app_secret, template_id.
func NewPublicAccountSender(cfg *entity.ChannelConfig) (*PublicAccountSender, error) {
	apiBase := cfg.String("api_base")
	if apiBase == "" {
		return nil, missingConfig(entity.ChannelPublicAccount, "api_base")
	}
	appID := cfg.String("app_id")
	if appID == "" {
		return nil, missingConfig(entity.ChannelPublicAccount, "app_id")
	}
	appSecret := cfg.String("app_secret")
	if appSecret == "" {
		return nil, missingConfig(entity.ChannelPublicAccount, "app_secret")
	}
	templateID := cfg.String("template_id")
	if templateID == "" {
		return nil, missingConfig(entity.ChannelPublicAccount, "template_id")
	}
	client := newHTTPClient()
	return &PublicAccountSender{
		apiBase:    apiBase,
		templateID: templateID,
		client:     client,
		tokens: &tokenCache{
			fetchURL: fmt.Sprintf("%s/token?grant_type=client_credential&appid=%s&secret=%s", apiBase, appID, appSecret),
			client:   client,
		},
	}, nil
}

// Channel implements Sender.
func (s *PublicAccountSender) Channel() entity.ChannelType { return entity.ChannelPublicAccount }

// Send implements Sender.
func (s *PublicAccountSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	token, err := s.tokens.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("public account: %w", err)
	}
	payload := map[string]any{
		"touser":      msg.Recipient,
		"template_id": s.templateID,
		"data": map[string]any{
			"content": map[string]any{"value": msg.Content},
		},
	}
	url := fmt.Sprintf("%s/message/template/send?access_token=%s", s.apiBase, token)
	if err := postPlatformMessage(ctx, s.client, url, payload); err != nil {
		return nil, fmt.Errorf("public account: %w", err)
	}
	return &Result{Detail: map[string]any{"template_id": s.templateID}}, nil
}
