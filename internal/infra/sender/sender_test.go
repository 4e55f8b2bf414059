package sender

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msghub/internal/domain/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func smsConfig(url string) *entity.ChannelConfig {
	return &entity.ChannelConfig{
		Channel: entity.ChannelSMS,
		Enabled: true,
		Data: map[string]any{
			"api_url":   url,
			"api_key":   "test-key",
			"sign_name": "MsgHub",
		},
	}
}

func TestSMSSenderSuccess(t *testing.T) {
	var gotAuth string
	var gotReq smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(smsResponse{Code: 0, MessageID: "prov-123"})
	}))
	defer srv.Close()

	s, err := NewSMSSender(smsConfig(srv.URL))
	require.NoError(t, err)

	res, err := s.Send(context.Background(), &Message{
		MessageNo: "MSG1",
		Recipient: "13812345678",
		Content:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "prov-123", res.ProviderID)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "13812345678", gotReq.Phone)
	assert.Equal(t, "MsgHub", gotReq.SignName)
}

func TestSMSSenderProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(smsResponse{Code: 1002, Message: "invalid number"})
	}))
	defer srv.Close()

	s, err := NewSMSSender(smsConfig(srv.URL))
	require.NoError(t, err)

	_, err = s.Send(context.Background(), &Message{Recipient: "13812345678"})
	assert.ErrorIs(t, err, ErrSendRejected)
}

func TestSMSSenderMissingConfig(t *testing.T) {
	_, err := NewSMSSender(&entity.ChannelConfig{Channel: entity.ChannelSMS, Data: map[string]any{}})
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestEmailSenderBuildsRFC822Message(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte

	s, err := NewEmailSender(&entity.ChannelConfig{
		Channel: entity.ChannelEmail,
		Data: map[string]any{
			"smtp_host": "mail.example.com",
			"smtp_port": "587",
			"username":  "noreply@example.com",
			"password":  "secret",
		},
	})
	require.NoError(t, err)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		return nil
	}

	_, err = s.Send(context.Background(), &Message{
		Recipient: "user@example.com",
		Subject:   "Notice",
		Content:   "body text",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, string(gotBody), "Subject: Notice\r\n")
	assert.Contains(t, string(gotBody), "\r\n\r\nbody text")
}

func TestGroupBotSenderPostsMarkdown(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		json.NewEncoder(w).Encode(webhookResponse{ErrCode: 0})
	}))
	defer srv.Close()

	s, err := NewGroupBotSender(&entity.ChannelConfig{
		Channel: entity.ChannelGroupBot,
		Data:    map[string]any{"webhook_url": srv.URL},
	})
	require.NoError(t, err)

	_, err = s.Send(context.Background(), &Message{Recipient: "room-1", Content: "**alert**"})
	require.NoError(t, err)
	assert.Equal(t, "markdown", payload["msgtype"])
}

func TestEnterpriseIMSenderFetchesTokenOnce(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/gettoken", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 7200})
	})
	mux.HandleFunc("/message/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.URL.Query().Get("access_token"))
		json.NewEncoder(w).Encode(webhookResponse{ErrCode: 0})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := NewEnterpriseIMSender(&entity.ChannelConfig{
		Channel: entity.ChannelEnterpriseIM,
		Data: map[string]any{
			"api_base":    srv.URL,
			"corp_id":     "corp",
			"corp_secret": "secret",
			"agent_id":    "1000002",
		},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = s.Send(context.Background(), &Message{Recipient: "zhangsan", Content: "hi"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}

func TestBuildUnknownChannel(t *testing.T) {
	_, err := Build(&entity.ChannelConfig{Channel: "PIGEON"})
	assert.ErrorIs(t, err, entity.ErrUnknownChannel)
}

type staticConfigSource struct {
	cfgs map[entity.ChannelType]*entity.ChannelConfig
}

func (s *staticConfigSource) GetChannelConfig(_ context.Context, channel entity.ChannelType) (*entity.ChannelConfig, error) {
	return s.cfgs[channel], nil
}

func TestDispatcherRoutesToConfiguredSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(smsResponse{Code: 0, MessageID: "prov-9"})
	}))
	defer srv.Close()

	cfg := smsConfig(srv.URL)
	cfg.UpdatedAt = time.Now()
	d := NewDispatcher(&staticConfigSource{cfgs: map[entity.ChannelType]*entity.ChannelConfig{
		entity.ChannelSMS: cfg,
	}}, testLogger())

	res, err := d.Dispatch(context.Background(), entity.ChannelSMS, &Message{
		MessageNo: "MSG1",
		Recipient: "13812345678",
		Content:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "prov-9", res.ProviderID)
}

func TestDispatcherMissingAndDisabledConfig(t *testing.T) {
	disabled := smsConfig("http://unused")
	disabled.Enabled = false
	d := NewDispatcher(&staticConfigSource{cfgs: map[entity.ChannelType]*entity.ChannelConfig{
		entity.ChannelSMS: disabled,
	}}, testLogger())

	_, err := d.Dispatch(context.Background(), entity.ChannelSMS, &Message{})
	assert.ErrorIs(t, err, entity.ErrChannelDisabled)

	_, err = d.Dispatch(context.Background(), entity.ChannelEmail, &Message{})
	assert.ErrorIs(t, err, entity.ErrChannelConfigMissing)

	_, err = d.Dispatch(context.Background(), "PIGEON", &Message{})
	assert.ErrorIs(t, err, entity.ErrUnknownChannel)
}
