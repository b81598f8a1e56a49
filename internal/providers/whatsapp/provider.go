package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/launchpad/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.whatsapp",
	fx.Provide(NewFromConfig),
)

type Provider interface {
	SendMessage(ctx context.Context, phone string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) SendMessage(ctx context.Context, phone string, message string) error {
	return nil
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.WhatsApp.APIURL == "" || cfg.WhatsApp.Token == "" {
		log.Info("whatsapp not configured, messages disabled")
		return &NoOpProvider{}
	}
	return NewHTTP(cfg.WhatsApp.APIURL, cfg.WhatsApp.Token, &http.Client{Timeout: 10 * time.Second})
}

// HTTPProvider posts text messages to a WhatsApp business API gateway.
type HTTPProvider struct {
	apiURL string
	token  string
	client *http.Client
}

func NewHTTP(apiURL, token string, client *http.Client) *HTTPProvider {
	return &HTTPProvider{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		client: client,
	}
}

type messageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             messageText `json:"text"`
}

type messageText struct {
	Body string `json:"body"`
}

func (p *HTTPProvider) SendMessage(ctx context.Context, phone string, message string) error {
	phone = normalizePhone(phone)
	if phone == "" {
		return fmt.Errorf("whatsapp: invalid phone")
	}
	body, err := json.Marshal(messageRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text:             messageText{Body: message},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("whatsapp: status %d", resp.StatusCode)
	}
	return nil
}

// normalizePhone keeps digits only; the API expects E.164 without the plus.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
