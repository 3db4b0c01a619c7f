// Package telephony starts phone calls for a chat through the Asterisk bridge.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

const defaultFailure = "failed to originate channel"

// OriginateRequest is the body of POST /originate.
type OriginateRequest struct {
	Endpoint string `json:"endpoint"`
	ChatID   string `json:"chatId"`
}

// OriginateResponse is the bridge's answer.
type OriginateResponse struct {
	Message   string `json:"message"`
	ChannelID string `json:"channelId"`
}

// Client calls the telephony bridge.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a client for the bridge at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Component("telephony"),
	}
}

// ForSettings returns a client for the host configured in s, or c itself
// when no host is set.
func (c *Client) ForSettings(s model.TelephonySettings) *Client {
	if s.Host == nil || strings.TrimSpace(*s.Host) == "" {
		return c
	}
	host := strings.TrimSpace(*s.Host)
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return &Client{
		baseURL:    strings.TrimRight(host, "/"),
		httpClient: c.httpClient,
		logger:     c.logger,
	}
}

// EndpointFor builds the dial endpoint from the configured number.
func EndpointFor(s model.TelephonySettings) (string, error) {
	if s.Number == nil || strings.TrimSpace(*s.Number) == "" {
		return "", model.NewError(model.KindValidation, "telephony.endpoint", "telephony number is not set")
	}
	return "PJSIP/" + strings.TrimSpace(*s.Number), nil
}

// Originate asks the bridge to call endpoint and attach the call to chatID.
func (c *Client) Originate(ctx context.Context, endpoint, chatID string) (*OriginateResponse, error) {
	const op = "POST /originate"

	payload, err := json.Marshal(OriginateRequest{Endpoint: endpoint, ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/originate", bytes.NewReader(payload))
	if err != nil {
		return nil, model.WrapError(model.KindNetwork, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.WrapError(model.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.WrapError(model.KindNetwork, op, err)
	}

	var out OriginateResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := defaultFailure
		if decodeErr == nil && out.Message != "" {
			msg = out.Message
		}
		return nil, &model.Error{Kind: model.KindForStatus(resp.StatusCode), Op: op, Message: msg, Status: resp.StatusCode}
	}
	if decodeErr != nil {
		return nil, model.WrapError(model.KindServer, op, fmt.Errorf("invalid response body: %w", decodeErr))
	}

	c.logger.Info("channel originated",
		zap.String("chat_id", chatID),
		zap.String("endpoint", endpoint),
		zap.String("channel_id", out.ChannelID),
	)
	return &out, nil
}
