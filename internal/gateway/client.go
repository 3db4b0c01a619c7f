// Package gateway is the client's single point of contact with the chat
// backend: typed REST calls, bearer token handling and the realtime channel.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	natsclient "github.com/capitalize-ai/chatsync/internal/nats"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
	"github.com/capitalize-ai/chatsync/pkg/tracing"
)

// Config configures a gateway.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8009/api.
	BaseURL string
	Timeout time.Duration
	// Realtime configures the NATS connection opened by Connect.
	Realtime natsclient.Config
	Logger   *logger.Logger
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client is the REST and realtime gateway. It is safe for concurrent use.
// Calls are fire-and-await: nothing is queued and nothing is retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger

	tokenMu sync.RWMutex
	token   string

	rt realtime
}

// New creates a gateway. Most callers share one instance per process; see
// Shared.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		log:        log.Component("gateway"),
	}
	c.rt.init(cfg.Realtime, c.log)
	return c
}

// BaseURL returns the API root the gateway talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken attaches a bearer token to every subsequent request. An empty
// token sends requests unauthenticated.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one request. route is the path template used for metric and
// span names; path is the concrete path below the base URL.
func (c *Client) do(ctx context.Context, method, route, path string, body, out any) error {
	op := method + " " + route

	ctx, span := tracing.Tracer("chatsync/gateway").Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		),
	)
	defer span.End()

	start := time.Now()
	status, err := c.roundTrip(ctx, op, method, path, body, out)

	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	metrics.RecordGatewayRequest(method, route, statusLabel, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Debug("request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, model.WrapError(model.KindValidation, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, model.WrapError(model.KindNetwork, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Correlation-ID", uuid.New().String())
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, model.WrapError(model.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, model.WrapError(model.KindNetwork, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, statusError(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, model.WrapError(model.KindServer, op, fmt.Errorf("invalid response body: %w", err))
	}
	return resp.StatusCode, nil
}

func statusError(op string, status int, data []byte) *model.Error {
	msg := http.StatusText(status)
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		switch {
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}
	return &model.Error{
		Kind:    model.KindForStatus(status),
		Op:      op,
		Message: msg,
		Status:  status,
	}
}
