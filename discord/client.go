// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rocketbot/rocket/lib/clock"
	"github.com/rocketbot/rocket/lib/netutil"
	"github.com/rocketbot/rocket/lib/ref"
	"github.com/rocketbot/rocket/lib/secret"
	"github.com/rocketbot/rocket/lib/version"
)

// DefaultBaseURL is the versioned REST API root.
const DefaultBaseURL = "https://discord.com/api/v10"

const (
	defaultRequestTimeout = 10 * time.Second
	defaultBackoff        = 500 * time.Millisecond
	maxBackoff            = 30 * time.Second
)

// ClientConfig holds configuration for NewClient.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Token is the bot token. The client reads it for every
	// authenticated request but does not own or close it. Nil leaves
	// only token-authenticated webhook execution usable.
	Token *secret.Buffer

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// RequestsPerSecond paces all requests. Zero means 40, safely
	// under the platform's global limit of 50.
	RequestsPerSecond float64

	// RequestTimeout bounds a single attempt. Zero means 10s.
	RequestTimeout time.Duration

	// MaxRetries is the number of extra attempts after a transient
	// failure. Zero disables in-request retries.
	MaxRetries int

	// Clock drives retry backoff. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL        string
	token          *secret.Buffer
	httpClient     *http.Client
	limiter        *rate.Limiter
	requestTimeout time.Duration
	maxRetries     int
	clock          clock.Clock
	logger         *slog.Logger
	userAgent      string
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("discord: invalid BaseURL %q: %w", baseURL, err)
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("discord: MaxRetries must not be negative")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	perSecond := config.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = 40
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          config.Token,
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond))),
		requestTimeout: timeout,
		maxRetries:     config.MaxRetries,
		clock:          clk,
		logger:         logger,
		userAgent:      version.UserAgent(),
	}, nil
}

// CreateDM opens, or returns the existing, direct channel with a user.
func (c *Client) CreateDM(ctx context.Context, recipient ref.Snowflake) (*Channel, error) {
	if recipient.IsZero() {
		return nil, fmt.Errorf("discord: create DM: recipient is required")
	}
	request := struct {
		RecipientID ref.Snowflake `json:"recipient_id"`
	}{recipient}

	var channel Channel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", nil, true, request, &channel); err != nil {
		return nil, fmt.Errorf("discord: create DM with %s: %w", recipient, err)
	}
	return &channel, nil
}

// CreateMessage posts a message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channel ref.Snowflake, message MessageCreate) (*Message, error) {
	if err := validateMessage(message.Content, message.Embeds); err != nil {
		return nil, err
	}
	if len(message.Nonce) > 25 {
		return nil, fmt.Errorf("discord: nonce %q exceeds 25 characters", message.Nonce)
	}

	var created Message
	path := "/channels/" + channel.String() + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, true, message, &created); err != nil {
		return nil, fmt.Errorf("discord: create message in %s: %w", channel, err)
	}
	return &created, nil
}

// GetWebhook fetches a webhook with the bot token. The response
// includes the webhook token when the bot may manage it.
func (c *Client) GetWebhook(ctx context.Context, id ref.Snowflake) (*Webhook, error) {
	var webhook Webhook
	if err := c.do(ctx, http.MethodGet, "/webhooks/"+id.String(), nil, true, nil, &webhook); err != nil {
		return nil, fmt.Errorf("discord: get webhook %s: %w", id, err)
	}
	return &webhook, nil
}

// ExecuteWebhook posts through a webhook and waits for the platform to
// confirm the message was created. The webhook token authenticates the
// request; the bot token is not sent.
func (c *Client) ExecuteWebhook(ctx context.Context, id ref.Snowflake, token string, message WebhookMessage) error {
	if token == "" {
		return fmt.Errorf("discord: execute webhook %s: token is required", id)
	}
	if err := validateMessage(message.Content, message.Embeds); err != nil {
		return err
	}
	path := "/webhooks/" + id.String() + "/" + url.PathEscape(token)
	query := url.Values{"wait": []string{"true"}}
	if err := c.do(ctx, http.MethodPost, path, query, false, message, nil); err != nil {
		// The path carries the token; keep it out of the error text.
		return fmt.Errorf("discord: execute webhook %s: %w", id, err)
	}
	return nil
}

func validateMessage(content string, embeds []Embed) error {
	if content == "" && len(embeds) == 0 {
		return fmt.Errorf("discord: message has neither content nor embeds")
	}
	if len(embeds) > MaxEmbedsPerMessage {
		return fmt.Errorf("discord: %d embeds exceeds the limit of %d per message", len(embeds), MaxEmbedsPerMessage)
	}
	if count := len([]rune(content)); count > MaxMessageContentSize {
		return fmt.Errorf("discord: content is %d characters, limit %d", count, MaxMessageContentSize)
	}
	total := 0
	for _, embed := range embeds {
		if err := embed.Validate(); err != nil {
			return err
		}
		total += embed.Length()
	}
	if total > MaxEmbedTotalChars {
		return fmt.Errorf("discord: embeds total %d characters, limit %d per message", total, MaxEmbedTotalChars)
	}
	return nil
}

// do runs a request with pacing and bounded retries, decoding a 2xx
// body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, authenticated bool, body, out any) error {
	if authenticated && c.token == nil {
		return fmt.Errorf("no bot token configured")
	}

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	backoff := defaultBackoff
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		responseBody, err := c.attempt(ctx, method, path, query, authenticated, encoded)
		if err == nil {
			if out == nil || len(responseBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(responseBody, out); err != nil {
				return fmt.Errorf("decoding %s %s response: %w", method, path, err)
			}
			return nil
		}
		if attempt >= c.maxRetries || !IsTransient(err) || ctx.Err() != nil {
			return err
		}

		wait := backoff
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		wait = min(wait, maxBackoff)
		backoff = min(backoff*2, maxBackoff)

		c.logger.Debug("retrying platform request",
			"method", method,
			"route", routeOf(path),
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)
		if !clock.Sleep(c.clock, wait, ctx.Done()) {
			return ctx.Err()
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, authenticated bool, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		request.Header.Set("Authorization", "Bot "+c.token.Reveal())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		// url.Error quotes the URL, which for webhooks holds the token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("%s %s: %w", method, routeOf(path), err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		responseBody, err := netutil.ReadResponse(response.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return responseBody, nil
	}
	return nil, decodeError(response)
}

func decodeError(response *http.Response) error {
	raw := netutil.ErrorBody(response.Body)
	apiErr := &APIError{StatusCode: response.StatusCode}

	var decoded struct {
		Code       int     `json:"code"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
		Global     bool    `json:"global"`
	}
	if json.Unmarshal([]byte(raw), &decoded) == nil {
		apiErr.Code = decoded.Code
		apiErr.Message = decoded.Message
		apiErr.Global = decoded.Global
		apiErr.RetryAfter = time.Duration(decoded.RetryAfter * float64(time.Second))
	} else {
		apiErr.Message = strings.TrimSpace(raw)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(response.StatusCode)
	}
	if apiErr.RetryAfter == 0 && response.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.ParseFloat(response.Header.Get("Retry-After"), 64); err == nil {
			apiErr.RetryAfter = time.Duration(seconds * float64(time.Second))
		}
	}
	return apiErr
}

// routeOf strips the webhook token from a path for logs and errors.
func routeOf(path string) string {
	if rest, ok := strings.CutPrefix(path, "/webhooks/"); ok {
		if id, _, hasToken := strings.Cut(rest, "/"); hasToken {
			return "/webhooks/" + id + "/:token"
		}
	}
	return path
}
