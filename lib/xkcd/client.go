// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package xkcd reads comic metadata from the xkcd JSON interface: the
// latest comic's number, which drives catch-up polling, and the
// summary of one comic by number.
package xkcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rocketbot/rocket/lib/netutil"
	"github.com/rocketbot/rocket/lib/version"
)

// DefaultBaseURL is the public site.
const DefaultBaseURL = "https://xkcd.com"

const defaultRequestTimeout = 10 * time.Second

var (
	// ErrNotFound means the comic does not exist. Comic 404 famously
	// never did.
	ErrNotFound = errors.New("xkcd: comic not found")

	// ErrMalformed means a 2xx response did not describe a comic.
	ErrMalformed = errors.New("xkcd: malformed comic")

	// ErrSourceStatus wraps other non-2xx responses.
	ErrSourceStatus = errors.New("xkcd: unexpected status")
)

// Comic is one comic's metadata. Date parts are strings on the wire.
type Comic struct {
	Num       int64  `json:"num"`
	Title     string `json:"title"`
	SafeTitle string `json:"safe_title"`
	Img       string `json:"img"`
	Alt       string `json:"alt"`
	Day       string `json:"day"`
	Month     string `json:"month"`
	Year      string `json:"year"`

	date time.Time
	base string
}

// Date is the publication date at midnight UTC.
func (c Comic) Date() time.Time { return c.date }

// Permalink is the comic's page on the site it was fetched from.
func (c Comic) Permalink() string {
	base := c.base
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/" + strconv.FormatInt(c.Num, 10) + "/"
}

// DisplayTitle prefers the safe title.
func (c Comic) DisplayTitle() string {
	if c.SafeTitle != "" {
		return c.SafeTitle
	}
	return c.Title
}

// Config configures a Client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// RequestTimeout bounds each request. Zero means 10s.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	userAgent  string
}

// NewClient validates config and returns a Client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("xkcd: invalid BaseURL %q", config.BaseURL)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
		userAgent:  "rocket/" + version.Version + " (+" + version.ProjectURL + ")",
	}, nil
}

// Latest returns the newest comic.
func (c *Client) Latest(ctx context.Context) (*Comic, error) {
	comic, err := c.fetch(ctx, "/info.0.json")
	if err != nil {
		return nil, fmt.Errorf("xkcd: latest: %w", err)
	}
	return comic, nil
}

// Comic returns comic n.
func (c *Client) Comic(ctx context.Context, n int64) (*Comic, error) {
	if n <= 0 {
		return nil, fmt.Errorf("xkcd: comic %d: %w", n, ErrNotFound)
	}
	comic, err := c.fetch(ctx, "/"+strconv.FormatInt(n, 10)+"/info.0.json")
	if err != nil {
		return nil, fmt.Errorf("xkcd: comic %d: %w", n, err)
	}
	if comic.Num != n {
		return nil, fmt.Errorf("xkcd: comic %d: response describes comic %d: %w", n, comic.Num, ErrMalformed)
	}
	return comic, nil
}

func (c *Client) fetch(ctx context.Context, path string) (*Comic, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case response.StatusCode < 200 || response.StatusCode > 299:
		return nil, fmt.Errorf("%w %d: %s", ErrSourceStatus, response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var comic Comic
	if err := netutil.DecodeResponse(response.Body, &comic); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, err
	}
	if err := comic.validate(); err != nil {
		return nil, err
	}
	comic.base = c.baseURL
	c.logger.Debug("xkcd comic fetched", "num", comic.Num)
	return &comic, nil
}

func (c *Comic) validate() error {
	if c.Num <= 0 {
		return fmt.Errorf("%w: missing num", ErrMalformed)
	}
	if c.Img == "" {
		return fmt.Errorf("%w: comic %d has no image", ErrMalformed, c.Num)
	}
	year, yearErr := strconv.Atoi(c.Year)
	month, monthErr := strconv.Atoi(c.Month)
	day, dayErr := strconv.Atoi(c.Day)
	if err := errors.Join(yearErr, monthErr, dayErr); err != nil {
		return fmt.Errorf("%w: comic %d date %q-%q-%q: %v", ErrMalformed, c.Num, c.Year, c.Month, c.Day, err)
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || date.Month() != time.Month(month) || date.Day() != day {
		return fmt.Errorf("%w: comic %d has impossible date %d-%d-%d", ErrMalformed, c.Num, year, month, day)
	}
	c.date = date
	return nil
}
