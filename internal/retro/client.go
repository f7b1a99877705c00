package retro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/leonardcser/retro-badge/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL     = "https://retroachievements.org/API/"
	DefaultTimeout     = 5 * time.Second
	DefaultRetries     = 3
	DefaultBackoff     = 500 * time.Millisecond
	DefaultParallelism = 1
	DefaultUserAgent   = "retro-badge/1.0"
)

const (
	endpointProfile = "API_GetUserProfile.php"
	endpointAwards  = "API_GetUserAwards.php"
	endpointGame    = "API_GetGameInfoAndUserProgress.php"
)

var (
	// ErrUnavailable means the upstream could not be reached or kept failing
	// after every retry.
	ErrUnavailable = errors.New("retro: upstream unavailable")
	// ErrUnexpectedPayload marks an object that does not fit the expected
	// shape. It is also an ErrApplication: retrying will not change it.
	ErrUnexpectedPayload = errors.New("retro: unexpected payload")
	// ErrApplication means the upstream answered but reported that the
	// request cannot succeed, typically an unknown user.
	ErrApplication = errors.New("retro: upstream application error")
)

type Options struct {
	BaseURL  string
	Username string
	APIKey   string

	Timeout time.Duration
	Retries int
	Backoff time.Duration

	// Parallelism and Delay bound every outbound call made by the client,
	// across all usernames.
	Parallelism int
	Delay       time.Duration

	UserAgent string
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(o.BaseURL, "/") {
		o.BaseURL += "/"
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

type Client struct {
	c     *colly.Collector
	opts  Options
	calls atomic.Int64
	log   *zap.SugaredLogger
}

func NewClient(opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(opts.UserAgent),
	)
	// Clones share the backend, so this rule is the one global throttle.
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.Parallelism,
		Delay:       opts.Delay,
	}); err != nil {
		return nil, fmt.Errorf("limit rule: %w", err)
	}
	c.SetRequestTimeout(opts.Timeout)
	return &Client{c: c, opts: opts, log: logger.With("retro")}, nil
}

// Calls returns the number of physical HTTP requests issued so far.
func (c *Client) Calls() int64 { return c.calls.Load() }

// FetchProfile gathers profile, awards and, when the user has a last game,
// game progress. Profile and awards are required; a failed game lookup only
// drops the activity.
func (c *Client) FetchProfile(ctx context.Context, username string) (*RawProfile, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	q := url.Values{"u": {username}}

	var raw RawProfile
	if err := c.safeCall(ctx, endpointProfile, q, &raw.Profile); err != nil {
		return nil, fmt.Errorf("profile for %s: %w", username, err)
	}
	if err := c.safeCall(ctx, endpointAwards, q, &raw.Awards); err != nil {
		return nil, fmt.Errorf("awards for %s: %w", username, err)
	}
	if raw.Profile.LastGameID > 0 {
		gq := url.Values{
			"g": {strconv.FormatInt(int64(raw.Profile.LastGameID), 10)},
			"u": {username},
		}
		var game GameProgress
		if err := c.safeCall(ctx, endpointGame, gq, &game); err != nil {
			c.log.Warnw("game progress unavailable, continuing without activity",
				"username", username, "game_id", int64(raw.Profile.LastGameID), "error", err)
		} else {
			raw.Game = &game
		}
	}
	return &raw, nil
}

// safeCall issues one logical call with retries. Application errors are
// returned immediately; everything else is retried with linear backoff.
func (c *Client) safeCall(ctx context.Context, endpoint string, q url.Values, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.opts.Backoff*time.Duration(attempt-1)); err != nil {
				return err
			}
		}
		err := c.get(ctx, endpoint, q, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrApplication) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		c.log.Debugw("upstream call failed", "endpoint", endpoint, "attempt", attempt, "error", err)
	}
	c.log.Warnw("upstream call gave up", "endpoint", endpoint, "attempts", c.opts.Retries, "error", lastErr)
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, endpoint, c.opts.Retries, lastErr)
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	params := url.Values{}
	for k, v := range q {
		params[k] = v
	}
	params.Set("z", c.opts.Username)
	params.Set("y", c.opts.APIKey)
	target := c.opts.BaseURL + endpoint + "?" + params.Encode()

	col := c.c.Clone()
	col.Context = ctx

	var (
		status      int
		body        []byte
		contentType string
	)
	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})
	col.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})

	c.calls.Add(1)
	if err := col.Visit(target); err != nil {
		return fmt.Errorf("%s: %w", endpoint, c.redact(err, endpoint))
	}
	if status == 0 {
		return fmt.Errorf("%s: no response", endpoint)
	}

	switch {
	case status >= 200 && status < 300:
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d", endpoint, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: %s: status %d: %s", ErrApplication, endpoint, status, summarizeBody(body, contentType))
	default:
		return fmt.Errorf("%s: status %d: %s", endpoint, status, summarizeBody(body, contentType))
	}
	return decodeObject(endpoint, body, contentType, out)
}

// redact strips the query, and with it the API credentials, from the URL
// that net/http embeds in transport errors.
func (c *Client) redact(err error, endpoint string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = c.opts.BaseURL + endpoint
	}
	return err
}

// decodeObject accepts only a JSON object without an "Error" key. Other well
// formed JSON (null, arrays) means the subject does not exist; a body that is
// not JSON at all is treated as transient.
func decodeObject(endpoint string, body []byte, contentType string, out any) error {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return fmt.Errorf("%s: undecodable body: %s", endpoint, summarizeBody(body, contentType))
	}
	obj, ok := probe.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s: expected object, got %s", ErrApplication, endpoint, jsonKind(probe))
	}
	if msg, ok := obj["Error"]; ok {
		return fmt.Errorf("%w: %s: %v", ErrApplication, endpoint, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w: %s: %v", ErrApplication, ErrUnexpectedPayload, endpoint, err)
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
