// Package upstream fetches snapshots from the api-sports football API and
// classifies every response into exactly one Class.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fixturegate/fixturegate/internal/httpclient"
	"github.com/fixturegate/fixturegate/internal/store"
)

const DefaultBaseURL = "https://v3.football.api-sports.io"

// ErrNoAPIKey is returned without a network call when no key is configured.
var ErrNoAPIKey = errors.New("API_SPORTS_KEY is not configured")

type Class string

const (
	ClassSuccess    Class = "success"
	ClassDailyLimit Class = "daily_limit"
	ClassTransient  Class = "transient"
	ClassFatal      Class = "fatal"
)

// Result is the classified outcome of one call.
type Result struct {
	Class      Class
	Payload    []byte
	StatusCode int
	Err        error
	// Exhausted is set on a successful call that used the account's last
	// request for the day.
	Exhausted bool
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Timezone is passed to the fixtures endpoint so kickoff times come
	// back in the reference zone. Empty or "Local" omits it.
	Timezone string
	// Leagues limits fixture payloads to these league ids when
	// FilterLeagues is set.
	Leagues       []int
	FilterLeagues bool
}

type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
	tz      string
	leagues map[int]bool
}

func New(cfg Config) *Client {
	return NewWithHTTP(cfg, httpclient.NewWithTimeout(cfg.Timeout))
}

func NewWithHTTP(cfg Config, hc *httpclient.Client) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{http: hc, baseURL: base, apiKey: strings.TrimSpace(cfg.APIKey)}
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		c.tz = cfg.Timezone
	}
	if cfg.FilterLeagues && len(cfg.Leagues) > 0 {
		c.leagues = make(map[int]bool, len(cfg.Leagues))
		for _, id := range cfg.Leagues {
			c.leagues[id] = true
		}
	}
	return c
}

// Endpoint returns the request path and query for key.
func (c *Client) Endpoint(key store.Key) (string, url.Values) {
	q := url.Values{}
	switch key.Kind {
	case store.KindStandings:
		q.Set("league", strconv.Itoa(key.League))
		q.Set("season", strconv.Itoa(key.Date.Season()))
		return "/standings", q
	case store.KindLogos:
		q.Set("league", strconv.Itoa(key.League))
		q.Set("season", strconv.Itoa(key.Date.Season()))
		return "/teams", q
	default:
		q.Set("date", key.Date.String())
		if c.tz != "" {
			q.Set("timezone", c.tz)
		}
		return "/fixtures", q
	}
}

// Fetch performs one upstream call for key.
func (c *Client) Fetch(ctx context.Context, key store.Key) Result {
	if c.apiKey == "" {
		return Result{Class: ClassFatal, Err: ErrNoAPIKey}
	}
	path, q := c.Endpoint(key)
	opts := []httpclient.RequestOption{
		httpclient.WithHeader("x-apisports-key", c.apiKey),
		httpclient.WithHeader("Accept", "application/json"),
	}
	for _, name := range slices.Sorted(maps.Keys(q)) {
		opts = append(opts, httpclient.WithQuery(name, q.Get(name)))
	}

	var env envelope
	resp, err := c.http.GetJSONCtx(ctx, c.baseURL+path, &env, opts...)
	if err != nil {
		return Result{Class: ClassTransient, Err: fmt.Errorf("requesting %s: %w", path, err)}
	}

	res := classify(resp, env)
	if res.Class == ClassSuccess && key.Kind == store.KindFixtures && c.leagues != nil {
		filtered, err := filterFixtures(res.Payload, c.leagues)
		if err != nil {
			return Result{Class: ClassFatal, StatusCode: resp.StatusCode, Err: err}
		}
		res.Payload = filtered
	}
	return res
}

type envelope struct {
	Errors   json.RawMessage `json:"errors"`
	Response json.RawMessage `json:"response"`
}

// classify sorts a response into one Class. env is the body as decoded by
// the request; resp.JSONErr is set when that failed.
func classify(resp *httpclient.Response, env envelope) Result {
	res := Result{StatusCode: resp.StatusCode}
	remaining, hasRemaining := remainingRequests(resp.Header)

	decodeErr := resp.JSONErr
	errText, limitHit, perMinute := upstreamErrors(env.Errors)

	switch {
	case limitHit:
		res.Class = ClassDailyLimit
		res.Err = fmt.Errorf("provider daily limit: %s", errText)
		return res
	case resp.StatusCode == http.StatusTooManyRequests:
		if hasRemaining && remaining == 0 {
			res.Class = ClassDailyLimit
			res.Err = errors.New("provider daily limit: no requests remaining")
			return res
		}
		res.Class = ClassTransient
		res.Err = fmt.Errorf("rate limited (429): %s", httpclient.SummarizeBody(resp.Body))
		return res
	case resp.StatusCode >= 500:
		res.Class = ClassTransient
		res.Err = fmt.Errorf("server error (%d): %s", resp.StatusCode, httpclient.SummarizeBody(resp.Body))
		return res
	case resp.StatusCode >= 400:
		res.Class = ClassFatal
		res.Err = fmt.Errorf("request rejected (%d): %s", resp.StatusCode, httpclient.SummarizeBody(resp.Body))
		return res
	case decodeErr != nil:
		res.Class = ClassFatal
		res.Err = fmt.Errorf("malformed response: %w", decodeErr)
		return res
	case perMinute:
		res.Class = ClassTransient
		res.Err = fmt.Errorf("provider rate limit: %s", errText)
		return res
	case errText != "":
		res.Class = ClassFatal
		res.Err = fmt.Errorf("provider error: %s", errText)
		return res
	}

	var items []json.RawMessage
	if len(env.Response) == 0 || json.Unmarshal(env.Response, &items) != nil {
		res.Class = ClassFatal
		res.Err = errors.New("malformed response: response is not an array")
		return res
	}

	res.Class = ClassSuccess
	res.Payload = resp.Body
	res.Exhausted = hasRemaining && remaining == 0
	return res
}

func remainingRequests(h http.Header) (int, bool) {
	v := strings.TrimSpace(h.Get("x-ratelimit-requests-remaining"))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// upstreamErrors reads the provider's errors field, which is an empty
// array on success and an object keyed by topic otherwise. It reports the
// joined text and whether the daily or per-minute limit was named.
func upstreamErrors(raw json.RawMessage) (text string, daily, perMinute bool) {
	if len(raw) == 0 {
		return "", false, false
	}
	var parts []string
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			s := strings.TrimSpace(fmt.Sprint(v))
			if v == nil || s == "" {
				continue
			}
			switch strings.ToLower(k) {
			case "requests":
				daily = true
			case "ratelimit":
				perMinute = true
			}
			parts = append(parts, k+": "+s)
		}
	} else {
		var list []any
		if err := json.Unmarshal(raw, &list); err == nil {
			for _, v := range list {
				if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
					parts = append(parts, s)
				}
			}
		} else {
			var s string
			if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	}
	text = strings.Join(parts, "; ")
	if strings.Contains(strings.ToLower(text), "request limit") {
		daily = true
	}
	return text, daily, perMinute && !daily
}

// filterFixtures keeps the fixtures whose league is in leagues and
// rewrites results to match.
func filterFixtures(payload []byte, leagues map[int]bool) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(doc["response"], &items); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	kept := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var head struct {
			League struct {
				ID int `json:"id"`
			} `json:"league"`
		}
		if json.Unmarshal(item, &head) != nil {
			continue
		}
		if leagues[head.League.ID] {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(items) {
		return payload, nil
	}

	resp, err := json.Marshal(kept)
	if err != nil {
		return nil, err
	}
	doc["response"] = resp
	doc["results"] = json.RawMessage(strconv.Itoa(len(kept)))
	return json.Marshal(doc)
}
