// Package uptime emails a digest of the sites UptimeRobot currently reports as down.
package uptime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIURL = "https://api.uptimerobot.com/v2/getMonitors"

	// statusesDown selects "seems down" (8) and "down" (9) monitors.
	statusesDown   = "8-9"
	defaultTimeout = 30 * time.Second

	// ErrorTitle is logged when the API call fails. No email is sent then.
	ErrorTitle = "Uptime robot returned error"
)

var (
	ErrAPI           = errors.New("uptime robot returned error")
	ErrMissingAPIKey = errors.New("missing UptimeRobot API key")
)

type Reason struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type Log struct {
	Type     int    `json:"type"`
	Datetime int64  `json:"datetime"`
	Duration int64  `json:"duration"`
	Reason   Reason `json:"reason"`
}

type Monitor struct {
	ID           int64  `json:"id"`
	FriendlyName string `json:"friendly_name"`
	URL          string `json:"url"`
	Status       int    `json:"status"`
	Logs         []Log  `json:"logs"`
}

type monitorsResponse struct {
	Stat     string    `json:"stat"`
	Monitors []Monitor `json:"monitors"`
	Error    *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type Client struct {
	apiKey string
	apiURL string
	http   *http.Client
}

// NewClient returns a client for the monitors API. An empty apiURL selects
// DefaultAPIURL and a nil httpClient one with a 30s timeout.
func NewClient(apiKey, apiURL string, httpClient *http.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: apiKey, apiURL: apiURL, http: httpClient}
}

// DownMonitors returns the monitors currently down with their latest logs.
func (c *Client) DownMonitors(ctx context.Context) ([]Monitor, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	form := url.Values{
		"api_key":    {c.apiKey},
		"format":     {"json"},
		"logs":       {"1"},
		"statuses":   {statusesDown},
		"logs_limit": {"5"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get monitors: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read monitors: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode)
	}

	var res monitorsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPI, err)
	}
	if res.Stat != "ok" {
		if res.Error != nil {
			return nil, fmt.Errorf("%w: %s", ErrAPI, res.Error.Message)
		}
		return nil, ErrAPI
	}
	return res.Monitors, nil
}
