// Package kma fetches full-grid surface observations from the KMA API hub.
// It is the acquisition source collaborator: the only component that holds
// the API credential, and the only one that talks to the network.
package kma

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"gridfusion/internal/config"
	"gridfusion/internal/domain"
	"gridfusion/internal/observability"
)

// gridEndpoint serves one variable over the whole grid for one timestamp,
// as an ASCII number dump.
const gridEndpoint = "/cgi-bin/url/nph-sfc_obs_nc_api"

// Client downloads hourly grids and assembles per-day observation frames.
type Client struct {
	baseURL       string
	authKey       string
	httpClient    *http.Client
	clock         clockwork.Clock
	pause         time.Duration
	retryAttempts int
	retryBackoff  time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewClient creates an acquisition client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:       cfg.APIBaseURL,
		authKey:       cfg.APIAuthKey,
		httpClient:    &http.Client{Timeout: cfg.APITimeout},
		clock:         clockwork.NewRealClock(),
		pause:         cfg.APIPause,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
		logger:        logger,
		metrics:       metrics,
	}
}

// FetchDay downloads every observation hour of one (date, variable) and
// returns the assembled frame. expectedN is the grid size from the
// coordinate source; any hour whose value count disagrees fails the whole
// unit, because a silently truncated or padded grid would shift grid_idx
// against the mapping.
func (c *Client) FetchDay(ctx context.Context, date domain.Date, v domain.Variable, expectedN int) (domain.ObservationFrame, error) {
	frame := domain.ObservationFrame{Date: date, Variable: v.Key}

	for i, hour := range v.ObservationHours() {
		if i > 0 {
			if err := c.sleep(ctx, c.pause); err != nil {
				return domain.ObservationFrame{}, &domain.AcquisitionError{Date: date, Variable: v.Key, Err: err}
			}
		}
		values, err := c.fetchHour(ctx, date, v.Key, hour, expectedN)
		if err != nil {
			return domain.ObservationFrame{}, &domain.AcquisitionError{
				Date: date, Variable: v.Key,
				Err: fmt.Errorf("hour %02d: %w", hour, err),
			}
		}
		for idx, val := range values {
			frame.Rows = append(frame.Rows, domain.ObservationRow{
				GridIdx: int64(idx),
				Date:    date.String(),
				Hour:    int32(hour),
				Value:   val,
			})
		}
	}
	return frame, nil
}

// fetchHour requests one timestamp with retries and exponential backoff.
// Transient network failures and malformed responses are retried the same
// way; the upstream occasionally serves truncated dumps that succeed on the
// next attempt.
func (c *Client) fetchHour(ctx context.Context, date domain.Date, obs string, hour, expectedN int) ([]*float64, error) {
	tm := fmt.Sprintf("%s%02d00", date, hour)

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.FetchRetries.Inc()
			backoff := c.retryBackoff << (attempt - 2)
			c.logger.Warn("grid fetch retrying",
				"tm", tm, "obs", obs, "attempt", attempt, "backoff", backoff, "error", lastErr)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		values, err := c.requestGrid(ctx, tm, obs, expectedN)
		if err == nil {
			return values, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *Client) requestGrid(ctx context.Context, tm, obs string, expectedN int) ([]*float64, error) {
	params := url.Values{
		"tm":      {tm},
		"obs":     {obs},
		"disp":    {"A"},
		"authKey": {c.authKey},
	}
	u := c.baseURL + gridEndpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch grid: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("authorization rejected (403) for %q: check the API hub permission for this variable", obs)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	text := string(body)
	if looksLikeErrorResponse(text) {
		return nil, fmt.Errorf("error page instead of grid data: %s", preview(text))
	}

	return parseGridResponse(text, expectedN)
}

// parseGridResponse extracts the value array from an ASCII grid dump.
// Comment lines start with '#'. Some responses prefix the values with the
// grid dimensions; a leading integer pair whose product equals expectedN is
// stripped as such a header. Any remaining count mismatch is an error:
// truncating or padding would corrupt the grid_idx correspondence.
// Sentinel codes outside the physical range become missing values.
func parseGridResponse(text string, expectedN int) ([]*float64, error) {
	var raw []float64
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, tok := range strings.Fields(strings.ReplaceAll(line, ",", " ")) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				continue
			}
			raw = append(raw, v)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no numeric values in response")
	}

	if expectedN > 0 && len(raw) != expectedN {
		original := len(raw)
		if original > expectedN {
			limit := min(20, original-1)
			for i := 0; i < limit; i++ {
				a, b := raw[i], raw[i+1]
				if a == float64(int(a)) && b == float64(int(b)) && int(a)*int(b) == expectedN {
					raw = raw[i+2:]
					break
				}
			}
		}
		if len(raw) != expectedN {
			return nil, fmt.Errorf("grid length mismatch: parsed %d values, expected %d", original, expectedN)
		}
	}

	values := make([]*float64, len(raw))
	for i, v := range raw {
		if v < -900 || v > 2000 {
			continue // missing or sentinel code
		}
		val := v
		values[i] = &val
	}
	return values, nil
}

// looksLikeErrorResponse detects HTML or error bodies served with status 200.
func looksLikeErrorResponse(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	head := strings.ToLower(t[:min(400, len(t))])
	if strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") {
		return true
	}
	if strings.Contains(head, "forbidden") || strings.Contains(head, "unauthorized") {
		return true
	}
	if strings.Contains(head, "error") && !strings.Contains(head, "#") {
		return true
	}
	return false
}

func preview(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	if len(t) > 200 {
		t = t[:200] + "..."
	}
	return t
}

// sleep waits on the client clock, honoring context cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}
