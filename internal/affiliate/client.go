package affiliate

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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const statsPath = "/affiliate/v2/stats"

// ErrUpstream marks affiliate API failures after retries are exhausted.
var ErrUpstream = errors.New("affiliate: upstream unavailable")

const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
	maxBackoff  = 15 * time.Second
	dateLayout  = "2006-01-02"
)

// Options parameterise the affiliate stats client.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	// RetryBase is the initial backoff delay between attempts. Defaults to 2s.
	RetryBase time.Duration
}

// Client fetches wager stats over HTTP with bounded retries.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an affiliate stats client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "affiliate_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchStats retrieves per-user stats for [start, end]. Transient failures
// (network errors, 5xx) are retried with exponential backoff; 4xx responses
// are terminal except the documented no-data case, which is an empty success.
func (c *Client) FetchStats(ctx context.Context, start, end time.Time, gameIDs ...string) ([]Entry, error) {
	if c.baseURL == "" {
		return nil, errors.New("affiliate base url not configured")
	}

	var lastErr error
	backoff := c.opts.RetryBase
	if backoff <= 0 {
		backoff = baseBackoff
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("retrying stats fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		entries, retry, err := c.fetchOnce(ctx, start, end, gameIDs)
		if err == nil {
			return entries, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, start, end time.Time, gameIDs []string) ([]Entry, bool, error) {
	query := url.Values{}
	query.Set("startDate", start.UTC().Format(dateLayout))
	query.Set("endDate", end.UTC().Format(dateLayout))
	if len(gameIDs) > 0 {
		query.Set("gameIdentifiers", strings.Join(gameIDs, ","))
	}

	endpoint := c.baseURL + statsPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode below
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("affiliate api error (%d): %s", resp.StatusCode, trimBody(payload))
	case isNoData(resp.StatusCode, payload):
		return []Entry{}, false, nil
	default:
		return nil, false, fmt.Errorf("affiliate api error (%d): %s", resp.StatusCode, trimBody(payload))
	}

	entries, ok := decodeEntries(payload)
	if !ok {
		// A partial API change must degrade to an empty window, not crash
		// every loop that reads the cache.
		c.logger.Warn().Int("bytes", len(payload)).Msg("unexpected stats payload shape, treating as empty")
		return []Entry{}, false, nil
	}
	return entries, false, nil
}

// isNoData reports whether a 4xx response is the documented empty-window
// case rather than a real client error.
func isNoData(status int, payload []byte) bool {
	if status != http.StatusNotFound {
		return false
	}
	if len(payload) == 0 {
		return true
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}
	return strings.EqualFold(body.Error, "no data") || strings.EqualFold(body.Error, "no data found")
}

type wireMultiplier struct {
	GameIdentifier string          `json:"gameIdentifier"`
	GameTitle      string          `json:"gameTitle"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	Wagered        decimal.Decimal `json:"wagered"`
	Payout         decimal.Decimal `json:"payout"`
}

type wireEntry struct {
	UID               string          `json:"uid"`
	Username          string          `json:"username"`
	Wagered           decimal.Decimal `json:"wagered"`
	WeightedWagered   decimal.Decimal `json:"weightedWagered"`
	HighestMultiplier *wireMultiplier `json:"highestMultiplier"`
}

// decodeEntries accepts either a bare JSON array or a {"data":[...]} envelope.
func decodeEntries(payload []byte) ([]Entry, bool) {
	var raw []wireEntry
	if err := json.Unmarshal(payload, &raw); err != nil {
		var envelope struct {
			Data []wireEntry `json:"data"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Data == nil {
			return nil, false
		}
		raw = envelope.Data
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		entry := Entry{
			UID:             e.UID,
			Username:        e.Username,
			Wagered:         e.Wagered,
			WeightedWagered: e.WeightedWagered,
		}
		if e.HighestMultiplier != nil {
			entry.HighestMultiplier = &HighestMultiplier{
				GameID:     e.HighestMultiplier.GameIdentifier,
				GameTitle:  e.HighestMultiplier.GameTitle,
				Multiplier: e.HighestMultiplier.Multiplier,
				Bet:        e.HighestMultiplier.Wagered,
				Payout:     e.HighestMultiplier.Payout,
			}
		}
		entries = append(entries, entry)
	}
	return entries, true
}

func trimBody(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

var _ StatsFetcher = (*Client)(nil)
