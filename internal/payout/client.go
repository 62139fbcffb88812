package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const tipPath = "/user/tip"

// ErrRejected marks a terminal rejection: the tip was not delivered and
// will not be retried by this client.
var ErrRejected = errors.New("payout: tip rejected")

const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
	maxBackoff  = 15 * time.Second
)

// Options parameterise the payout client.
type Options struct {
	BaseURL     string
	APIKey      string
	SenderID    string
	Timeout     time.Duration
	ShowInChat  bool
	BalanceType string
	// RetryBase is the initial backoff delay after a 429. Defaults to 2s.
	RetryBase time.Duration
}

// Client issues tips over HTTP. Only rate-limit responses are retried;
// every other failure is terminal for the obligation being dispatched.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	lastNonce atomic.Int64
}

// NewClient constructs a payout client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.BalanceType == "" {
		opts.BalanceType = "cash"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "payout_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type tipRequest struct {
	UserID      string `json:"userId"`
	ToUserName  string `json:"toUserName"`
	ToUserID    string `json:"toUserId"`
	Amount      string `json:"amount"`
	ShowInChat  bool   `json:"showInChat"`
	BalanceType string `json:"balanceType"`
	Nonce       int64  `json:"nonce"`
}

type tipResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendTip delivers one tip. A 429 is retried with exponential backoff up to
// three attempts; any other non-200 status or success=false body is terminal.
func (c *Client) SendTip(ctx context.Context, tip Tip) error {
	if c.baseURL == "" {
		return errors.New("payout base url not configured")
	}
	if tip.ToUserID == "" {
		return errors.New("tip recipient id required")
	}
	if !tip.Amount.IsPositive() {
		return fmt.Errorf("tip amount must be positive, got %s", tip.Amount)
	}

	payload := tipRequest{
		UserID:      c.opts.SenderID,
		ToUserName:  tip.ToUserName,
		ToUserID:    tip.ToUserID,
		Amount:      tip.Amount.String(),
		ShowInChat:  c.opts.ShowInChat,
		BalanceType: c.opts.BalanceType,
		Nonce:       c.nextNonce(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tip payload: %w", err)
	}

	var lastErr error
	backoff := c.opts.RetryBase
	if backoff <= 0 {
		backoff = baseBackoff
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Str("to", tip.ToUserID).Msg("payout rate limited, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		retry, err := c.sendOnce(ctx, body)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrRejected, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tipPath, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: read response: %v", ErrRejected, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, fmt.Errorf("payout api rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, trimBody(payload))
	}

	var result tipResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrRejected, err)
	}
	if !result.Success {
		return false, fmt.Errorf("%w: %s", ErrRejected, result.Message)
	}
	return false, nil
}

// nextNonce returns a timestamp-derived value that strictly increases even
// when two sends land on the same clock reading.
func (c *Client) nextNonce() int64 {
	for {
		now := time.Now().UnixMilli()
		last := c.lastNonce.Load()
		if now <= last {
			now = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, now) {
			return now
		}
	}
}

func trimBody(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

var _ Sender = (*Client)(nil)
