package brokerage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/metrics"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the SnapTrade production API
const DefaultBaseURL = "https://api.snaptrade.com"

const maxAttempts = 3

// SnapTradeConfig holds the partner and user credentials of the SnapTrade API
type SnapTradeConfig struct {
	ClientID    string
	ConsumerKey string
	UserID      string
	UserSecret  string
	BaseURL     string
	Timeout     time.Duration
}

// Client talks to the SnapTrade REST API. Every request carries the partner
// client id, a timestamp and the user credentials in its query, and is signed
// with the consumer key.
type Client struct {
	cfg        SnapTradeConfig
	http       *http.Client
	now        func() time.Time
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

func NewClient(cfg SnapTradeConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		newBackOff: defaultBackOff,
		logger:     log.With().Str("component", "snaptrade").Logger(),
	}
}

func defaultBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff()
}

func (c *Client) ListAccounts(ctx context.Context) ([]types.Account, error) {
	var accounts []types.Account
	if err := c.get(ctx, "list_accounts", "/api/v1/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) GetHoldings(ctx context.Context, accountID string) (*types.Holdings, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: empty account id", types.ErrValidation)
	}

	var holdings types.Holdings
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/holdings"
	if err := c.get(ctx, "get_holdings", path, &holdings); err != nil {
		return nil, err
	}
	return &holdings, nil
}

// statusError is a non-2xx answer. 5xx answers are retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("snaptrade: HTTP %d: %s", e.code, e.body)
}

func (c *Client) get(ctx context.Context, operation, path string, out interface{}) error {
	if c.cfg.ClientID == "" || c.cfg.ConsumerKey == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		body, err := c.do(ctx, path)
		if err != nil {
			var se *statusError
			if ctx.Err() != nil || (errors.As(err, &se) && se.code < 500) {
				return nil, backoff.Permanent(err)
			}
			c.logger.Warn().Err(err).Str("path", path).Msg("snaptrade request failed, retrying")
		}
		return body, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("snaptrade: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	query := url.Values{}
	query.Set("clientId", c.cfg.ClientID)
	query.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	query.Set("userId", c.cfg.UserID)
	query.Set("userSecret", c.cfg.UserSecret)
	encoded := query.Encode()

	signature, err := Sign(c.cfg.ConsumerKey, path, encoded, nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+path+"?"+encoded, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Signature", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}
	return body, nil
}

// Sign computes the request signature: the base64 HMAC-SHA256, keyed with the
// consumer key, of the compact JSON object {"content","path","query"}.
func Sign(consumerKey, path, query string, content interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(struct {
		Content interface{} `json:"content"`
		Path    string      `json:"path"`
		Query   string      `json:"query"`
	}{content, path, query})
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(consumerKey))
	mac.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
