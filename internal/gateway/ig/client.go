// Package ig implements the dealing gateway against an IG-style REST API:
// session login with CST/security tokens, OTC market positions with a
// guaranteed stop, and account equity lookup.
package ig

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"zonebreak/internal/config"
	"zonebreak/internal/gateway"
	"zonebreak/internal/logger"
	"zonebreak/internal/pkg/circuit"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	breakerThreshold = 5
	breakerTimeout   = time.Minute
	confirmRetries   = 3
	confirmDelay     = 300 * time.Millisecond

	liveAPIURL = "https://api.ig.com/gateway/deal"
	demoAPIURL = "https://demo-api.ig.com/gateway/deal"
)

type Client struct {
	http    *resty.Client
	cfg     config.IGConfig
	breaker *circuit.CircuitBreaker

	mu            sync.Mutex
	cst           string
	securityToken string
}

func New(cfg config.IGConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	http := resty.New().
		SetBaseURL(baseURL(cfg)).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetHeader("Accept", "application/json; charset=UTF-8").
		SetHeader("X-IG-API-KEY", cfg.APIKey)
	return &Client{
		http:    http,
		cfg:     cfg,
		breaker: circuit.NewCircuitBreaker("ig", breakerThreshold, breakerTimeout),
	}
}

// baseURL prefers an explicit api_url; otherwise the demo flag picks
// between the stock endpoints.
func baseURL(cfg config.IGConfig) string {
	if url := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); url != "" {
		return url
	}
	if cfg.Demo {
		return demoAPIURL
	}
	return liveAPIURL
}

// ensureSession logs in when no tokens are held. IG returns the session
// tokens in response headers.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cst != "" && c.securityToken != "" {
		return nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"identifier": c.cfg.Identifier,
			"password":   c.cfg.Password,
		}).
		Post("/session")
	if err != nil {
		return fmt.Errorf("ig login failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ig login rejected: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	c.cst = resp.Header().Get("CST")
	c.securityToken = resp.Header().Get("X-SECURITY-TOKEN")
	if c.cst == "" || c.securityToken == "" {
		return fmt.Errorf("ig login response missing session tokens")
	}
	logger.Infof("ig session established for %s", c.cfg.Identifier)
	return nil
}

func (c *Client) dropSession() {
	c.mu.Lock()
	c.cst = ""
	c.securityToken = ""
	c.mu.Unlock()
}

func (c *Client) authed(ctx context.Context) (*resty.Request, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	cst, token := c.cst, c.securityToken
	c.mu.Unlock()
	return c.http.R().
		SetContext(ctx).
		SetHeader("CST", cst).
		SetHeader("X-SECURITY-TOKEN", token), nil
}

// PlaceOrder opens an OTC market position with a guaranteed stop and
// confirms the fill through the deal-confirms endpoint.
func (c *Client) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	if !c.breaker.Allow() {
		return gateway.OrderResult{}, fmt.Errorf("ig circuit open, order rejected locally")
	}
	r, err := c.authed(ctx)
	if err != nil {
		c.breaker.RecordFailure()
		return gateway.OrderResult{}, err
	}
	resp, err := r.
		SetHeader("Version", "2").
		SetBody(map[string]any{
			"epic":           c.cfg.Epic,
			"expiry":         "-",
			"direction":      req.Direction,
			"size":           req.Size,
			"orderType":      "MARKET",
			"guaranteedStop": true,
			"stopDistance":   req.StopDistance,
			"forceOpen":      true,
		}).
		Post("/positions/otc")
	if err != nil {
		c.breaker.RecordFailure()
		return gateway.OrderResult{}, fmt.Errorf("ig place order failed: %w", err)
	}
	if resp.StatusCode() == 401 {
		c.dropSession()
	}
	if resp.IsError() {
		c.breaker.RecordFailure()
		return gateway.OrderResult{}, fmt.Errorf("ig place order rejected: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	dealRef := gjson.GetBytes(resp.Body(), "dealReference").String()
	if dealRef == "" {
		c.breaker.RecordFailure()
		return gateway.OrderResult{}, fmt.Errorf("ig place order response missing dealReference")
	}
	result, err := c.confirm(ctx, dealRef)
	if err != nil {
		c.breaker.RecordFailure()
		return gateway.OrderResult{}, err
	}
	c.breaker.RecordSuccess()
	return result, nil
}

// confirm polls the deal confirmation until the broker reports a terminal
// status.
func (c *Client) confirm(ctx context.Context, dealRef string) (gateway.OrderResult, error) {
	var lastBody string
	for attempt := 0; attempt < confirmRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return gateway.OrderResult{}, ctx.Err()
			case <-time.After(confirmDelay):
			}
		}
		r, err := c.authed(ctx)
		if err != nil {
			return gateway.OrderResult{}, err
		}
		resp, err := r.Get("/confirms/" + dealRef)
		if err != nil {
			return gateway.OrderResult{}, fmt.Errorf("ig confirm failed: %w", err)
		}
		lastBody = resp.String()
		doc := gjson.ParseBytes(resp.Body())
		switch doc.Get("dealStatus").String() {
		case "ACCEPTED":
			return gateway.OrderResult{
				DealID:    doc.Get("dealId").String(),
				FillPrice: doc.Get("level").Float(),
			}, nil
		case "REJECTED":
			return gateway.OrderResult{}, fmt.Errorf("ig deal rejected: %s", doc.Get("reason").String())
		}
	}
	return gateway.OrderResult{}, fmt.Errorf("ig confirm still pending after %d attempts: %s", confirmRetries, lastBody)
}

// CloseOrder closes a position with an opposite-direction OTC deal. IG uses
// a method override on POST for position deletion.
func (c *Client) CloseOrder(ctx context.Context, dealID string, direction string, size float64) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("ig circuit open, close rejected locally")
	}
	r, err := c.authed(ctx)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	opposite := "SELL"
	if direction == "SELL" {
		opposite = "BUY"
	}
	resp, err := r.
		SetHeader("Version", "1").
		SetHeader("_method", "DELETE").
		SetBody(map[string]any{
			"dealId":    dealID,
			"direction": opposite,
			"size":      size,
			"orderType": "MARKET",
		}).
		Post("/positions/otc")
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("ig close failed: %w", err)
	}
	if resp.StatusCode() == 401 {
		c.dropSession()
	}
	if resp.IsError() {
		c.breaker.RecordFailure()
		return fmt.Errorf("ig close rejected: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	c.breaker.RecordSuccess()
	return nil
}

// Equity reads the configured account's balance.
func (c *Client) Equity(ctx context.Context) (float64, error) {
	if !c.breaker.Allow() {
		return 0, fmt.Errorf("ig circuit open, equity lookup rejected locally")
	}
	r, err := c.authed(ctx)
	if err != nil {
		c.breaker.RecordFailure()
		return 0, err
	}
	resp, err := r.Get("/accounts")
	if err != nil {
		c.breaker.RecordFailure()
		return 0, fmt.Errorf("ig accounts failed: %w", err)
	}
	if resp.StatusCode() == 401 {
		c.dropSession()
	}
	if resp.IsError() {
		c.breaker.RecordFailure()
		return 0, fmt.Errorf("ig accounts rejected: status=%d", resp.StatusCode())
	}
	var equity float64
	found := false
	gjson.GetBytes(resp.Body(), "accounts").ForEach(func(_, acct gjson.Result) bool {
		if c.cfg.AccountID != "" && acct.Get("accountId").String() != c.cfg.AccountID {
			return true
		}
		equity = acct.Get("balance.balance").Float() + acct.Get("balance.profitLoss").Float()
		found = true
		return false
	})
	if !found {
		c.breaker.RecordFailure()
		return 0, fmt.Errorf("ig account %s not found", c.cfg.AccountID)
	}
	c.breaker.RecordSuccess()
	return equity, nil
}

var (
	_ gateway.Dealer  = (*Client)(nil)
	_ gateway.Account = (*Client)(nil)
)
