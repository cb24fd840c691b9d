package keeper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"go.uber.org/zap"
)

// Client is an HTTP target for a running marketplace service.
type Client struct {
	baseURL    string
	caller     common.Address
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, caller common.Address, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  caller,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type dueResponse struct {
	Orders   []string `json:"orders"`
	Listings []string `json:"listings"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Code     string `json:"code"`
	EntityID string `json:"entity_id"`
}

// Ping checks the service's readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ready", nil, nil)
}

// Due fetches the service's due orders and expired listings.
func (c *Client) Due(ctx context.Context) (*Due, error) {
	var resp dueResponse
	err := c.do(ctx, http.MethodGet, "/api/keeper/due", nil, &resp)
	if err != nil {
		return nil, err
	}

	due := &Due{}
	for _, id := range resp.Orders {
		due.Orders = append(due.Orders, common.HexToHash(id))
	}
	for _, id := range resp.Listings {
		due.Listings = append(due.Listings, common.HexToHash(id))
	}
	return due, nil
}

// SettleExpired posts a settle-expired request for orderID.
func (c *Client) SettleExpired(ctx context.Context, orderID common.Hash) error {
	return c.do(ctx, http.MethodPost, "/api/orders/"+orderID.Hex()+"/settle-expired",
		map[string]string{"caller": c.caller.Hex()}, nil)
}

// ExpireListing posts an expire request for listingID.
func (c *Client) ExpireListing(ctx context.Context, listingID common.Hash) error {
	return c.do(ctx, http.MethodPost, "/api/listings/"+listingID.Hex()+"/expire",
		map[string]string{"caller": c.caller.Hex()}, nil)
}

// do sends a JSON request. API rejections come back as *escrow.Error so
// callers can match them with errors.Is.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "reservation-escrow-keeper/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("keeper-request", zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Kind != "" {
			return &escrow.Error{
				Kind:     escrow.Kind(apiErr.Kind),
				Code:     escrow.Code(apiErr.Code),
				EntityID: apiErr.EntityID,
				Message:  apiErr.Error,
			}
		}
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
