package auctionapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	model "aarath-auction/internal/models"

	json "github.com/goccy/go-json"
)

// ActiveAuctionsPath is the REST route listing running auctions
const ActiveAuctionsPath = "/auctions/active"

// Client reads auctions from the marketplace REST backend
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient uses a client with a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ListActiveAuctions fetches the running auctions. The backend answers either with a
// bare array or with an envelope {"data": [...]}.
func (c *Client) ListActiveAuctions(ctx context.Context) ([]model.AuctionPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ActiveAuctionsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("auctionapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auctionapi: list active auctions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("auctionapi: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auctionapi: list active auctions: unexpected status %d", resp.StatusCode)
	}
	return decodeAuctions(body)
}

func decodeAuctions(body []byte) ([]model.AuctionPayload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var auctions []model.AuctionPayload
	if body[0] == '[' {
		if err := json.Unmarshal(body, &auctions); err != nil {
			return nil, fmt.Errorf("auctionapi: decode auctions: %w", err)
		}
		return auctions, nil
	}

	var envelope struct {
		Data []model.AuctionPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("auctionapi: decode auctions: %w", err)
	}
	return envelope.Data, nil
}
