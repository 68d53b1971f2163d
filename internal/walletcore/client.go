// Package walletcore talks to the local wallet-core daemon over its HTTP
// RPC. It backs the signing pipeline with real signer, confirmation and
// fee-estimation implementations.
package walletcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/signing"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

// DefaultPollInterval is how often WaitSeqno asks the daemon whether the
// wallet's sequence number has advanced.
const DefaultPollInterval = 2 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string

	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration
}

var (
	_ signing.HardwareSigner = (*Client)(nil)
	_ signing.SeqnoWaiter    = (*Client)(nil)
	_ signing.KeySigner      = (*Client)(nil)
	_ signing.Estimator      = (*Client)(nil)
)

// NewClient validates the endpoint and builds an HTTP client for it.
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("wallet-core base URL is empty")
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}, nil
}

// ===== wire types =====

type signSendRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount,string"`
	Payload string `json:"payload,omitempty"`
	StateIn string `json:"state_init,omitempty"`
}

type signSendResponse struct {
	Seqno uint32 `json:"seqno"`
}

type lastPayloadResponse struct {
	Payload string `json:"payload"`
}

type seqnoResponse struct {
	Seqno uint32 `json:"seqno"`
}

type signBatchRequest struct {
	Origin     string               `json:"origin"`
	Messages   []tonconnect.Message `json:"messages"`
	ValidUntil int64                `json:"valid_until,omitempty"`
}

type signBatchResponse struct {
	Payload string `json:"payload"`
}

type estimateRequest struct {
	Messages []tonconnect.Message `json:"messages"`
}

// ===== signing.HardwareSigner =====

// SignAndSend wraps POST /wallet/sign-send: the device signs one message
// and broadcasts it, returning the seqno the broadcast was made at.
func (c *Client) SignAndSend(ctx context.Context, msg tonconnect.Message) (uint32, error) {
	reqBody := signSendRequest{
		Address: msg.Address,
		Amount:  msg.Amount,
		Payload: msg.Payload,
		StateIn: msg.StateIn,
	}
	var out signSendResponse
	if err := c.postJSON(ctx, "/wallet/sign-send", reqBody, &out); err != nil {
		return 0, fmt.Errorf("signAndSend: %w", err)
	}
	return out.Seqno, nil
}

// FetchLastPayload wraps GET /wallet/last-payload, the device's most
// recently produced signed blob.
func (c *Client) FetchLastPayload(ctx context.Context) (string, error) {
	var out lastPayloadResponse
	if err := c.getJSON(ctx, "/wallet/last-payload", &out); err != nil {
		return "", fmt.Errorf("fetchLastPayload: %w", err)
	}
	return out.Payload, nil
}

// ===== signing.SeqnoWaiter =====

// Wait polls GET /wallet/seqno until the wallet's sequence number has
// advanced past seqno, or ctx ends.
func (c *Client) Wait(ctx context.Context, seqno uint32) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var out seqnoResponse
		err := c.getJSON(ctx, "/wallet/seqno", &out)
		if err == nil && out.Seqno > seqno {
			return nil
		}
		// Transient fetch errors are retried until the deadline.

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ===== signing.KeySigner =====

// SignAndSendBatch wraps POST /wallet/sign-batch: every message is
// combined into one transaction and submitted atomically.
func (c *Client) SignAndSendBatch(ctx context.Context, payload tonconnect.TransactionPayload, origin string) (string, error) {
	reqBody := signBatchRequest{
		Origin:     origin,
		Messages:   payload.Messages,
		ValidUntil: payload.ValidUntil,
	}
	var out signBatchResponse
	if err := c.postJSON(ctx, "/wallet/sign-batch", reqBody, &out); err != nil {
		return "", fmt.Errorf("signAndSendBatch: %w", err)
	}
	return out.Payload, nil
}

// ===== signing.Estimator =====

// Estimate wraps POST /wallet/estimate-fees.
func (c *Client) Estimate(ctx context.Context, payload tonconnect.TransactionPayload) (*signing.Fees, error) {
	reqBody := estimateRequest{Messages: payload.Messages}
	var out signing.Fees
	if err := c.postJSON(ctx, "/wallet/estimate-fees", reqBody, &out); err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}
	return &out, nil
}

// ===== transport helpers =====

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, _ := json.Marshal(in)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", req.URL.Path, resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
