package ethos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

const (
	// DefaultBaseURL is the public trust-network API endpoint
	DefaultBaseURL = "https://api.ethos.network"

	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// APIError is a non-2xx response from the network, with a body excerpt
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ethos api status=%d body=%q", e.Status, e.Body)
}

// Client talks to the Ethos REST API. The bearer token can be swapped at
// runtime while requests are in flight.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger

	mu    sync.RWMutex
	token string
}

// NewClient builds a client for the given API base URL; empty means the
// public endpoint.
func NewClient(baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.With("component", "ethos"),
	}
}

// SetToken swaps the bearer credential used for subsequent calls
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// VouchesByVoucher lists active vouches placed by the given identity
func (c *Client) VouchesByVoucher(ctx context.Context, userkey string) ([]repo.VouchInfo, error) {
	q := url.Values{}
	q.Set("voucherUserkey", userkey)
	q.Set("archived", "false")
	q.Set("limit", "200")

	var out struct {
		Values []repo.VouchInfo `json:"values"`
		Total  int              `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/vouches?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list vouches: %w", err)
	}
	return out.Values, nil
}

// ReceivedActivities lists activities of the given kinds received by a counterparty
func (c *Client) ReceivedActivities(ctx context.Context, userkey string, kinds []string, limit, offset int) ([]repo.RawActivity, error) {
	in := map[string]interface{}{
		"userkey": userkey,
		"filter":  kinds,
		"orderBy": map[string]string{"field": "timestamp", "direction": "desc"},
		"limit":   limit,
		"offset":  offset,
	}

	var out struct {
		Values []repo.RawActivity `json:"values"`
		Total  int                `json:"total"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v2/activities/profile/received", in, &out); err != nil {
		return nil, fmt.Errorf("failed to list received activities: %w", err)
	}
	return out.Values, nil
}

// Profile looks up a profile by userkey; returns domain.ErrNotFound when absent
func (c *Client) Profile(ctx context.Context, userkey string) (*repo.ProfileInfo, error) {
	var out repo.ProfileInfo
	err := c.do(ctx, http.MethodGet, "/api/v2/users/"+url.PathEscape(userkey), nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("profile %s: %w", userkey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return &out, nil
}

// Score looks up the current reputation score
func (c *Client) Score(ctx context.Context, userkey string) (int, error) {
	var out struct {
		Score int `json:"score"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/score/"+url.PathEscape(userkey), nil, &out); err != nil {
		return 0, fmt.Errorf("failed to fetch score: %w", err)
	}
	return out.Score, nil
}

// SubmitReview posts a review about the target. Requires a valid session token.
func (c *Client) SubmitReview(ctx context.Context, targetKey string, score int, comment string) (*repo.ReviewReceipt, error) {
	in := map[string]interface{}{
		"subjectUserkey": targetKey,
		"score":          score,
		"comment":        comment,
	}

	var out repo.ReviewReceipt
	if err := c.do(ctx, http.MethodPost, "/api/v2/reviews", in, &out); err != nil {
		return nil, fmt.Errorf("failed to submit review: %w", err)
	}
	c.log.Info("review submitted", "target", targetKey, "review_id", out.ReviewID)
	return &out, nil
}

// Health probes API reachability
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.do(ctx, http.MethodGet, "/api/v2/health", nil, nil)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn("ethos api error", "method", method, "path", path, "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
