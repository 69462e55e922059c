package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// Client posts alerts as JSON to an operator-supplied endpoint, for wiring
// into Slack bridges, ntfy, or home-grown receivers.
type Client struct {
	url  string
	http *http.Client
	log  *logger.Logger
}

// NewClient creates a webhook client for the given endpoint URL
func NewClient(url string, log *logger.Logger) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.With("channel", "webhook"),
	}
}

// Name identifies the channel
func (c *Client) Name() string { return "webhook" }

type suggestedBody struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type alertBody struct {
	AlertID       string         `json:"alertId"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	ActivityID    int64          `json:"activityId,omitempty"`
	TargetName    string         `json:"targetName"`
	TargetKey     string         `json:"targetUserkey"`
	TargetAddress string         `json:"targetAddress,omitempty"`
	AuthorName    string         `json:"authorName,omitempty"`
	AuthorKey     string         `json:"authorUserkey,omitempty"`
	AuthorAddress string         `json:"authorAddress,omitempty"`
	Score         int            `json:"score"`
	Comment       string         `json:"comment,omitempty"`
	ProfileURL    string         `json:"profileUrl"`
	DashboardURL  string         `json:"dashboardUrl,omitempty"`
	TriageNote    string         `json:"triageNote,omitempty"`
	Suggested     *suggestedBody `json:"suggestedDefense,omitempty"`
	SentAt        time.Time      `json:"sentAt"`
}

// SendAlert posts the alert payload. The receiver may answer with
// {"id": "..."} to name the delivery; otherwise a uuid stands in so the
// stored alert row always has a message id.
func (c *Client) SendAlert(ctx context.Context, alertID string, p *domain.AlertPayload) (string, error) {
	body := alertBody{
		AlertID:       alertID,
		Type:          p.Type,
		Title:         p.Title(),
		ActivityID:    p.ActivityID,
		TargetName:    p.TargetName,
		TargetKey:     p.TargetKey,
		TargetAddress: p.TargetAddress,
		AuthorName:    p.AuthorName,
		AuthorKey:     p.AuthorKey,
		AuthorAddress: p.AuthorAddress,
		Score:         p.Score,
		Comment:       p.Comment,
		ProfileURL:    p.ProfileURL,
		DashboardURL:  p.DashboardURL,
		TriageNote:    p.TriageNote,
		SentAt:        time.Now(),
	}
	if p.Suggested != nil {
		body.Suggested = &suggestedBody{Score: p.Suggested.Score, Comment: p.Suggested.Comment}
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var ack struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&ack); err == nil && ack.ID != "" {
		return ack.ID, nil
	}
	return uuid.NewString(), nil
}

// SendText posts a plain operational notice
func (c *Client) SendText(ctx context.Context, text string) error {
	resp, err := c.post(ctx, map[string]string{"text": text})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, payload interface{}) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp, nil
}
