package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client for the VouchGuard dashboard API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new VouchGuard API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Cycle is one monitoring cycle result
type Cycle struct {
	ID                   int64    `json:"id"`
	RelationshipsChecked int      `json:"relationships_checked"`
	ActivitiesFound      int      `json:"activities_found"`
	NewNegative          int      `json:"new_negative"`
	AlertsSent           int      `json:"alerts_sent"`
	Errors               []string `json:"errors"`
	DurationMs           int64    `json:"duration_ms"`
	RanAt                string   `json:"ran_at"`
}

// CycleStatus is the scheduler state plus the most recent cycle
type CycleStatus struct {
	Running         bool   `json:"running"`
	IntervalMinutes int    `json:"interval_minutes"`
	LastCycle       *Cycle `json:"last_cycle"`
}

// Alert is one recorded alert
type Alert struct {
	ID          string `json:"id"`
	ActivityID  int64  `json:"activity_id"`
	Type        string `json:"type"`
	Channel     string `json:"channel"`
	Status      string `json:"status"`
	MessageID   string `json:"message_id"`
	SentAt      string `json:"sent_at"`
	RespondedAt string `json:"responded_at,omitempty"`
}

// Defense is one counter-review record
type Defense struct {
	ID         int64  `json:"id"`
	ActivityID int64  `json:"activity_id"`
	TargetKey  string `json:"target_userkey"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
	Status     string `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
	TxRef      string `json:"tx_ref,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// DefenseResult is a defense row plus the posting error, if any
type DefenseResult struct {
	Defense Defense `json:"defense"`
	Error   string  `json:"error,omitempty"`
}

// CredentialStatus is the session token state; it never carries the token
type CredentialStatus struct {
	Configured     bool   `json:"configured"`
	Valid          bool   `json:"valid"`
	IsExpired      bool   `json:"is_expired"`
	IsExpiringSoon bool   `json:"is_expiring_soon"`
	ExpiresAt      string `json:"expires_at"`
	SecondsLeft    int64  `json:"seconds_left"`
	Subject        string `json:"subject"`
	SessionID      string `json:"session_id"`
}

// ============ Cycle Operations ============

// TriggerCycle runs one monitoring cycle immediately
func (c *Client) TriggerCycle() (*Cycle, error) {
	var cycle Cycle
	if err := c.post("/api/cycle/trigger", nil, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

// GetCycleStatus gets the scheduler state and the last cycle result
func (c *Client) GetCycleStatus() (*CycleStatus, error) {
	var status CycleStatus
	if err := c.get("/api/cycle/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ============ Alert Operations ============

// GetAlerts lists alerts, optionally filtered by status
func (c *Client) GetAlerts(status string, limit int) ([]Alert, error) {
	var result struct {
		Alerts []Alert `json:"alerts"`
	}
	path := fmt.Sprintf("/api/alerts?limit=%d", limit)
	if status != "" {
		path += "&status=" + url.QueryEscape(status)
	}
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return result.Alerts, nil
}

// UpdateAlertStatus moves an alert to a terminal status
func (c *Client) UpdateAlertStatus(alertID, status string) (*Alert, error) {
	var alert Alert
	body := map[string]string{"status": status}
	path := fmt.Sprintf("/api/alerts/%s/status", url.PathEscape(alertID))
	if err := c.post(path, body, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ============ Defense Operations ============

// ExecuteDefense posts the suggested counter-review for an alert
func (c *Client) ExecuteDefense(alertID string, activityID int64) (*DefenseResult, error) {
	var result DefenseResult
	body := map[string]interface{}{"alert_id": alertID, "activity_id": activityID}
	if err := c.post("/api/defense/execute", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PostCustomDefense posts an operator-authored counter-review
func (c *Client) PostCustomDefense(targetUserkey string, score int, comment string, activityID int64) (*DefenseResult, error) {
	var result DefenseResult
	body := map[string]interface{}{
		"target_userkey": targetUserkey,
		"score":          score,
		"comment":        comment,
		"activity_id":    activityID,
	}
	if err := c.post("/api/defense/custom", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ============ Credential Operations ============

// GetCredentialStatus gets the session token state
func (c *Client) GetCredentialStatus() (*CredentialStatus, error) {
	var status CredentialStatus
	if err := c.get("/api/credential/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// UpdateCredential swaps in a new session token
func (c *Client) UpdateCredential(token string) (*CredentialStatus, error) {
	var status CredentialStatus
	body := map[string]string{"token": token}
	if err := c.put("/api/credential", body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	return c.send(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body interface{}, result interface{}) error {
	return c.send(http.MethodPut, path, body, result)
}

func (c *Client) send(method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
