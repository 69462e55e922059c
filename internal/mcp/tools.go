package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes VouchGuard operations as MCP tools over stdio.
// Every tool is a thin wrapper around the dashboard HTTP API, so the
// agent sees exactly what the dashboard sees.
type Server struct {
	server *mcp.Server
	client *Client
}

// NewServer creates the MCP server and registers all tools
func NewServer(client *Client) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "vouchguard",
			Version: "v1.0.0",
		}, nil),
		client: client,
	}
	s.registerTools()
	return s
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_trigger_cycle",
		Description: "Run one monitoring cycle immediately. Scans all vouched relationships for new negative reviews, slashes and unvouches, and raises alerts for anything new.",
	}, s.handleTriggerCycle)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_cycle_status",
		Description: "Check whether a cycle is running right now, the configured interval, and the result of the most recent cycle.",
	}, s.handleCycleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_list_alerts",
		Description: "List recorded alerts, optionally filtered by status (PENDING, CONFIRMED, IGNORED, EXPIRED).",
	}, s.handleListAlerts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_ignore_alert",
		Description: "Dismiss a pending alert without posting a defense. Use when the flagged event does not need a response.",
	}, s.handleIgnoreAlert)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_execute_defense",
		Description: "Post the suggested counter-review for an alert. The review is published on the trust network under the operator's identity.",
	}, s.handleExecuteDefense)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_post_custom_defense",
		Description: "Post a counter-review with custom score and comment instead of the suggested one.",
	}, s.handlePostCustomDefense)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_credential_status",
		Description: "Check the operator session token: whether it is configured, valid, expiring soon or expired. Defenses cannot be posted with an expired token.",
	}, s.handleCredentialStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vouchguard_update_credential",
		Description: "Replace the operator session token with a freshly issued one. Use after the current token expires.",
	}, s.handleUpdateCredential)
}

// TriggerCycleInput is empty, the cycle needs no parameters
type TriggerCycleInput struct{}

// TriggerCycleOutput is the cycle result or the rejection reason
type TriggerCycleOutput struct {
	Cycle *Cycle `json:"cycle,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleTriggerCycle(ctx context.Context, req *mcp.CallToolRequest, input TriggerCycleInput) (*mcp.CallToolResult, TriggerCycleOutput, error) {
	cycle, err := s.client.TriggerCycle()
	if err != nil {
		return nil, TriggerCycleOutput{Error: err.Error()}, nil
	}
	return nil, TriggerCycleOutput{Cycle: cycle}, nil
}

// CycleStatusInput is empty
type CycleStatusInput struct{}

// CycleStatusOutput reports the scheduler state
type CycleStatusOutput struct {
	Running         bool   `json:"running"`
	IntervalMinutes int    `json:"interval_minutes"`
	LastCycle       *Cycle `json:"last_cycle,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleCycleStatus(ctx context.Context, req *mcp.CallToolRequest, input CycleStatusInput) (*mcp.CallToolResult, CycleStatusOutput, error) {
	status, err := s.client.GetCycleStatus()
	if err != nil {
		return nil, CycleStatusOutput{Error: err.Error()}, nil
	}
	return nil, CycleStatusOutput{
		Running:         status.Running,
		IntervalMinutes: status.IntervalMinutes,
		LastCycle:       status.LastCycle,
	}, nil
}

// ListAlertsInput filters the alert listing
type ListAlertsInput struct {
	Status string `json:"status,omitempty" jsonschema:"description=Filter by status: PENDING, CONFIRMED, IGNORED or EXPIRED. Empty returns all."`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of alerts to return (default 20)"`
}

// ListAlertsOutput is the alert listing
type ListAlertsOutput struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
	Error  string  `json:"error,omitempty"`
}

func (s *Server) handleListAlerts(ctx context.Context, req *mcp.CallToolRequest, input ListAlertsInput) (*mcp.CallToolResult, ListAlertsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	alerts, err := s.client.GetAlerts(input.Status, limit)
	if err != nil {
		return nil, ListAlertsOutput{Error: err.Error()}, nil
	}
	return nil, ListAlertsOutput{Alerts: alerts, Count: len(alerts)}, nil
}

// IgnoreAlertInput names the alert to dismiss
type IgnoreAlertInput struct {
	AlertID string `json:"alert_id" jsonschema:"description=The id of the alert to ignore"`
}

// IgnoreAlertOutput is the updated alert
type IgnoreAlertOutput struct {
	Alert *Alert `json:"alert,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleIgnoreAlert(ctx context.Context, req *mcp.CallToolRequest, input IgnoreAlertInput) (*mcp.CallToolResult, IgnoreAlertOutput, error) {
	if input.AlertID == "" {
		return nil, IgnoreAlertOutput{Error: "alert_id is required"}, nil
	}
	alert, err := s.client.UpdateAlertStatus(input.AlertID, "IGNORED")
	if err != nil {
		return nil, IgnoreAlertOutput{Error: err.Error()}, nil
	}
	return nil, IgnoreAlertOutput{Alert: alert}, nil
}

// ExecuteDefenseInput names the alert whose suggested defense should be posted
type ExecuteDefenseInput struct {
	AlertID    string `json:"alert_id" jsonschema:"description=The id of the alert being answered"`
	ActivityID int64  `json:"activity_id" jsonschema:"description=The id of the negative activity the defense responds to"`
}

// ExecuteDefenseOutput is the resulting defense record
type ExecuteDefenseOutput struct {
	Defense *Defense `json:"defense,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) handleExecuteDefense(ctx context.Context, req *mcp.CallToolRequest, input ExecuteDefenseInput) (*mcp.CallToolResult, ExecuteDefenseOutput, error) {
	if input.AlertID == "" || input.ActivityID == 0 {
		return nil, ExecuteDefenseOutput{Error: "alert_id and activity_id are required"}, nil
	}
	result, err := s.client.ExecuteDefense(input.AlertID, input.ActivityID)
	if err != nil {
		return nil, ExecuteDefenseOutput{Error: err.Error()}, nil
	}
	return nil, ExecuteDefenseOutput{Defense: &result.Defense, Error: result.Error}, nil
}

// PostCustomDefenseInput is an operator-authored counter-review
type PostCustomDefenseInput struct {
	TargetUserkey string `json:"target_userkey" jsonschema:"description=Userkey of the profile the review is posted about"`
	Score         int    `json:"score" jsonschema:"description=Review score, typically positive to counter a negative event"`
	Comment       string `json:"comment" jsonschema:"description=The review text"`
	ActivityID    int64  `json:"activity_id,omitempty" jsonschema:"description=Optional id of the activity this responds to"`
}

// PostCustomDefenseOutput is the resulting defense record
type PostCustomDefenseOutput struct {
	Defense *Defense `json:"defense,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) handlePostCustomDefense(ctx context.Context, req *mcp.CallToolRequest, input PostCustomDefenseInput) (*mcp.CallToolResult, PostCustomDefenseOutput, error) {
	if input.TargetUserkey == "" || input.Comment == "" {
		return nil, PostCustomDefenseOutput{Error: "target_userkey and comment are required"}, nil
	}
	result, err := s.client.PostCustomDefense(input.TargetUserkey, input.Score, input.Comment, input.ActivityID)
	if err != nil {
		return nil, PostCustomDefenseOutput{Error: err.Error()}, nil
	}
	return nil, PostCustomDefenseOutput{Defense: &result.Defense, Error: result.Error}, nil
}

// CredentialStatusInput is empty
type CredentialStatusInput struct{}

// CredentialStatusOutput is the session token state
type CredentialStatusOutput struct {
	Status *CredentialStatus `json:"status,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) handleCredentialStatus(ctx context.Context, req *mcp.CallToolRequest, input CredentialStatusInput) (*mcp.CallToolResult, CredentialStatusOutput, error) {
	status, err := s.client.GetCredentialStatus()
	if err != nil {
		return nil, CredentialStatusOutput{Error: err.Error()}, nil
	}
	return nil, CredentialStatusOutput{Status: status}, nil
}

// UpdateCredentialInput carries the replacement token
type UpdateCredentialInput struct {
	Token string `json:"token" jsonschema:"description=The new session JWT issued by the trust network"`
}

// UpdateCredentialOutput is the state after the swap
type UpdateCredentialOutput struct {
	Status *CredentialStatus `json:"status,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) handleUpdateCredential(ctx context.Context, req *mcp.CallToolRequest, input UpdateCredentialInput) (*mcp.CallToolResult, UpdateCredentialOutput, error) {
	if input.Token == "" {
		return nil, UpdateCredentialOutput{Error: "token is required"}, nil
	}
	status, err := s.client.UpdateCredential(input.Token)
	if err != nil {
		return nil, UpdateCredentialOutput{Error: err.Error()}, nil
	}
	return nil, UpdateCredentialOutput{Status: status}, nil
}
